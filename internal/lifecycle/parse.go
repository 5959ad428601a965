package lifecycle

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ExpiryDateLayout is the date format accepted by set-expiry.
const ExpiryDateLayout = "2006-01-02"

var (
	// ErrInvalidDays rejects day counts that are not positive integers.
	ErrInvalidDays = errors.New("days must be a positive integer")
	// ErrInvalidDate rejects malformed or past expiry dates.
	ErrInvalidDate = errors.New("expiry must be a future YYYY-MM-DD date")
)

// ParseDays parses a positive day count typed by a user.
func ParseDays(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return 0, ErrInvalidDays
	}
	return n, nil
}

// ParseExpiryDate parses a YYYY-MM-DD date as 00:00 UTC and requires it to
// be after now.
func ParseExpiryDate(text string, now time.Time) (int64, error) {
	t, err := time.Parse(ExpiryDateLayout, strings.TrimSpace(text))
	if err != nil || !t.After(now) {
		return 0, ErrInvalidDate
	}
	return t.Unix(), nil
}
