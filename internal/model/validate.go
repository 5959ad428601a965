package model

import (
	"regexp"
	"strconv"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// FieldInvalid returns a single-field validation error.
func FieldInvalid(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// Dialog field names.
const (
	FieldChannelName  = "channel_name"
	FieldInvitee      = "invitee"
	FieldOrganization = "organization"
	FieldExpireDays   = "expire_days"
	FieldPurpose      = "purpose"
)

var (
	channelNameRe = regexp.MustCompile(`^[a-z0-9_-]{1,21}$`)
	expireDaysRe  = regexp.MustCompile(`^[1-9]\d*$`)
)

// MaxExpireDays bounds requested lifetimes so expiry arithmetic cannot overflow.
const MaxExpireDays = 36500

// ChannelRequest is a submitted "request private channel" dialog.
type ChannelRequest struct {
	ChannelName  string `json:"channel_name"`
	InviteeID    string `json:"invitee"`
	Organization string `json:"organization,omitempty"`
	ExpireDays   string `json:"expire_days"`
	Purpose      string `json:"purpose,omitempty"`
}

// Normalize trims the free-text fields and lowercases the channel name.
func (r *ChannelRequest) Normalize() {
	r.ChannelName = strings.ToLower(strings.TrimSpace(r.ChannelName))
	r.InviteeID = strings.TrimSpace(r.InviteeID)
	r.Organization = strings.TrimSpace(r.Organization)
	r.ExpireDays = strings.TrimSpace(r.ExpireDays)
	r.Purpose = strings.TrimSpace(r.Purpose)
}

// Days returns the parsed expiry. Only valid after ValidateChannelRequest.
func (r *ChannelRequest) Days() int {
	n, _ := strconv.Atoi(r.ExpireDays)
	return n
}

// ValidateChannelRequest checks every field of a normalized request and
// returns all violations together, or nil if the request is valid.
func ValidateChannelRequest(r *ChannelRequest, requesterID string) error {
	var ve ValidationError

	if r.InviteeID == "" {
		ve.Add(FieldInvitee, "Please choose a user to invite.")
	} else if r.InviteeID == requesterID {
		ve.Add(FieldInvitee, "You cannot request a new private channel with just yourself in it!")
	}

	if !channelNameRe.MatchString(r.ChannelName) {
		ve.Add(FieldChannelName, "Invalid characters found.")
	}

	if !expireDaysRe.MatchString(r.ExpireDays) {
		ve.Add(FieldExpireDays, "Please enter a valid positive integer.")
	} else if n, err := strconv.Atoi(r.ExpireDays); err != nil || n > MaxExpireDays {
		ve.Add(FieldExpireDays, "That number of days is too large.")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
