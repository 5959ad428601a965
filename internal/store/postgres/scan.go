package postgres

import (
	"errors"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/chanbot/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanChannel scans a single row into a model.Channel.
// The row must contain columns in the order defined by channelColumns.
func scanChannel(row scannable) (*model.Channel, error) {
	var c model.Channel
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.CreatedAt,
		&c.OwnerUserID,
		&c.Organization,
		&c.Topic,
		&c.Purpose,
		&c.ExpiresAt,
		&c.Reminded,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// scanChannelWithTotal scans a row whose first column is COUNT(*) OVER().
func scanChannelWithTotal(row scannable) (*model.Channel, int, error) {
	var (
		c     model.Channel
		total int
	)
	err := row.Scan(
		&total,
		&c.ID,
		&c.Name,
		&c.CreatedAt,
		&c.OwnerUserID,
		&c.Organization,
		&c.Topic,
		&c.Purpose,
		&c.ExpiresAt,
		&c.Reminded,
	)
	if err != nil {
		return nil, 0, err
	}
	return &c, total, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
