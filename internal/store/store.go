// Package store defines the persistence contract for managed channel records.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/chanbot/internal/model"
)

var (
	// ErrDuplicateKey is returned by InsertChannel when the id is already stored.
	ErrDuplicateKey = errors.New("channel already exists")
	// ErrNotFound is returned by UpdateChannel when the id is not stored.
	ErrNotFound = errors.New("channel not found")
	// ErrUnavailable marks I/O and lock failures of the backing storage.
	ErrUnavailable = errors.New("store unavailable")
)

// Unavailable wraps err as an ErrUnavailable failure of op.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Store defines the persistence interface for channel records. Every
// mutating method is atomic with respect to concurrent callers.
type Store interface {
	// InsertChannel persists ch. It fails with ErrDuplicateKey when ch.ID is
	// already present, leaving the stored record untouched.
	InsertChannel(ctx context.Context, ch *model.Channel) (*model.Channel, error)
	// GetChannel returns the record, or nil, nil when it does not exist.
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	// UpdateChannel applies patch and returns the updated record. It fails
	// with ErrNotFound when id is not present.
	UpdateChannel(ctx context.Context, id string, patch model.ChannelPatch) (*model.Channel, error)
	// DeleteChannel removes the record. Deleting an absent id is not an error.
	DeleteChannel(ctx context.Context, id string) error
	// ListChannels returns the page selected by filter ordered by name then
	// id, plus the total number of matches.
	ListChannels(ctx context.Context, filter model.ChannelFilter) ([]*model.Channel, int, error)

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
	// Close releases the store's resources.
	Close() error
}
