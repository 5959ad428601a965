// Package client provides a transport-agnostic interface for the chanbot
// admin API and an HTTP/JSON implementation that talks to it.
package client

import (
	"context"
	"io"

	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/model"
)

// AdminClient is the interface that all chanbot CLI commands use to
// communicate with a running bot. It is implemented by HTTPClient.
type AdminClient interface {
	// Channels
	ListChannels(ctx context.Context, req *ListChannelsRequest) (*ListChannelsResponse, error)
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	ExtendChannel(ctx context.Context, id string, days int) (*model.Channel, error)
	SetExpiry(ctx context.Context, id string, req *SetExpiryRequest) (*model.Channel, error)
	DeleteChannel(ctx context.Context, id string, archive bool) error

	// Lifecycle
	Sweep(ctx context.Context) (*lifecycle.Report, error)

	// Backup
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (*ImportResponse, error)

	// Health
	Health(ctx context.Context) (string, error)

	Close() error
}

// ListChannelsRequest holds parameters for listing channels.
type ListChannelsRequest struct {
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ListChannelsResponse is the response from ListChannels.
type ListChannelsResponse struct {
	Channels []*model.Channel `json:"channels"`
	Total    int              `json:"total"`
}

// SetExpiryRequest sets an absolute expiry. Exactly one of ExpiresAt and
// Date should be set.
type SetExpiryRequest struct {
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Date      string `json:"date,omitempty"`
	Actor     string `json:"actor,omitempty"`
}

// ImportResponse reports the outcome of Import.
type ImportResponse struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}
