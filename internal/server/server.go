// Package server exposes the bot over HTTP: the chat platform's event,
// interaction and slash command webhooks, the OAuth install callback, and an
// admin REST API. A gRPC listener serves health checks.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/directory"
	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/provision"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// webhookTimeout bounds the work done for one platform callback.
const webhookTimeout = 30 * time.Second

// OAuthExchanger trades an install code for an access token.
type OAuthExchanger func(ctx context.Context, code string) (*slack.OAuthV2Response, error)

// Server handles every inbound request.
type Server struct {
	store       store.Store
	platform    platform.Client
	manager     *lifecycle.Manager
	provisioner *provision.Provisioner
	directory   *directory.Service
	logger      *slog.Logger

	authChannel   string
	defaultDays   int
	signingSecret string
	oauth         OAuthExchanger

	// background tracks event handlers that outlive their request.
	background sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuthChannel restricts archiving and adopting channels to members of
// the private channel named name.
func WithAuthChannel(name string) Option {
	return func(s *Server) { s.authChannel = name }
}

// WithDefaultDays sets the expiry prefilled in the request dialog.
func WithDefaultDays(days int) Option {
	return func(s *Server) { s.defaultDays = days }
}

// WithSigningSecret enables request signature verification on the platform
// webhooks.
func WithSigningSecret(secret string) Option {
	return func(s *Server) { s.signingSecret = secret }
}

// WithOAuth enables the install callback.
func WithOAuth(x OAuthExchanger) Option {
	return func(s *Server) { s.oauth = x }
}

// New returns a Server. m and p must use the same store and client.
func New(s store.Store, client platform.Client, m *lifecycle.Manager, p *provision.Provisioner, opts ...Option) *Server {
	srv := &Server{
		store:       s,
		platform:    client,
		manager:     m,
		provisioner: p,
		directory:   directory.New(s, client),
		logger:      slog.Default(),
		defaultDays: 14,
	}
	for _, o := range opts {
		o(srv)
	}
	return srv
}

// Wait blocks until background event handlers have finished.
func (s *Server) Wait() {
	s.background.Wait()
}

// goBackground runs fn detached from the request that triggered it.
func (s *Server) goBackground(ctx context.Context, fn func(context.Context)) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// authorized reports whether userID may archive and adopt channels: always
// when no auth channel is configured, otherwise when the user belongs to it.
func (s *Server) authorized(ctx context.Context, userID string) (bool, error) {
	if s.authChannel == "" {
		return true, nil
	}
	cursor := ""
	for {
		chs, next, err := s.platform.ListUserPrivateChannels(ctx, userID, cursor)
		if err != nil {
			return false, fmt.Errorf("list conversations of %s: %w", userID, err)
		}
		for _, c := range chs {
			if c.Name == s.authChannel {
				return true, nil
			}
		}
		if next == "" {
			return false, nil
		}
		cursor = next
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// errorStatus maps an error from the domain packages to an HTTP status.
func errorStatus(err error) int {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, lifecycle.ErrNotManaged):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// log returns the request-scoped logger, or the server's logger outside a
// request.
func (s *Server) log(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return s.logger
}
