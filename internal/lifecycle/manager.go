// Package lifecycle owns the expiry of managed channels: the scheduled sweep
// that reminds and archives, and the user-driven extend, set-expiry, archive,
// rename, and adopt operations.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/events"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// ExtendDays is the extension offered by reminder and extend buttons.
const ExtendDays = 7

// ErrNotManaged is returned for channels without a record.
var ErrNotManaged = errors.New("channel is not managed")

// Manager applies lifecycle changes to the store and the platform.
type Manager struct {
	store       store.Store
	platform    platform.Client
	publisher   events.Publisher
	logger      *slog.Logger
	defaultDays int

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDefaultDays sets the expiry given to adopted channels.
func WithDefaultDays(days int) Option {
	return func(m *Manager) {
		if days > 0 {
			m.defaultDays = days
		}
	}
}

// NewManager creates a Manager. A nil publisher disables events.
func NewManager(s store.Store, client platform.Client, p events.Publisher, logger *slog.Logger, opts ...Option) *Manager {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	m := &Manager{
		store:       s,
		platform:    client,
		publisher:   p,
		logger:      logger,
		defaultDays: 14,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the current time in epoch seconds.
func (m *Manager) Now() int64 {
	return m.now().Unix()
}

// Extend pushes the expiry of channelID back by days and re-arms the
// reminder. It returns ErrNotManaged when no record exists.
func (m *Manager) Extend(ctx context.Context, channelID string, days int, actor string) (*model.Channel, error) {
	if days <= 0 {
		return nil, fmt.Errorf("extend %s: days must be positive, got %d", channelID, days)
	}
	c, err := m.store.UpdateChannel(ctx, channelID, model.ExtendPatch(days))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("extend %s: %w", channelID, ErrNotManaged)
	}
	if err != nil {
		return nil, fmt.Errorf("extend %s: %w", channelID, err)
	}
	m.logger.Info("channel extended", "channel", channelID, "days", days, "user", actor, "expires_at", c.ExpiresAt)
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelExtended, events.ChannelExtended{Channel: c, Days: days, Actor: actor})
	return c, nil
}

// SetExpiry sets an absolute expiry and re-arms the reminder. expiresAt must
// lie in the future.
func (m *Manager) SetExpiry(ctx context.Context, channelID string, expiresAt int64, actor string) (*model.Channel, error) {
	if expiresAt <= m.Now() {
		return nil, fmt.Errorf("set expiry %s: %d is not in the future", channelID, expiresAt)
	}
	c, err := m.store.UpdateChannel(ctx, channelID, model.ExpiryPatch(expiresAt))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("set expiry %s: %w", channelID, ErrNotManaged)
	}
	if err != nil {
		return nil, fmt.Errorf("set expiry %s: %w", channelID, err)
	}
	m.logger.Info("channel expiry set", "channel", channelID, "user", actor, "expires_at", expiresAt)
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelExpirySet, events.ChannelExpirySet{Channel: c, Actor: actor})
	return c, nil
}

// Archive archives the remote channel and forgets its record. A channel that
// is already gone on the platform is still forgotten.
func (m *Manager) Archive(ctx context.Context, channelID, actor string) error {
	if err := m.platform.ArchiveChannel(ctx, channelID); err != nil && !platform.IsGone(err) {
		return fmt.Errorf("archive %s: %w", channelID, err)
	}
	if err := m.store.DeleteChannel(ctx, channelID); err != nil {
		return fmt.Errorf("forget %s: %w", channelID, err)
	}
	m.logger.Info("channel archived", "channel", channelID, "user", actor)
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelRemoved, events.ChannelRemoved{
		ChannelID: channelID, Reason: "archived", Actor: actor,
	})
	return nil
}

// Forget removes the record of a channel archived or deleted on the platform.
func (m *Manager) Forget(ctx context.Context, channelID, reason string) error {
	if err := m.store.DeleteChannel(ctx, channelID); err != nil {
		return fmt.Errorf("forget %s: %w", channelID, err)
	}
	m.logger.Info("channel is now inactive and has been removed", "channel", channelID, "reason", reason)
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelRemoved, events.ChannelRemoved{ChannelID: channelID, Reason: reason})
	return nil
}

// Rename records a name change made on the platform. Unmanaged channels are
// ignored.
func (m *Manager) Rename(ctx context.Context, channelID, name string) error {
	_, err := m.store.UpdateChannel(ctx, channelID, model.RenamePatch(name))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rename %s: %w", channelID, err)
	}
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelRenamed, events.ChannelRenamed{ChannelID: channelID, Name: name})
	return nil
}

// Adopt starts managing an existing private channel with the default expiry.
func (m *Manager) Adopt(ctx context.Context, channelID, actor string) (*model.Channel, error) {
	conv, err := m.platform.GetConversation(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("adopt %s: %w", channelID, err)
	}
	now := m.Now()
	created := conv.Created
	if created <= 0 || created > now {
		created = now
	}
	c := &model.Channel{
		ID:          conv.ID,
		Name:        conv.Name,
		CreatedAt:   created,
		OwnerUserID: actor,
		Topic:       conv.Topic,
		Purpose:     conv.Purpose,
		ExpiresAt:   now + int64(m.defaultDays)*model.SecondsPerDay,
	}
	stored, err := m.store.InsertChannel(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("adopt %s: %w", channelID, err)
	}
	m.logger.Info("channel adopted", "channel", channelID, "user", actor, "expires_at", stored.ExpiresAt)
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelCreated, events.ChannelCreated{Channel: stored, RequestedBy: actor})
	return stored, nil
}
