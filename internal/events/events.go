package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/chanbot/internal/model"
)

// Event topic constants
const (
	TopicChannelCreated   = "chanbot.channel.created"
	TopicChannelExtended  = "chanbot.channel.extended"
	TopicChannelExpirySet = "chanbot.channel.expiry_set"
	TopicChannelReminded  = "chanbot.channel.reminded"
	TopicChannelExpired   = "chanbot.channel.expired"
	TopicChannelRemoved   = "chanbot.channel.removed"
	TopicChannelRenamed   = "chanbot.channel.renamed"

	// TopicAll matches every channel lifecycle topic.
	TopicAll = "chanbot.>"
)

// Event types

type ChannelCreated struct {
	Channel     *model.Channel `json:"channel"`
	RequestedBy string         `json:"requested_by,omitempty"`
}

type ChannelExtended struct {
	Channel *model.Channel `json:"channel"`
	Days    int            `json:"days"`
	Actor   string         `json:"actor,omitempty"`
}

type ChannelExpirySet struct {
	Channel *model.Channel `json:"channel"`
	Actor   string         `json:"actor,omitempty"`
}

type ChannelReminded struct {
	Channel *model.Channel `json:"channel"`
}

type ChannelExpired struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
	// AlreadyGone is set when the remote channel was archived or deleted
	// before the sweep reached it.
	AlreadyGone bool `json:"already_gone,omitempty"`
}

type ChannelRemoved struct {
	ChannelID string `json:"channel_id"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor,omitempty"`
}

type ChannelRenamed struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
}

// Envelope is the wire form of every published event.
type Envelope struct {
	Topic string          `json:"topic"`
	At    int64           `json:"at"`
	Data  json.RawMessage `json:"data"`
}

// ChannelID returns the id of the channel the event concerns, or "".
func (e Envelope) ChannelID() string {
	var probe struct {
		ChannelID string `json:"channel_id"`
		Channel   *struct {
			ID string `json:"id"`
		} `json:"channel"`
	}
	if json.Unmarshal(e.Data, &probe) != nil {
		return ""
	}
	if probe.ChannelID != "" {
		return probe.ChannelID
	}
	if probe.Channel != nil {
		return probe.Channel.ID
	}
	return ""
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber delivers decoded envelopes for a subject pattern.
type Subscriber interface {
	Subscribe(topic string) (*Subscription, error)
	Close() error
}

// NoopPublisher discards every event. The bot uses it when no bus is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }

// Emit publishes event on a best-effort basis; failures are logged and
// never returned to the caller.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, topic string, event any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, topic, event); err != nil {
		logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
}
