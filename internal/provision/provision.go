// Package provision creates a requested private channel on the platform and
// starts managing it.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/events"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// StepError reports a failure after the remote channel was created. The
// channel is left in place.
type StepError struct {
	Step      string
	ChannelID string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provision %s: %s: %v", e.ChannelID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Provisioner runs the request sequence.
type Provisioner struct {
	platform  platform.Client
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger

	leaveAfterCreate bool
	now              func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) { p.now = now }
}

// WithLeaveAfterCreate controls whether the creating account leaves the new
// channel once it is set up.
func WithLeaveAfterCreate(leave bool) Option {
	return func(p *Provisioner) { p.leaveAfterCreate = leave }
}

// New creates a Provisioner. A nil publisher disables events.
func New(client platform.Client, s store.Store, pub events.Publisher, logger *slog.Logger, opts ...Option) *Provisioner {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	p := &Provisioner{
		platform:         client,
		store:            s,
		publisher:        pub,
		logger:           logger,
		leaveAfterCreate: true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision validates req, creates the channel for requesterID and the
// invitee, and stores its record.
//
// The error is a *model.ValidationError for problems the requester can fix
// in the dialog, a *StepError when the record could not be stored after the
// channel was created, and otherwise a wrapped platform failure.
func (p *Provisioner) Provision(ctx context.Context, req model.ChannelRequest, requesterID string) (*model.Channel, error) {
	req.Normalize()
	if err := model.ValidateChannelRequest(&req, requesterID); err != nil {
		return nil, err
	}
	log := p.logger.With("user", requesterID, "channel_name", req.ChannelName, "invitee", req.InviteeID)

	invitee, err := p.platform.GetUser(ctx, req.InviteeID)
	if err != nil {
		if platform.Code(err) == platform.CodeUserNotFound {
			return nil, model.FieldInvalid(model.FieldInvitee, "Could not find that user.")
		}
		return nil, fmt.Errorf("look up invitee: %w", err)
	}
	if invitee.IsBot {
		return nil, model.FieldInvalid(model.FieldInvitee, "Invited user must be human.")
	}

	conv, err := p.platform.CreatePrivateChannel(ctx, req.ChannelName)
	if err != nil {
		switch platform.Code(err) {
		case platform.CodeNameTaken:
			return nil, model.FieldInvalid(model.FieldChannelName, "A channel with this name already exists.")
		case platform.CodeRestrictedAction:
			return nil, model.FieldInvalid(model.FieldChannelName, "You are not allowed to create private channels.")
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}
	log = log.With("channel", conv.ID)
	log.Info("private channel created")

	topic := model.RequestTopic(req.InviteeID, req.Organization)
	p.step(ctx, log, "invite", func(ctx context.Context) error {
		return p.platform.InviteUsers(ctx, conv.ID, req.InviteeID, requesterID)
	})
	p.step(ctx, log, "set topic", func(ctx context.Context) error {
		return p.platform.SetTopic(ctx, conv.ID, topic)
	})
	if req.Purpose != "" {
		p.step(ctx, log, "set purpose", func(ctx context.Context) error {
			return p.platform.SetPurpose(ctx, conv.ID, req.Purpose)
		})
	}
	if p.leaveAfterCreate {
		p.step(ctx, log, "leave", func(ctx context.Context) error {
			return p.platform.LeaveChannel(ctx, conv.ID)
		})
	}

	now := p.now().Unix()
	created := conv.Created
	if created <= 0 {
		created = now
	}
	rec := &model.Channel{
		ID:           conv.ID,
		Name:         conv.Name,
		CreatedAt:    created,
		OwnerUserID:  req.InviteeID,
		Organization: req.Organization,
		Topic:        topic,
		Purpose:      req.Purpose,
		ExpiresAt:    now + int64(req.Days())*model.SecondsPerDay,
	}
	if rec.Name == "" {
		rec.Name = req.ChannelName
	}
	stored, err := p.store.InsertChannel(ctx, rec)
	if err != nil {
		log.Error("store channel record", "err", err)
		return nil, &StepError{Step: "insert", ChannelID: conv.ID, Err: err}
	}

	events.Emit(ctx, p.publisher, log, events.TopicChannelCreated, events.ChannelCreated{Channel: stored, RequestedBy: requesterID})
	return stored, nil
}

// step runs one post-create call. Failures are logged and do not stop the
// sequence.
func (p *Provisioner) step(ctx context.Context, log *slog.Logger, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Error("provisioning step failed", "step", name, "code", platform.Code(err), "err", err)
	}
}

// SuccessText is the confirmation shown to the requester.
func SuccessText(c *model.Channel) string {
	text := fmt.Sprintf("Successfully created private channel #%s for <@%s>", c.Name, c.OwnerUserID)
	if c.Organization != "" {
		text += " from " + c.Organization
	}
	return text + "!"
}
