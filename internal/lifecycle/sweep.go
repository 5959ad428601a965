package lifecycle

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/events"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
)

// Reminder message identifiers.
const (
	CallbackExpireWarning = "expire_warning_button"
	CallbackExtend        = "extend_button"
	ActionExtend          = "extend"
	ActionIgnore          = "ignore"
)

// Report summarizes one sweep.
type Report struct {
	Scanned  int `json:"scanned"`
	Expired  int `json:"expired"`
	Reminded int `json:"reminded"`
	Failed   int `json:"failed"`
}

// Sweep runs one lifecycle pass at the current time.
func (m *Manager) Sweep(ctx context.Context) (Report, error) {
	return m.SweepAt(ctx, m.Now())
}

// SweepAt runs one lifecycle pass over a snapshot of all records as of now.
// Expired channels are archived and forgotten; channels inside the reminder
// window get one reminder. Per-channel failures are logged and counted, and
// the affected records are left for the next pass.
func (m *Manager) SweepAt(ctx context.Context, now int64) (Report, error) {
	var r Report
	chs, _, err := m.store.ListChannels(ctx, model.ChannelFilter{})
	if err != nil {
		return r, fmt.Errorf("sweep: %w", err)
	}
	r.Scanned = len(chs)

	for _, c := range chs {
		if ctx.Err() != nil {
			return r, ctx.Err()
		}
		switch {
		case c.Expired(now):
			if m.expire(ctx, c) {
				r.Expired++
			} else {
				r.Failed++
			}
		case c.DueForReminder(now):
			if m.remind(ctx, c) {
				r.Reminded++
			} else {
				r.Failed++
			}
		}
	}

	m.logger.Info("sweep completed", "scanned", r.Scanned, "expired", r.Expired, "reminded", r.Reminded, "failed", r.Failed)
	return r, nil
}

func (m *Manager) expire(ctx context.Context, c *model.Channel) bool {
	m.logger.Info("channel has expired, archiving", "channel", c.ID, "name", c.Name)
	err := m.platform.ArchiveChannel(ctx, c.ID)
	gone := platform.IsGone(err)
	if err != nil && !gone {
		m.logger.Error("archive expired channel", "channel", c.ID, "name", c.Name, "err", err)
		return false
	}
	if err := m.store.DeleteChannel(ctx, c.ID); err != nil {
		m.logger.Error("forget expired channel", "channel", c.ID, "err", err)
		return false
	}
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelExpired, events.ChannelExpired{
		ChannelID: c.ID, Name: c.Name, AlreadyGone: gone,
	})
	return true
}

func (m *Manager) remind(ctx context.Context, c *model.Channel) bool {
	m.logger.Info("channel will expire within a week", "channel", c.ID, "name", c.Name)
	if err := m.platform.PostChannelMessage(ctx, c.ID, ReminderMessage()); err != nil {
		if platform.IsGone(err) {
			m.logger.Error("Channel not found", "channel", c.ID, "err", err)
		} else {
			m.logger.Error(platform.FatalMessage, "channel", c.ID, "op", "remind", "err", err)
		}
		return false
	}
	updated, err := m.store.UpdateChannel(ctx, c.ID, model.RemindedPatch())
	if err != nil {
		m.logger.Error("mark channel reminded", "channel", c.ID, "err", err)
		return false
	}
	events.Emit(ctx, m.publisher, m.logger, events.TopicChannelReminded, events.ChannelReminded{Channel: updated})
	return true
}

// ReminderMessage is posted into a channel entering its last week.
func ReminderMessage() slack.Msg {
	return slack.Msg{
		Text: "Looks like this channel will expire _within a week_. You can extend the expiry date " +
			"by using the `/extend-expiry [number of days]` command in this channel.",
		Attachments: []slack.Attachment{{
			Text:       "Would you like to extend the expiry date for *one more week*?",
			Fallback:   "You are unable to choose an option.",
			CallbackID: CallbackExpireWarning,
			Color:      "warning",
			Actions: []slack.AttachmentAction{
				{Name: ActionExtend, Text: "Extend", Type: "button", Style: "primary"},
				{Name: ActionIgnore, Text: "Ignore", Type: "button"},
			},
		}},
	}
}

// ExtendOffer is the reply to an extend request that names no day count.
func ExtendOffer() slack.Msg {
	return slack.Msg{
		Text: "You didn't specify a number of days to extend the expiry date by.",
		Attachments: []slack.Attachment{{
			Text:       "Would you like to extend the expiry date by *one week*?",
			Fallback:   "You are unable to choose an option.",
			CallbackID: CallbackExtend,
			Actions: []slack.AttachmentAction{
				{Name: ActionExtend, Text: "Extend", Type: "button", Style: "primary"},
			},
		}},
	}
}
