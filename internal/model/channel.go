package model

import (
	"fmt"
	"strings"
	"time"
)

// SecondsPerDay is the expiry unit used by every expiry-day input.
const SecondsPerDay = 24 * 60 * 60

// ReminderWindow is how long before expiry the owner is reminded.
const ReminderWindow = 7 * SecondsPerDay

// Channel is a managed private channel. ID is the remote channel identifier
// and never changes after creation.
type Channel struct {
	ID           string `json:"id" bson:"_id"`
	Name         string `json:"name" bson:"name"`
	CreatedAt    int64  `json:"created_at" bson:"created_at"`
	OwnerUserID  string `json:"owner_user_id" bson:"owner_user_id"`
	Organization string `json:"organization,omitempty" bson:"organization"`
	Topic        string `json:"topic,omitempty" bson:"topic"`
	Purpose      string `json:"purpose,omitempty" bson:"purpose"`
	ExpiresAt    int64  `json:"expires_at" bson:"expires_at"`
	Reminded     bool   `json:"reminded" bson:"reminded"`
}

// Clone returns a copy of c that shares no state with it.
func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Expired reports whether the channel's expiry instant has been reached at now.
func (c *Channel) Expired(now int64) bool {
	return now >= c.ExpiresAt
}

// DueForReminder reports whether now falls in the reminder window and no
// reminder has been sent for the current expiry.
func (c *Channel) DueForReminder(now int64) bool {
	return !c.Reminded && !c.Expired(now) && now >= c.ExpiresAt-ReminderWindow
}

// ExpiryTime returns ExpiresAt as a UTC time.
func (c *Channel) ExpiryTime() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// Validate checks the invariants a record must satisfy before it is stored.
func (c *Channel) Validate() error {
	var ve ValidationError
	if strings.TrimSpace(c.ID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "is required"})
	}
	if strings.TrimSpace(c.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}
	if c.ExpiresAt <= c.CreatedAt {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "expires_at",
			Message: fmt.Sprintf("must be after created_at (%d <= %d)", c.ExpiresAt, c.CreatedAt),
		})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// RequestTopic is the topic set on a freshly provisioned channel.
func RequestTopic(inviteeID, organization string) string {
	topic := fmt.Sprintf("Requested for <@%s>", inviteeID)
	if organization != "" {
		topic += " from " + organization
	}
	return topic
}
