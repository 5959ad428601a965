package model

// ChannelPatch is a partial update applied atomically by the store.
// Nil fields are left untouched. ExtendBy is added to ExpiresAt after any
// overwrite of ExpiresAt.
type ChannelPatch struct {
	Name         *string `json:"name,omitempty"`
	Organization *string `json:"organization,omitempty"`
	Topic        *string `json:"topic,omitempty"`
	Purpose      *string `json:"purpose,omitempty"`
	ExpiresAt    *int64  `json:"expires_at,omitempty"`
	Reminded     *bool   `json:"reminded,omitempty"`
	ExtendBy     int64   `json:"extend_by,omitempty"`
}

// ExtendPatch pushes expiry back by days and re-arms the reminder.
func ExtendPatch(days int) ChannelPatch {
	return ChannelPatch{
		ExtendBy: int64(days) * SecondsPerDay,
		Reminded: Ptr(false),
	}
}

// ExpiryPatch sets an absolute expiry and re-arms the reminder.
func ExpiryPatch(expiresAt int64) ChannelPatch {
	return ChannelPatch{
		ExpiresAt: Ptr(expiresAt),
		Reminded:  Ptr(false),
	}
}

// RemindedPatch marks the reminder for the current expiry as sent.
func RemindedPatch() ChannelPatch {
	return ChannelPatch{Reminded: Ptr(true)}
}

// RenamePatch records an external rename.
func RenamePatch(name string) ChannelPatch {
	return ChannelPatch{Name: Ptr(name)}
}

// IsEmpty reports whether the patch changes nothing.
func (p ChannelPatch) IsEmpty() bool {
	return p.Name == nil && p.Organization == nil && p.Topic == nil &&
		p.Purpose == nil && p.ExpiresAt == nil && p.Reminded == nil && p.ExtendBy == 0
}

// Apply mutates c in place. In-memory backends call it while holding their
// write lock; database backends translate the patch into native operators.
func (p ChannelPatch) Apply(c *Channel) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Organization != nil {
		c.Organization = *p.Organization
	}
	if p.Topic != nil {
		c.Topic = *p.Topic
	}
	if p.Purpose != nil {
		c.Purpose = *p.Purpose
	}
	if p.ExpiresAt != nil {
		c.ExpiresAt = *p.ExpiresAt
	}
	c.ExpiresAt += p.ExtendBy
	if p.Reminded != nil {
		c.Reminded = *p.Reminded
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
