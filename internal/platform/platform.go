// Package platform wraps the messaging platform API used to manage private
// channels. Remote failures are returned as *Error carrying the platform's
// error code.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
)

// Error codes the bot reacts to.
const (
	CodeChannelNotFound  = "channel_not_found"
	CodeIsArchived       = "is_archived"
	CodeAlreadyArchived  = "already_archived"
	CodeNameTaken        = "name_taken"
	CodeRestrictedAction = "restricted_action"
	CodeUserNotFound     = "user_not_found"
	CodeNotInChannel     = "not_in_channel"
	CodeCantKickSelf     = "cant_kick_self"
	CodeAlreadyInChannel = "already_in_channel"
)

// FatalMessage is shown to users for failures with no specific message.
const FatalMessage = "Fatal: unknown platform error"

// Error is a failed platform call.
type Error struct {
	Op   string // API method, e.g. "conversations.create"
	Code string // platform error code; empty for transport failures
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the platform error code carried by err, or "".
func Code(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsGone reports whether err says the channel is already archived or no
// longer exists.
func IsGone(err error) bool {
	switch Code(err) {
	case CodeChannelNotFound, CodeIsArchived, CodeAlreadyArchived:
		return true
	}
	return false
}

// wrapErr converts a slack-go error into *Error.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	pe := &Error{Op: op, Err: err}
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		pe.Code = se.Err
	}
	return pe
}

// User is the subset of account details the bot inspects.
type User struct {
	ID    string
	Name  string
	IsBot bool // bot users and app users
}

// Conversation is a remote private channel.
type Conversation struct {
	ID         string
	Name       string
	Topic      string
	Purpose    string
	Created    int64
	IsArchived bool
}

// Client is the set of platform operations the bot depends on.
type Client interface {
	CreatePrivateChannel(ctx context.Context, name string) (*Conversation, error)
	InviteUsers(ctx context.Context, channelID string, userIDs ...string) error
	SetTopic(ctx context.Context, channelID, topic string) error
	SetPurpose(ctx context.Context, channelID, purpose string) error
	LeaveChannel(ctx context.Context, channelID string) error
	ArchiveChannel(ctx context.Context, channelID string) error
	KickUser(ctx context.Context, channelID, userID string) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetConversation(ctx context.Context, channelID string) (*Conversation, error)

	// ListPrivateChannels returns one page of non-archived private channels
	// in workspace order plus the cursor of the next page ("" at the end).
	ListPrivateChannels(ctx context.Context, cursor string, limit int) ([]Conversation, string, error)
	// ListUserPrivateChannels returns one page of the private channels userID
	// belongs to.
	ListUserPrivateChannels(ctx context.Context, userID, cursor string) ([]Conversation, string, error)

	// PostMessage posts as the bot, typically into a direct message.
	PostMessage(ctx context.Context, channelID string, msg slack.Msg) error
	// PostChannelMessage posts into a managed channel the bot account is
	// not a member of.
	PostChannelMessage(ctx context.Context, channelID string, msg slack.Msg) error
	OpenDialog(ctx context.Context, triggerID string, dialog slack.Dialog) error
	// Respond delivers a delayed reply to an interaction response URL.
	Respond(ctx context.Context, responseURL string, msg slack.Msg) error
}
