package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/provision"
)

// Slash command replies.
const (
	InvalidDaysText    = "Oops, you didn't specify a valid positive integer, please try that again."
	InvalidDateText    = "Please specify a valid future expiry date in YYYY-MM-DD format."
	NoUserText         = ":no_entry_sign: You didn't specify a user to remove"
	InvalidUserText    = ":no_entry_sign: Invalid user specified, please use @handle"
	UnknownCommandHint = "Unknown command."
)

var (
	// inviteeRe matches an escaped mention such as <@U123|alice> or <@U123>.
	inviteeRe = regexp.MustCompile(`^<@([A-Z0-9]+)(?:\|[^>]*)?>$`)
	// removeUserRe finds the user id of an escaped mention.
	removeUserRe = regexp.MustCompile(`<@([^|>]*)[|>]`)
)

// kickMessages maps kick failures to the text shown to the caller.
var kickMessages = map[string]string{
	platform.CodeUserNotFound:     "That user does not exist.",
	platform.CodeNotInChannel:     "That user is not a member of this channel.",
	platform.CodeCantKickSelf:     "You can't remove yourself, use `/leave` instead.",
	platform.CodeRestrictedAction: "You are not allowed to remove users from this channel.",
}

// handleCommand handles POST /command/{name}.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slash command")
		return
	}
	ctx := r.Context()
	text := strings.TrimSpace(cmd.Text)

	var msg slack.Msg
	switch r.PathValue("name") {
	case "request-channel":
		msg = s.requestChannelCommand(ctx, &cmd, text)
	case "extend-expiry":
		msg = s.extendCommand(ctx, &cmd, text)
	case "remove-user":
		msg = s.removeUserCommand(ctx, &cmd, text)
	case "set-expiry":
		msg = s.setExpiryCommand(ctx, &cmd, text)
	default:
		writeError(w, http.StatusNotFound, UnknownCommandHint)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// requestChannelCommand opens the request dialog, prefilled with the
// mentioned user if any.
func (s *Server) requestChannelCommand(ctx context.Context, cmd *slack.SlashCommand, text string) slack.Msg {
	var prefill model.ChannelRequest
	if m := inviteeRe.FindStringSubmatch(text); m != nil {
		prefill.InviteeID = m[1]
	}
	dialog := provision.RequestDialog(prefill, s.defaultDays)
	if err := s.platform.OpenDialog(ctx, cmd.TriggerID, dialog); err != nil {
		s.log(ctx).Error("open request dialog", "user", cmd.UserID, "code", platform.Code(err), "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	return slack.Msg{Text: RequestingText}
}

func (s *Server) extendCommand(ctx context.Context, cmd *slack.SlashCommand, text string) slack.Msg {
	if text == "" {
		return lifecycle.ExtendOffer()
	}
	days, err := lifecycle.ParseDays(text)
	if err != nil || days > model.MaxExpireDays {
		return slack.Msg{Text: InvalidDaysText}
	}
	_, err = s.manager.Extend(ctx, cmd.ChannelID, days, cmd.UserID)
	switch {
	case errors.Is(err, lifecycle.ErrNotManaged):
		return slack.Msg{Text: NotManagedText}
	case err != nil:
		s.log(ctx).Error("extend channel", "user", cmd.UserID, "channel", cmd.ChannelID, "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	return slack.Msg{Text: fmt.Sprintf(":white_check_mark: Successfully extended this channel's expiry date by %d day(s)", days)}
}

func (s *Server) removeUserCommand(ctx context.Context, cmd *slack.SlashCommand, text string) slack.Msg {
	if text == "" {
		return slack.Msg{Text: NoUserText}
	}
	m := removeUserRe.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return slack.Msg{Text: InvalidUserText}
	}
	userID := m[1]
	log := s.log(ctx).With("user", cmd.UserID, "channel", cmd.ChannelID, "target", userID)

	c, err := s.store.GetChannel(ctx, cmd.ChannelID)
	if err != nil {
		log.Error("look up channel", "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	if c == nil {
		return slack.Msg{Text: NotManagedText}
	}

	if err := s.platform.KickUser(ctx, cmd.ChannelID, userID); err != nil {
		code := platform.Code(err)
		log.Error("remove user", "code", code, "err", err)
		if reason, ok := kickMessages[code]; ok {
			return slack.Msg{Text: ":no_entry_sign: " + reason}
		}
		return slack.Msg{Text: ":no_entry_sign: " + platform.FatalMessage}
	}
	log.Info("user removed from channel")
	return slack.Msg{Text: fmt.Sprintf(":white_check_mark: <@%s> has been removed from this channel.", userID)}
}

func (s *Server) setExpiryCommand(ctx context.Context, cmd *slack.SlashCommand, text string) slack.Msg {
	ts, err := lifecycle.ParseExpiryDate(text, time.Unix(s.manager.Now(), 0))
	if err != nil {
		return slack.Msg{Text: InvalidDateText}
	}
	_, err = s.manager.SetExpiry(ctx, cmd.ChannelID, ts, cmd.UserID)
	switch {
	case errors.Is(err, lifecycle.ErrNotManaged):
		return slack.Msg{Text: NotManagedText}
	case err != nil:
		s.log(ctx).Error("set expiry", "user", cmd.UserID, "channel", cmd.ChannelID, "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	date := time.Unix(ts, 0).UTC().Format(lifecycle.ExpiryDateLayout)
	return slack.Msg{Text: fmt.Sprintf(":white_check_mark: OK, this channel will now expire on %s at 00:00 UTC.", date)}
}

// handleOAuth handles GET /oauth, the app install redirect.
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" || s.oauth == nil {
		s.log(r.Context()).Error("invalid OAuth request")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"Error": "Looks like we are not getting code."})
		return
	}
	resp, err := s.oauth(r.Context(), code)
	if err != nil {
		s.log(r.Context()).Error("OAuth exchange", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"Error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"team":   resp.Team.Name,
		"app_id": resp.AppID,
	})
}
