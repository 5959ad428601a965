package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/alfredjeanlab/chanbot/internal/directory"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
)

// Inner event types the bot subscribes to.
const (
	eventMessage      = "message"
	eventGroupRename  = "group_rename"
	eventGroupArchive = "group_archive"
	eventGroupDeleted = "group_deleted"
)

// Direct message replies.
const (
	HelpText = "Here are your options. Type:\n" +
		"- :information_source: | `help`: Print this help message\n" +
		"- :scroll: | `list [keywords ...]`: List active private channels that match your query\n\n" +
		"You can also click on the following options:"
	UnknownCommandText = "Hello there, I don't recognize your command. Try typing `help` for more options."
	UnauthorizedText   = ":no_entry_sign: You are not authorized to do that."
)

var helpCommandRe = regexp.MustCompile(`(?i)(help|option|action|command|menu)`)

// envelope is the outer body of an event callback.
type envelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

// innerEvent holds the fields of the subscribed event types. Channel is an id
// for most events and an object for group_rename.
type innerEvent struct {
	Type        string          `json:"type"`
	SubType     string          `json:"subtype"`
	User        string          `json:"user"`
	BotID       string          `json:"bot_id"`
	Text        string          `json:"text"`
	Channel     json.RawMessage `json:"channel"`
	ChannelType string          `json:"channel_type"`
	Message     *struct {
		BotID string `json:"bot_id"`
	} `json:"message"`
}

type renamedChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e *innerEvent) channel() (renamedChannel, bool) {
	var c renamedChannel
	if len(e.Channel) == 0 {
		return c, false
	}
	if e.Channel[0] == '"' {
		return c, json.Unmarshal(e.Channel, &c.ID) == nil && c.ID != ""
	}
	return c, json.Unmarshal(e.Channel, &c) == nil && c.ID != ""
}

// handleEvent handles POST /event. Events are acknowledged immediately and
// processed in the background; platform retries of an event are ignored.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch env.Type {
	case slackevents.URLVerification:
		writeJSON(w, http.StatusOK, map[string]string{"challenge": env.Challenge})
		return
	case slackevents.CallbackEvent:
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Header.Get("X-Slack-Retry-Num") != "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var ev innerEvent
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}
	w.WriteHeader(http.StatusOK)

	s.goBackground(r.Context(), func(ctx context.Context) {
		s.dispatchEvent(ctx, &ev)
	})
}

func (s *Server) dispatchEvent(ctx context.Context, ev *innerEvent) {
	log := s.log(ctx).With("event", ev.Type)
	ch, ok := ev.channel()
	if !ok {
		log.Warn("event without channel")
		return
	}

	switch ev.Type {
	case eventMessage:
		s.handleDirectMessage(ctx, ev, ch.ID)
	case eventGroupRename:
		if err := s.manager.Rename(ctx, ch.ID, ch.Name); err != nil {
			log.Error("rename channel", "channel", ch.ID, "err", err)
		}
	case eventGroupArchive, eventGroupDeleted:
		if err := s.manager.Forget(ctx, ch.ID, ev.Type); err != nil {
			log.Error("forget channel", "channel", ch.ID, "err", err)
		}
	}
}

// handleDirectMessage answers help, list and unmanaged commands typed to the
// bot. Messages from bots, including the bot's own replies, are ignored.
func (s *Server) handleDirectMessage(ctx context.Context, ev *innerEvent, channelID string) {
	if ev.BotID != "" || (ev.Message != nil && ev.Message.BotID != "") {
		return
	}
	if ev.SubType != "" || (ev.ChannelType != "" && ev.ChannelType != "im") {
		return
	}
	log := s.log(ctx).With("user", ev.User, "channel", channelID)

	text := strings.ToLower(strings.TrimSpace(ev.Text))
	var msg slack.Msg
	switch {
	case helpCommandRe.MatchString(text):
		msg = MenuMessage()
	case strings.HasPrefix(text, "list"):
		terms := model.SearchTerms(strings.TrimPrefix(text, "list"))
		listing, err := s.directory.List(ctx, 0, terms)
		if err != nil {
			log.Error("list channels", "search", terms, "err", err)
			msg = slack.Msg{Text: platform.FatalMessage}
			break
		}
		msg = listing.Message()
	case text == "unmanaged":
		msg = s.unmanagedPage(ctx, ev.User, directory.Position{})
	default:
		msg = slack.Msg{Text: UnknownCommandText}
	}

	if err := s.platform.PostMessage(ctx, channelID, msg); err != nil {
		log.Error("post reply", "code", platform.Code(err), "err", err)
	}
}

// unmanagedPage renders the unmanaged listing from pos for an authorized
// user.
func (s *Server) unmanagedPage(ctx context.Context, userID string, pos directory.Position) slack.Msg {
	log := s.log(ctx).With("user", userID)
	ok, err := s.authorized(ctx, userID)
	if err != nil {
		log.Error("check authorization", "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	if !ok {
		log.Warn("unauthorized unmanaged listing")
		return slack.Msg{Text: UnauthorizedText}
	}
	page, err := s.directory.ListUnmanaged(ctx, pos)
	if err != nil {
		log.Error("list unmanaged channels", "err", err)
		return slack.Msg{Text: platform.FatalMessage}
	}
	return page.Message()
}

// MenuMessage is the reply to a help request.
func MenuMessage() slack.Msg {
	return slack.Msg{
		Text: HelpText,
		Attachments: []slack.Attachment{{
			Fallback:   "You are unable to choose an option",
			CallbackID: directory.CallbackMenu,
			Color:      "#3AA3E3",
			Actions: []slack.AttachmentAction{
				{
					Name: directory.ActionRequestChannel,
					Text: "Request a private channel",
					Type: "button",
				},
				{
					Name:  directory.ActionListChannels,
					Text:  "List active private channels",
					Type:  "button",
					Value: directory.EncodePageRequest(0, ""),
				},
			},
		}},
	}
}
