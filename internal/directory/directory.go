// Package directory renders the searchable, paginated listing of managed
// channels and the listing of private channels the bot does not manage yet.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// Callback ids and action names carried by listing messages.
const (
	CallbackMenu        = "menu_button"
	CallbackJoinChannel = "join_channel_button"
	CallbackUnmanaged   = "unmanaged_channel_button"
	CallbackAdmin       = "admin_button"

	ActionRequestChannel = "request_private_channel"
	ActionListChannels   = "list_private_channels"
	ActionJoinChannel    = "join_channel"
	ActionArchiveChannel = "archive_channel"
	ActionAddManager     = "add_channel_manager"
	ActionListUnmanaged  = "list_unmanaged"
)

// Listing texts.
const (
	ListingHeader   = "Here is a `list` of active private channels that match your query:"
	NoMatchesText   = "There are no active private channels that match your query, type `help` if you would like to request one."
	MoreText        = "See more channels..."
	UnmanagedHeader = "Here is a list of unmanaged active private channels."
	NoUnmanagedText = "Hooray! There are no more unmanaged private channels left in the workspace."
)

// Service builds channel listings from the store and the platform.
type Service struct {
	store    store.Store
	platform platform.Client
	batch    int
}

// New creates a Service. client may be nil when only managed listings are
// needed.
func New(s store.Store, client platform.Client) *Service {
	return &Service{store: s, platform: client, batch: UnmanagedBatch}
}

// Listing is one page of managed channels matching a search.
type Listing struct {
	Channels    []*model.Channel
	Total       int
	Offset      int
	SearchTerms string
	Window      model.Window
}

// List returns the page of up to model.PageSize channels starting at offset
// whose name or organization matches searchTerms. An empty searchTerms
// matches everything.
func (s *Service) List(ctx context.Context, offset int, searchTerms string) (*Listing, error) {
	if offset < 0 {
		offset = 0
	}
	chs, total, err := s.store.ListChannels(ctx, model.ChannelFilter{
		Search: searchTerms,
		Offset: offset,
		Limit:  model.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return &Listing{
		Channels:    chs,
		Total:       total,
		Offset:      offset,
		SearchTerms: searchTerms,
		Window:      model.Paginate(offset, model.PageSize, total),
	}, nil
}

// ShowControls reports whether the listing carries a pagination attachment.
// Controls are omitted when every match fits on one page, except that a
// stale offset past the end still offers the way back.
func (l *Listing) ShowControls() bool {
	if l.Total == 0 {
		return false
	}
	return l.Total > model.PageSize || (l.Window.Empty() && l.Window.HasPrev)
}

// Message renders the listing as a chat message.
func (l *Listing) Message() slack.Msg {
	if l.Total == 0 {
		return slack.Msg{Text: NoMatchesText}
	}

	attachments := make([]slack.Attachment, 0, len(l.Channels)+1)
	for _, c := range l.Channels {
		attachments = append(attachments, channelEntry(c))
	}
	if l.ShowControls() {
		var actions []slack.AttachmentAction
		if l.Window.HasPrev {
			actions = append(actions, pageAction("Prev page", l.Window.PrevOffset, l.SearchTerms))
		}
		if l.Window.HasNext {
			actions = append(actions, pageAction("Next page", l.Window.NextOffset, l.SearchTerms))
		}
		attachments = append(attachments, slack.Attachment{
			Text:       MoreText,
			CallbackID: CallbackMenu,
			Actions:    actions,
		})
	}
	return slack.Msg{Text: ListingHeader, Attachments: attachments}
}

// EntryText is the body of a listing entry: the topic in italics followed by
// the purpose on its own line.
func EntryText(topic, purpose string) string {
	var b strings.Builder
	if topic != "" {
		b.WriteString("_" + topic + "_")
	}
	if purpose != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(purpose)
	}
	return b.String()
}

func channelEntry(c *model.Channel) slack.Attachment {
	return slack.Attachment{
		Title:      "#" + c.Name,
		Text:       EntryText(c.Topic, c.Purpose),
		CallbackID: CallbackJoinChannel,
		Actions: []slack.AttachmentAction{
			{
				Name:  ActionJoinChannel,
				Text:  "Join",
				Type:  "button",
				Style: "primary",
				Value: c.ID,
			},
			{
				Name:  ActionArchiveChannel,
				Text:  "Archive",
				Type:  "button",
				Value: c.ID,
				Confirm: &slack.ConfirmationField{
					Title:       "Archive #" + c.Name,
					Text:        fmt.Sprintf("Are you sure you want to archive %s?", c.Name),
					OkText:      "Yes",
					DismissText: "No",
				},
			},
		},
		Footer:     "Date created",
		Ts:         json.Number(strconv.FormatInt(c.CreatedAt, 10)),
		MarkdownIn: []string{"text"},
	}
}

// PageRequest is the value of a listing page control.
type PageRequest struct {
	Offset      int    `json:"offset"`
	SearchTerms string `json:"searchTerms"`
	// Cursor is the offset under the name used by older menu messages.
	Cursor *int `json:"cursor,omitempty"`
}

// ParsePageRequest decodes a page control value. An empty value selects the
// first unfiltered page.
func ParsePageRequest(value string) (PageRequest, error) {
	var req PageRequest
	if strings.TrimSpace(value) == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(value), &req); err != nil {
		return PageRequest{}, fmt.Errorf("decode page request: %w", err)
	}
	if req.Cursor != nil && req.Offset == 0 {
		req.Offset = *req.Cursor
	}
	req.Cursor = nil
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req, nil
}

// EncodePageRequest encodes a page control value.
func EncodePageRequest(offset int, searchTerms string) string {
	data, _ := json.Marshal(PageRequest{Offset: offset, SearchTerms: searchTerms})
	return string(data)
}

func pageAction(text string, offset int, searchTerms string) slack.AttachmentAction {
	return slack.AttachmentAction{
		Name:  ActionListChannels,
		Text:  text,
		Type:  "button",
		Value: EncodePageRequest(offset, searchTerms),
	}
}
