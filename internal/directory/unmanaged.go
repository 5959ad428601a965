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
)

// UnmanagedBatch is how many private channels are requested per platform call.
const UnmanagedBatch = 100

// Position is an exact place in the platform's private channel listing: the
// platform cursor of a batch and the index inside that batch.
type Position struct {
	APICursor string `json:"api_cursor"`
	SubOffset int    `json:"sub_offset"`
}

// IsStart reports whether p is the beginning of the listing.
func (p Position) IsStart() bool {
	return p.APICursor == "" && p.SubOffset == 0
}

// ParsePosition decodes an unmanaged page control value.
func ParsePosition(value string) (Position, error) {
	var p Position
	if strings.TrimSpace(value) == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return Position{}, fmt.Errorf("decode position: %w", err)
	}
	if p.SubOffset < 0 {
		p.SubOffset = 0
	}
	return p, nil
}

// Encode returns p as a page control value.
func (p Position) Encode() string {
	data, _ := json.Marshal(p)
	return string(data)
}

// UnmanagedPage is one page of private channels without a record.
type UnmanagedPage struct {
	Channels []platform.Conversation
	From     Position
	// Next is where the following page starts, or nil at the end.
	Next *Position
}

// ListUnmanaged walks the platform's private channels from pos and collects
// up to model.PageSize channels that have no record in the store.
func (s *Service) ListUnmanaged(ctx context.Context, pos Position) (*UnmanagedPage, error) {
	if s.platform == nil {
		return nil, fmt.Errorf("list unmanaged: no platform client")
	}
	managed, err := s.managedIDs(ctx)
	if err != nil {
		return nil, err
	}

	page := &UnmanagedPage{From: pos}
	cursor, sub := pos.APICursor, pos.SubOffset
	for {
		chs, next, err := s.platform.ListPrivateChannels(ctx, cursor, s.batch)
		if err != nil {
			return nil, fmt.Errorf("list private channels: %w", err)
		}
		i := sub
		for ; i < len(chs) && len(page.Channels) < model.PageSize; i++ {
			if !managed[chs[i].ID] {
				page.Channels = append(page.Channels, chs[i])
			}
		}
		if len(page.Channels) == model.PageSize {
			switch {
			case i < len(chs):
				page.Next = &Position{APICursor: cursor, SubOffset: i}
			case next != "":
				page.Next = &Position{APICursor: next}
			}
			return page, nil
		}
		if next == "" {
			return page, nil
		}
		cursor, sub = next, 0
	}
}

func (s *Service) managedIDs(ctx context.Context) (map[string]bool, error) {
	chs, _, err := s.store.ListChannels(ctx, model.ChannelFilter{})
	if err != nil {
		return nil, fmt.Errorf("list managed channels: %w", err)
	}
	ids := make(map[string]bool, len(chs))
	for _, c := range chs {
		ids[c.ID] = true
	}
	return ids, nil
}

// Message renders the page as a chat message.
func (p *UnmanagedPage) Message() slack.Msg {
	if len(p.Channels) == 0 {
		return slack.Msg{Text: NoUnmanagedText}
	}

	attachments := make([]slack.Attachment, 0, len(p.Channels)+1)
	for _, c := range p.Channels {
		attachments = append(attachments, slack.Attachment{
			Title:      "#" + c.Name,
			Text:       EntryText(c.Topic, c.Purpose),
			CallbackID: CallbackUnmanaged,
			Actions: []slack.AttachmentAction{{
				Name:  ActionAddManager,
				Text:  "Add Channel Manager",
				Type:  "button",
				Style: "primary",
				Value: c.ID,
			}},
			Footer:     "Date created",
			Ts:         json.Number(strconv.FormatInt(c.Created, 10)),
			MarkdownIn: []string{"text"},
		})
	}

	var actions []slack.AttachmentAction
	if !p.From.IsStart() {
		actions = append(actions, slack.AttachmentAction{
			Name:  ActionListUnmanaged,
			Text:  "First page",
			Type:  "button",
			Value: Position{}.Encode(),
		})
	}
	if p.Next != nil {
		actions = append(actions, slack.AttachmentAction{
			Name:  ActionListUnmanaged,
			Text:  "Next page",
			Type:  "button",
			Value: p.Next.Encode(),
		})
	}
	if len(actions) > 0 {
		attachments = append(attachments, slack.Attachment{
			Text:       MoreText,
			CallbackID: CallbackAdmin,
			Actions:    actions,
		})
	}
	return slack.Msg{Text: UnmanagedHeader, Attachments: attachments}
}
