package platform

import (
	"context"
	"net/http"

	"github.com/slack-go/slack"
)

// SlackClient implements Client. Channel management runs with the user
// token; messages to users and dialogs go through the bot token.
type SlackClient struct {
	user *slack.Client
	bot  *slack.Client
}

// Compile-time check that SlackClient implements Client.
var _ Client = (*SlackClient)(nil)

// NewSlackClient creates a client from the user and bot tokens. Options are
// applied to both underlying API clients.
func NewSlackClient(userToken, botToken string, opts ...slack.Option) *SlackClient {
	return &SlackClient{
		user: slack.New(userToken, opts...),
		bot:  slack.New(botToken, opts...),
	}
}

func conversationFrom(ch *slack.Channel) *Conversation {
	return &Conversation{
		ID:         ch.ID,
		Name:       ch.Name,
		Topic:      ch.Topic.Value,
		Purpose:    ch.Purpose.Value,
		Created:    int64(ch.Created),
		IsArchived: ch.IsArchived,
	}
}

func conversationsFrom(chs []slack.Channel) []Conversation {
	out := make([]Conversation, 0, len(chs))
	for i := range chs {
		out = append(out, *conversationFrom(&chs[i]))
	}
	return out
}

func (c *SlackClient) CreatePrivateChannel(ctx context.Context, name string) (*Conversation, error) {
	ch, err := c.user.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   true,
	})
	if err != nil {
		return nil, wrapErr("conversations.create", err)
	}
	return conversationFrom(ch), nil
}

func (c *SlackClient) InviteUsers(ctx context.Context, channelID string, userIDs ...string) error {
	_, err := c.user.InviteUsersToConversationContext(ctx, channelID, userIDs...)
	return wrapErr("conversations.invite", err)
}

func (c *SlackClient) SetTopic(ctx context.Context, channelID, topic string) error {
	_, err := c.user.SetTopicOfConversationContext(ctx, channelID, topic)
	return wrapErr("conversations.setTopic", err)
}

func (c *SlackClient) SetPurpose(ctx context.Context, channelID, purpose string) error {
	_, err := c.user.SetPurposeOfConversationContext(ctx, channelID, purpose)
	return wrapErr("conversations.setPurpose", err)
}

func (c *SlackClient) LeaveChannel(ctx context.Context, channelID string) error {
	_, err := c.user.LeaveConversationContext(ctx, channelID)
	return wrapErr("conversations.leave", err)
}

func (c *SlackClient) ArchiveChannel(ctx context.Context, channelID string) error {
	return wrapErr("conversations.archive", c.user.ArchiveConversationContext(ctx, channelID))
}

func (c *SlackClient) KickUser(ctx context.Context, channelID, userID string) error {
	return wrapErr("conversations.kick", c.user.KickUserFromConversationContext(ctx, channelID, userID))
}

func (c *SlackClient) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := c.bot.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, wrapErr("users.info", err)
	}
	return &User{ID: u.ID, Name: u.Name, IsBot: u.IsBot || u.IsAppUser}, nil
}

func (c *SlackClient) GetConversation(ctx context.Context, channelID string) (*Conversation, error) {
	ch, err := c.user.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return nil, wrapErr("conversations.info", err)
	}
	return conversationFrom(ch), nil
}

func (c *SlackClient) ListPrivateChannels(ctx context.Context, cursor string, limit int) ([]Conversation, string, error) {
	chs, next, err := c.user.GetConversationsContext(ctx, &slack.GetConversationsParameters{
		Cursor:          cursor,
		ExcludeArchived: true,
		Limit:           limit,
		Types:           []string{"private_channel"},
	})
	if err != nil {
		return nil, "", wrapErr("conversations.list", err)
	}
	return conversationsFrom(chs), next, nil
}

func (c *SlackClient) ListUserPrivateChannels(ctx context.Context, userID, cursor string) ([]Conversation, string, error) {
	chs, next, err := c.user.GetConversationsForUserContext(ctx, &slack.GetConversationsForUserParameters{
		UserID:          userID,
		Cursor:          cursor,
		ExcludeArchived: true,
		Types:           []string{"private_channel"},
	})
	if err != nil {
		return nil, "", wrapErr("users.conversations", err)
	}
	return conversationsFrom(chs), next, nil
}

func msgOptions(msg slack.Msg) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(msg.Attachments...))
	}
	return opts
}

func (c *SlackClient) PostMessage(ctx context.Context, channelID string, msg slack.Msg) error {
	_, _, err := c.bot.PostMessageContext(ctx, channelID, msgOptions(msg)...)
	return wrapErr("chat.postMessage", err)
}

func (c *SlackClient) PostChannelMessage(ctx context.Context, channelID string, msg slack.Msg) error {
	_, _, err := c.user.PostMessageContext(ctx, channelID, msgOptions(msg)...)
	return wrapErr("chat.postMessage", err)
}

func (c *SlackClient) OpenDialog(ctx context.Context, triggerID string, dialog slack.Dialog) error {
	return wrapErr("dialog.open", c.bot.OpenDialogContext(ctx, triggerID, dialog))
}

func (c *SlackClient) Respond(ctx context.Context, responseURL string, msg slack.Msg) error {
	err := slack.PostWebhookContext(ctx, responseURL, &slack.WebhookMessage{
		Text:            msg.Text,
		Attachments:     msg.Attachments,
		ResponseType:    msg.ResponseType,
		ReplaceOriginal: msg.ReplaceOriginal,
	})
	return wrapErr("response_url", err)
}

// ExchangeOAuthCode completes an app installation.
func ExchangeOAuthCode(ctx context.Context, clientID, clientSecret, code string) (*slack.OAuthV2Response, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, http.DefaultClient, clientID, clientSecret, code, "")
	if err != nil {
		return nil, wrapErr("oauth.v2.access", err)
	}
	return resp, nil
}
