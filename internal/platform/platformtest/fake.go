// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/platform"
)

// Post is a message recorded by Fake.
type Post struct {
	Channel string
	Msg     slack.Msg
	AsUser  bool // posted through PostChannelMessage
}

// Fake records calls and serves channels and users from memory. Errors maps
// an API method name such as "conversations.archive" to the error code that
// call fails with.
type Fake struct {
	mu sync.Mutex

	Channels   map[string]*platform.Conversation
	Users      map[string]*platform.User
	Members    map[string][]string // channel id -> member user ids
	Errors     map[string]string
	Calls      []string
	Posts      []Post
	Responses  []slack.Msg
	Dialogs    []slack.Dialog
	Kicked     []string
	NextID     int
	NowCreated int64

	gates map[string]chan struct{}
}

var _ platform.Client = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Channels: make(map[string]*platform.Conversation),
		Users:    make(map[string]*platform.User),
		Members:  make(map[string][]string),
		Errors:   make(map[string]string),
	}
}

// FailWith makes every call of method fail with code.
func (f *Fake) FailWith(method, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[method] = code
}

// AddUser registers a user account.
func (f *Fake) AddUser(id string, isBot bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[id] = &platform.User{ID: id, Name: strings.ToLower(id), IsBot: isBot}
}

// AddChannel registers an existing private channel.
func (f *Fake) AddChannel(c platform.Conversation, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := c
	f.Channels[c.ID] = &cp
	f.Members[c.ID] = append(f.Members[c.ID], members...)
}

// Block makes calls of method wait until release is called. Only
// users.info and conversations.create honor it.
func (f *Fake) Block(method string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	if f.gates == nil {
		f.gates = make(map[string]chan struct{})
	}
	f.gates[method] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, method)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Fake) wait(method string) {
	f.mu.Lock()
	ch := f.gates[method]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// ResponseLog returns a copy of the recorded response URL messages.
func (f *Fake) ResponseLog() []slack.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]slack.Msg(nil), f.Responses...)
}

// CallCount returns how often method was called.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// CallLog returns a copy of the recorded method names.
func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// PostLog returns a copy of the recorded posts.
func (f *Fake) PostLog() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.Posts...)
}

// call records method and returns its configured failure. Callers hold mu.
func (f *Fake) call(method string) error {
	f.Calls = append(f.Calls, method)
	if code, ok := f.Errors[method]; ok {
		return &platform.Error{Op: method, Code: code, Err: fmt.Errorf("%s", code)}
	}
	return nil
}

func (f *Fake) CreatePrivateChannel(_ context.Context, name string) (*platform.Conversation, error) {
	f.wait("conversations.create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.create"); err != nil {
		return nil, err
	}
	for _, c := range f.Channels {
		if c.Name == name {
			return nil, &platform.Error{Op: "conversations.create", Code: platform.CodeNameTaken}
		}
	}
	f.NextID++
	c := &platform.Conversation{ID: fmt.Sprintf("G%03d", f.NextID), Name: name, Created: f.NowCreated}
	f.Channels[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *Fake) InviteUsers(_ context.Context, channelID string, userIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.invite"); err != nil {
		return err
	}
	if _, ok := f.Channels[channelID]; !ok {
		return &platform.Error{Op: "conversations.invite", Code: platform.CodeChannelNotFound}
	}
	f.Members[channelID] = append(f.Members[channelID], userIDs...)
	return nil
}

func (f *Fake) SetTopic(_ context.Context, channelID, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.setTopic"); err != nil {
		return err
	}
	if c, ok := f.Channels[channelID]; ok {
		c.Topic = topic
	}
	return nil
}

func (f *Fake) SetPurpose(_ context.Context, channelID, purpose string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.setPurpose"); err != nil {
		return err
	}
	if c, ok := f.Channels[channelID]; ok {
		c.Purpose = purpose
	}
	return nil
}

func (f *Fake) LeaveChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.call("conversations.leave")
}

func (f *Fake) ArchiveChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.archive"); err != nil {
		return err
	}
	c, ok := f.Channels[channelID]
	if !ok {
		return &platform.Error{Op: "conversations.archive", Code: platform.CodeChannelNotFound}
	}
	if c.IsArchived {
		return &platform.Error{Op: "conversations.archive", Code: platform.CodeAlreadyArchived}
	}
	c.IsArchived = true
	return nil
}

func (f *Fake) KickUser(_ context.Context, channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.kick"); err != nil {
		return err
	}
	f.Kicked = append(f.Kicked, channelID+"/"+userID)
	return nil
}

func (f *Fake) GetUser(_ context.Context, userID string) (*platform.User, error) {
	f.wait("users.info")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("users.info"); err != nil {
		return nil, err
	}
	u, ok := f.Users[userID]
	if !ok {
		return nil, &platform.Error{Op: "users.info", Code: platform.CodeUserNotFound}
	}
	cp := *u
	return &cp, nil
}

func (f *Fake) GetConversation(_ context.Context, channelID string) (*platform.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.info"); err != nil {
		return nil, err
	}
	c, ok := f.Channels[channelID]
	if !ok {
		return nil, &platform.Error{Op: "conversations.info", Code: platform.CodeChannelNotFound}
	}
	cp := *c
	return &cp, nil
}

// page returns chs[cursor:cursor+limit] with the cursor encoded as the
// decimal start index.
func page(chs []platform.Conversation, cursor string, limit int) ([]platform.Conversation, string) {
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &start)
	}
	if start > len(chs) {
		start = len(chs)
	}
	end := len(chs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	next := ""
	if end < len(chs) {
		next = fmt.Sprint(end)
	}
	return chs[start:end], next
}

func (f *Fake) sortedChannels(keep func(*platform.Conversation) bool) []platform.Conversation {
	var out []platform.Conversation
	for _, c := range f.Channels {
		if !c.IsArchived && keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *Fake) ListPrivateChannels(_ context.Context, cursor string, limit int) ([]platform.Conversation, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("conversations.list"); err != nil {
		return nil, "", err
	}
	chs, next := page(f.sortedChannels(func(*platform.Conversation) bool { return true }), cursor, limit)
	return chs, next, nil
}

func (f *Fake) ListUserPrivateChannels(_ context.Context, userID, cursor string) ([]platform.Conversation, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("users.conversations"); err != nil {
		return nil, "", err
	}
	member := func(c *platform.Conversation) bool {
		for _, u := range f.Members[c.ID] {
			if u == userID {
				return true
			}
		}
		return false
	}
	chs, next := page(f.sortedChannels(member), cursor, 2)
	return chs, next, nil
}

func (f *Fake) PostMessage(_ context.Context, channelID string, msg slack.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("chat.postMessage"); err != nil {
		return err
	}
	f.Posts = append(f.Posts, Post{Channel: channelID, Msg: msg})
	return nil
}

func (f *Fake) PostChannelMessage(_ context.Context, channelID string, msg slack.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("chat.postMessage"); err != nil {
		return err
	}
	if c, ok := f.Channels[channelID]; ok && c.IsArchived {
		return &platform.Error{Op: "chat.postMessage", Code: platform.CodeIsArchived}
	}
	f.Posts = append(f.Posts, Post{Channel: channelID, Msg: msg, AsUser: true})
	return nil
}

func (f *Fake) OpenDialog(_ context.Context, triggerID string, dialog slack.Dialog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("dialog.open"); err != nil {
		return err
	}
	f.Dialogs = append(f.Dialogs, dialog)
	return nil
}

func (f *Fake) Respond(_ context.Context, responseURL string, msg slack.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("response_url"); err != nil {
		return err
	}
	f.Responses = append(f.Responses, msg)
	return nil
}
