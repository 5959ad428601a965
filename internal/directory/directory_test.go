package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/slack-go/slack"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/platform"
	"github.com/alfredjeanlab/chanbot/internal/platform/platformtest"
	"github.com/alfredjeanlab/chanbot/internal/store/filestore"
)

func newTestStore(t *testing.T, names ...string) *filestore.FileStore {
	t.Helper()
	s, err := filestore.New(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	for i, name := range names {
		c := &model.Channel{
			ID: fmt.Sprintf("G%02d", i), Name: name, CreatedAt: 100,
			ExpiresAt: 100 + model.SecondsPerDay, Topic: "topic " + name,
		}
		if _, err := s.InsertChannel(context.Background(), c); err != nil {
			t.Fatalf("InsertChannel: %v", err)
		}
	}
	return s
}

func controls(msg slack.Msg) []slack.AttachmentAction {
	for _, a := range msg.Attachments {
		if a.CallbackID == CallbackMenu {
			return a.Actions
		}
	}
	return nil
}

func entries(msg slack.Msg) []string {
	var out []string
	for _, a := range msg.Attachments {
		if a.CallbackID == CallbackJoinChannel {
			out = append(out, a.Title)
		}
	}
	return out
}

func TestList_SevenRecords(t *testing.T) {
	ctx := context.Background()
	svc := New(newTestStore(t, "a1", "a2", "a3", "a4", "a5", "a6", "a7"), nil)

	first, err := svc.List(ctx, 0, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	msg := first.Message()
	if got := entries(msg); fmt.Sprint(got) != "[#a1 #a2 #a3 #a4 #a5]" {
		t.Errorf("first page entries = %v", got)
	}
	acts := controls(msg)
	if len(acts) != 1 || acts[0].Text != "Next page" {
		t.Fatalf("first page controls = %+v", acts)
	}
	req, err := ParsePageRequest(acts[0].Value)
	if err != nil || req.Offset != 5 || req.SearchTerms != "" {
		t.Errorf("next control = %+v, %v", req, err)
	}

	second, err := svc.List(ctx, 5, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	msg = second.Message()
	if got := entries(msg); fmt.Sprint(got) != "[#a6 #a7]" {
		t.Errorf("second page entries = %v", got)
	}
	acts = controls(msg)
	if len(acts) != 1 || acts[0].Text != "Prev page" {
		t.Fatalf("second page controls = %+v", acts)
	}
	req, _ = ParsePageRequest(acts[0].Value)
	if req.Offset != 0 {
		t.Errorf("prev control offset = %d, want 0", req.Offset)
	}
}

func TestList_FitsOnePage(t *testing.T) {
	svc := New(newTestStore(t, "a", "b", "c"), nil)
	l, err := svc.List(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	msg := l.Message()
	if msg.Text != ListingHeader {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.Attachments) != 3 || controls(msg) != nil {
		t.Errorf("got %d attachments, controls %v", len(msg.Attachments), controls(msg))
	}
}

func TestList_StaleOffset(t *testing.T) {
	svc := New(newTestStore(t, "a", "b", "c"), nil)
	l, err := svc.List(context.Background(), 5, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !l.Window.Empty() || l.Window.HasNext || !l.Window.HasPrev || l.Window.PrevOffset != 0 {
		t.Fatalf("window = %+v", l.Window)
	}
	acts := controls(l.Message())
	if len(acts) != 1 || acts[0].Text != "Prev page" {
		t.Errorf("controls = %+v", acts)
	}
}

func TestList_NoMatches(t *testing.T) {
	svc := New(newTestStore(t, "alpha"), nil)
	l, err := svc.List(context.Background(), 0, "zzz")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	msg := l.Message()
	if msg.Text != NoMatchesText || len(msg.Attachments) != 0 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestList_SearchCarriedInControls(t *testing.T) {
	svc := New(newTestStore(t, "acme1", "acme2", "acme3", "acme4", "acme5", "acme6", "other"), nil)
	l, err := svc.List(context.Background(), 0, "ACME|nothing")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if l.Total != 6 {
		t.Fatalf("total = %d, want 6", l.Total)
	}
	acts := controls(l.Message())
	req, _ := ParsePageRequest(acts[0].Value)
	if req.SearchTerms != "ACME|nothing" {
		t.Errorf("search terms = %q", req.SearchTerms)
	}
}

func TestChannelEntry(t *testing.T) {
	a := channelEntry(&model.Channel{ID: "G1", Name: "alpha", Topic: "t", Purpose: "p", CreatedAt: 42})
	if a.Title != "#alpha" || a.Text != "_t_\np" || a.Footer != "Date created" || a.Ts.String() != "42" {
		t.Errorf("entry = %+v", a)
	}
	if len(a.Actions) != 2 {
		t.Fatalf("actions = %+v", a.Actions)
	}
	if a.Actions[0].Name != ActionJoinChannel || a.Actions[0].Confirm != nil {
		t.Errorf("join action = %+v", a.Actions[0])
	}
	archive := a.Actions[1]
	if archive.Name != ActionArchiveChannel || archive.Confirm == nil || archive.Confirm.Title != "Archive #alpha" {
		t.Errorf("archive action = %+v", archive)
	}
}

func TestEntryText(t *testing.T) {
	for _, tc := range []struct{ topic, purpose, want string }{
		{"t", "p", "_t_\np"},
		{"t", "", "_t_"},
		{"", "p", "p"},
		{"", "", ""},
	} {
		if got := EntryText(tc.topic, tc.purpose); got != tc.want {
			t.Errorf("EntryText(%q, %q) = %q, want %q", tc.topic, tc.purpose, got, tc.want)
		}
	}
}

func TestParsePageRequest(t *testing.T) {
	for _, tc := range []struct {
		value      string
		wantOffset int
		wantTerms  string
		wantErr    bool
	}{
		{"", 0, "", false},
		{`{"offset":10,"searchTerms":"a|b"}`, 10, "a|b", false},
		{`{"cursor":5,"searchTerms":""}`, 5, "", false},
		{`{"offset":-3}`, 0, "", false},
		{`not json`, 0, "", true},
	} {
		got, err := ParsePageRequest(tc.value)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePageRequest(%q) err = %v", tc.value, err)
			continue
		}
		if got.Offset != tc.wantOffset || got.SearchTerms != tc.wantTerms {
			t.Errorf("ParsePageRequest(%q) = %+v", tc.value, got)
		}
	}
}

func TestListUnmanaged(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, "managed")
	fake := platformtest.New()
	// G00 is the managed channel inserted by newTestStore.
	fake.AddChannel(platform.Conversation{ID: "G00", Name: "c00"})
	for i := 1; i <= 7; i++ {
		fake.AddChannel(platform.Conversation{ID: fmt.Sprintf("X%02d", i), Name: fmt.Sprintf("c%02d", i)})
	}
	svc := New(st, fake)
	svc.batch = 3

	first, err := svc.ListUnmanaged(ctx, Position{})
	if err != nil {
		t.Fatalf("ListUnmanaged: %v", err)
	}
	var ids []string
	for _, c := range first.Channels {
		ids = append(ids, c.ID)
	}
	if fmt.Sprint(ids) != "[X01 X02 X03 X04 X05]" {
		t.Fatalf("first page = %v", ids)
	}
	if first.Next == nil {
		t.Fatal("expected a next position")
	}

	second, err := svc.ListUnmanaged(ctx, *first.Next)
	if err != nil {
		t.Fatalf("ListUnmanaged: %v", err)
	}
	ids = nil
	for _, c := range second.Channels {
		ids = append(ids, c.ID)
	}
	if fmt.Sprint(ids) != "[X06 X07]" || second.Next != nil {
		t.Fatalf("second page = %v next %+v", ids, second.Next)
	}
	msg := second.Message()
	last := msg.Attachments[len(msg.Attachments)-1]
	if last.CallbackID != CallbackAdmin || len(last.Actions) != 1 || last.Actions[0].Text != "First page" {
		t.Errorf("controls = %+v", last)
	}
}

func TestListUnmanaged_NoneLeft(t *testing.T) {
	fake := platformtest.New()
	fake.AddChannel(platform.Conversation{ID: "G00", Name: "managed"})
	svc := New(newTestStore(t, "managed"), fake)

	page, err := svc.ListUnmanaged(context.Background(), Position{})
	if err != nil {
		t.Fatalf("ListUnmanaged: %v", err)
	}
	if msg := page.Message(); msg.Text != NoUnmanagedText {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestListUnmanaged_PlatformError(t *testing.T) {
	fake := platformtest.New()
	fake.FailWith("conversations.list", "ratelimited")
	svc := New(newTestStore(t), fake)
	if _, err := svc.ListUnmanaged(context.Background(), Position{}); platform.Code(err) != "ratelimited" {
		t.Errorf("err = %v", err)
	}
}
