package model

import (
	"fmt"
	"testing"
)

func testChannels() []*Channel {
	return []*Channel{
		{ID: "C3", Name: "widgets", Organization: "Acme"},
		{ID: "C1", Name: "alpha", Organization: "Globex"},
		{ID: "C2", Name: "beta", Organization: ""},
		{ID: "C4", Name: "acme-ops", Organization: "Initech"},
	}
}

func ids(chs []*Channel) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = c.ID
	}
	return out
}

func TestSearchTerms(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"acme", "acme"},
		{"  acme   widgets ", "acme|widgets"},
	} {
		if got := SearchTerms(tc.in); got != tc.want {
			t.Errorf("SearchTerms(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilterChannels_Search(t *testing.T) {
	for _, tc := range []struct {
		search string
		want   string
	}{
		{"", "[C4 C1 C2 C3]"},
		{"ACME", "[C4 C3]"},
		{"globex|beta", "[C1 C2]"},
		{"nothing", "[]"},
		{"(unclosed", "[]"},
	} {
		page, total := FilterChannels(testChannels(), ChannelFilter{Search: tc.search})
		if got := fmt.Sprint(ids(page)); got != tc.want {
			t.Errorf("search %q = %s, want %s", tc.search, got, tc.want)
		}
		if total != len(page) {
			t.Errorf("search %q total = %d, want %d", tc.search, total, len(page))
		}
	}
}

func TestFilterChannels_Window(t *testing.T) {
	page, total := FilterChannels(testChannels(), ChannelFilter{Offset: 1, Limit: 2})
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	if got := fmt.Sprint(ids(page)); got != "[C1 C2]" {
		t.Errorf("page = %s", got)
	}

	page, total = FilterChannels(testChannels(), ChannelFilter{Offset: 9, Limit: 5})
	if total != 4 || len(page) != 0 {
		t.Errorf("stale offset: page=%d total=%d", len(page), total)
	}
}

func TestFilterChannels_ReturnsCopies(t *testing.T) {
	chs := testChannels()
	page, _ := FilterChannels(chs, ChannelFilter{})
	page[0].Name = "changed"
	for _, c := range chs {
		if c.Name == "changed" {
			t.Fatal("FilterChannels leaked a reference to its input")
		}
	}
}

func TestFilterPattern_InvalidIsLiteral(t *testing.T) {
	f := ChannelFilter{Search: "a(b"}
	if got := f.Pattern(); got != `a\(b` {
		t.Errorf("Pattern() = %q", got)
	}
	match := f.Matcher()
	if !match(&Channel{Name: "xa(bx"}) {
		t.Error("literal match failed")
	}
}
