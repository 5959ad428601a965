package model

import (
	"regexp"
	"sort"
	"strings"
)

// ChannelFilter holds criteria for scanning channels.
type ChannelFilter struct {
	Search string `json:"search,omitempty"` // case-insensitive expression over name and organization
	Limit  int    `json:"limit,omitempty"`  // 0 = no limit
	Offset int    `json:"offset,omitempty"`
}

// SearchTerms turns free text such as "acme widgets" into the alternation
// "acme|widgets" used as a filter expression.
func SearchTerms(text string) string {
	return strings.Join(strings.Fields(text), "|")
}

// Pattern returns the expression the filter matches, or "" when the filter
// matches everything. Search text that does not compile is matched literally.
func (f ChannelFilter) Pattern() string {
	s := strings.TrimSpace(f.Search)
	if s == "" {
		return ""
	}
	if _, err := regexp.Compile(s); err != nil {
		return regexp.QuoteMeta(s)
	}
	return s
}

// Matcher returns a predicate equivalent to the filter's search expression.
func (f ChannelFilter) Matcher() func(*Channel) bool {
	p := f.Pattern()
	if p == "" {
		return func(*Channel) bool { return true }
	}
	re := regexp.MustCompile("(?i)" + p)
	return func(c *Channel) bool {
		return re.MatchString(c.Name) || re.MatchString(c.Organization)
	}
}

// Window returns the [start, end) bounds of the filter's page over total rows.
func (f ChannelFilter) Window(total int) (int, int) {
	start := f.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return start, end
}

// SortChannels orders channels by name, then id, the listing order shared by
// every store backend.
func SortChannels(chs []*Channel) {
	sort.SliceStable(chs, func(i, j int) bool {
		if chs[i].Name != chs[j].Name {
			return chs[i].Name < chs[j].Name
		}
		return chs[i].ID < chs[j].ID
	})
}

// FilterChannels applies f to chs in memory and returns the page plus the
// total number of matches. chs is not modified.
func FilterChannels(chs []*Channel, f ChannelFilter) ([]*Channel, int) {
	match := f.Matcher()
	var matched []*Channel
	for _, c := range chs {
		if match(c) {
			matched = append(matched, c)
		}
	}
	SortChannels(matched)
	start, end := f.Window(len(matched))
	page := make([]*Channel, 0, end-start)
	for _, c := range matched[start:end] {
		page = append(page, c.Clone())
	}
	return page, len(matched)
}
