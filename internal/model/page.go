package model

// PageSize is the number of channels shown per listing page.
const PageSize = 5

// Window describes one page of a paginated listing.
type Window struct {
	Start      int  // index of the first row on the page
	End        int  // index one past the last row on the page
	HasPrev    bool // a previous-page control should be offered
	HasNext    bool // a next-page control should be offered
	PrevOffset int
	NextOffset int
}

// Empty reports whether the page holds no rows.
func (w Window) Empty() bool {
	return w.End <= w.Start
}

// Paginate computes the page starting at offset over total rows.
// The previous-page control depends only on offset, so a stale offset past
// the end still links back; the next-page control is offered only while rows
// remain after the page.
func Paginate(offset, pageSize, total int) Window {
	if offset < 0 {
		offset = 0
	}
	if pageSize <= 0 {
		pageSize = PageSize
	}
	w := Window{Start: offset, End: offset + pageSize}
	if w.Start > total {
		w.Start = total
	}
	if w.End > total {
		w.End = total
	}
	if offset > 0 {
		w.HasPrev = true
		w.PrevOffset = offset - pageSize
		if w.PrevOffset < 0 {
			w.PrevOffset = 0
		}
	}
	if offset+pageSize < total {
		w.HasNext = true
		w.NextOffset = offset + pageSize
	}
	return w
}
