package records

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// Paging limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Records returns the account's archived records, oldest first. The
// pending record is never included.
func (s *Store) Records(ctx context.Context, account string) []*raid.ArchivedRecord {
	return slices.Clone(s.History(ctx, account).Records)
}

// ByIndex returns the record at i. Negative indexes count from the end.
func (s *Store) ByIndex(ctx context.Context, account string, i int) (*raid.ArchivedRecord, bool) {
	recs := s.History(ctx, account).Records
	if i < 0 {
		i += len(recs)
	}
	if i < 0 || i >= len(recs) {
		return nil, false
	}
	return recs[i], true
}

// ByMatchID returns the archived record of matchID and its index.
func (s *Store) ByMatchID(ctx context.Context, account, matchID string) (*raid.ArchivedRecord, int, bool) {
	recs := s.History(ctx, account).Records
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].MatchID == matchID {
			return recs[i], i, true
		}
	}
	return nil, -1, false
}

// Filter narrows a page query. Zero fields match everything.
type Filter struct {
	Side    raid.Side
	Outcome raid.Outcome
	// Exit is fuzzy-matched against the exit point name.
	Exit  string
	Since time.Time
	Until time.Time
}

func (f Filter) match(r *raid.ArchivedRecord) bool {
	switch {
	case f.Side != "" && r.Side != f.Side:
		return false
	case f.Outcome != "" && r.Result.Outcome != f.Outcome:
		return false
	case !f.Since.IsZero() && r.CreatedAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && !r.CreatedAt.Before(f.Until):
		return false
	}
	return true
}

// PageRequest selects a page. Page is 1-based; zero values take defaults.
type PageRequest struct {
	Page     int
	PageSize int
	Filter   Filter
}

// Entry is a record together with its index in the full history.
type Entry struct {
	Index  int                  `json:"index"`
	Record *raid.ArchivedRecord `json:"record"`
}

// Page is one page of filtered records, oldest first.
type Page struct {
	Items      []Entry `json:"items"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	Total      int     `json:"total"`
	TotalPages int     `json:"totalPages"`
}

// Page returns one page of the account's archived records matching the
// request's filter.
func (s *Store) Page(ctx context.Context, account string, req PageRequest) (Page, error) {
	if req.Page < 0 || req.PageSize < 0 {
		return Page{}, fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, req.Page, req.PageSize)
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	req.PageSize = min(req.PageSize, MaxPageSize)

	matched := filterEntries(s.History(ctx, account).Records, req.Filter)

	p := Page{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      len(matched),
		TotalPages: (len(matched) + req.PageSize - 1) / req.PageSize,
		Items:      []Entry{},
	}
	// Pages past the end are empty; checking first keeps the offset from
	// overflowing.
	if req.Page <= p.TotalPages {
		start := (req.Page - 1) * req.PageSize
		end := min(start+req.PageSize, len(matched))
		p.Items = matched[start:end]
	}
	return p, nil
}

func filterEntries(recs []*raid.ArchivedRecord, f Filter) []Entry {
	var out []Entry
	for i, r := range recs {
		if f.match(r) {
			out = append(out, Entry{Index: i, Record: r})
		}
	}

	pattern := strings.TrimSpace(f.Exit)
	if pattern == "" || len(out) == 0 {
		return out
	}

	names := make([]string, len(out))
	for i, e := range out {
		names[i] = e.Record.Result.ExitName
	}
	matches := fuzzy.Find(pattern, names)

	keep := make([]int, 0, len(matches))
	for _, m := range matches {
		keep = append(keep, m.Index)
	}
	slices.Sort(keep)

	fuzzed := make([]Entry, 0, len(keep))
	for _, i := range keep {
		fuzzed = append(fuzzed, out[i])
	}
	return fuzzed
}
