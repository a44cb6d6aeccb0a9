// Package records is the per-account raid history store: an in-memory
// cache of immutable histories backed by one JSON file per account.
package records

import (
	"slices"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// History is one account's raid history. Values are never modified after
// publication; the With* methods return new values.
type History struct {
	AccountID string
	// Records holds archived raids, oldest first.
	Records []*raid.ArchivedRecord
	// Pending is the raid in progress, if any.
	Pending *raid.InFlightRecord
}

func emptyHistory(account string) *History {
	return &History{AccountID: account}
}

// Len returns the number of archived records.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Records)
}

// WithPending returns a copy of h holding p as the pending record.
func (h *History) WithPending(p *raid.InFlightRecord) *History {
	cp := *h
	cp.Pending = p
	return &cp
}

// WithArchived returns a copy of h with rec appended and no pending record.
func (h *History) WithArchived(rec *raid.ArchivedRecord) *History {
	cp := *h
	cp.Records = append(slices.Clip(h.Records), rec)
	cp.Pending = nil
	return &cp
}
