package raid

import (
	"errors"
	"fmt"
	"time"

	"github.com/graaaaa/raidlog-companion/internal/items"
)

// ErrNotFinished is returned when compacting a record with no result.
var ErrNotFinished = errors.New("record has no result")

// Compact converts a finished in-flight record into its archived form. The
// entry and exit snapshots and the delta sets are not carried over; only
// the tradeable loadout of the entry snapshot is kept.
func Compact(rec *InFlightRecord, catalog *items.Catalog, archivedAt time.Time) (*ArchivedRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrNotFinished)
	}
	if rec.Result == nil {
		return nil, fmt.Errorf("%w: match %s", ErrNotFinished, rec.MatchID)
	}

	res := *rec.Result
	res.Stats = res.Stats.Pruned()

	return &ArchivedRecord{
		MatchID:    rec.MatchID,
		PlayerID:   rec.PlayerID,
		Side:       rec.Side,
		CreatedAt:  rec.CreatedAt,
		EndedAt:    rec.EndedAt,
		ArchivedAt: archivedAt,
		Totals:     rec.Totals,
		Result:     res,
		Loadout:    Loadout(rec.Entry, catalog),
		Inferred:   rec.Inferred,
	}, nil
}

// Loadout returns the entry items worth presenting later: known item
// prototypes outside the void container and outside non-tradeable slots.
func Loadout(entry items.Snapshot, catalog *items.Catalog) []items.Item {
	list := entry.Items()

	excluded := make(map[string]bool)
	for _, it := range list {
		if items.NonTradeableSlot(it.SlotID) {
			excluded[it.ID] = true
			for _, d := range items.Descendants(list, it.ID) {
				excluded[d.ID] = true
			}
		}
	}

	out := make([]items.Item, 0, len(list))
	for _, it := range list {
		if excluded[it.ID] || it.ParentID == items.VoidParentID || !catalog.IsPrototype(it.Tpl) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Abandon archives a record whose raid end was never observed. A record
// without a result is marked OutcomeAbandoned; its totals are kept as they
// were at entry.
func Abandon(rec *InFlightRecord, catalog *items.Catalog, at time.Time) (*ArchivedRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrNotFinished)
	}
	cp := *rec
	if cp.Result == nil {
		cp.Result = &Result{Outcome: OutcomeAbandoned}
	}
	if cp.EndedAt.IsZero() {
		cp.EndedAt = at
	}
	return Compact(&cp, catalog, at)
}
