package valuation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/graaaaa/raidlog-companion/internal/items"
)

// Quality returns the condition factor of it.
func (s *Service) Quality(it items.Item) float64 {
	return s.catalog.Quality(it)
}

// IsLoadout reports whether tpl counts toward the loadout subtotal.
func (s *Service) IsLoadout(tpl string) bool {
	return s.catalog.IsLoadout(tpl)
}

// ValueOf returns price × quality × stack size for it, rounded to a whole
// currency unit and floored at zero. Items in non-tradeable slots and pocket
// containers are worth nothing.
func (s *Service) ValueOf(ctx context.Context, it items.Item) int64 {
	if items.NonTradeableSlot(it.SlotID) {
		return 0
	}
	if s.catalog.ParentOf(it.Tpl) == items.BasePockets {
		return 0
	}

	price := s.PriceOf(ctx, it.Tpl)
	if price <= 0 {
		return 0
	}
	v := decimal.NewFromInt(price).
		Mul(decimal.NewFromFloat(s.Quality(it))).
		Mul(decimal.NewFromInt(it.StackCount())).
		Round(0).IntPart()
	if v < 0 {
		return 0
	}
	return v
}

// ValueOfAll sums ValueOf over list, skipping void-parented items.
func (s *Service) ValueOfAll(ctx context.Context, list []items.Item) int64 {
	var total int64
	for _, it := range list {
		if it.ParentID == items.VoidParentID {
			continue
		}
		total += s.ValueOf(ctx, it)
	}
	return total
}

// Totals holds the entry-time subtotals of a snapshot.
type Totals struct {
	Entry   int64
	Loadout int64
	Secured int64
}

// EntryTotals values snap as a whole, its loadout pieces, and the contents
// of the secure container.
func (s *Service) EntryTotals(ctx context.Context, snap items.Snapshot) Totals {
	list := snap.Items()

	var t Totals
	t.Entry = s.ValueOfAll(ctx, list)

	var loadout []items.Item
	for _, it := range list {
		if s.IsLoadout(it.Tpl) {
			loadout = append(loadout, it)
		}
	}
	t.Loadout = s.ValueOfAll(ctx, loadout)

	for _, it := range list {
		if it.SlotID == items.SlotSecuredContainer {
			t.Secured += s.ValueOfAll(ctx, items.Descendants(list, it.ID))
		}
	}
	return t
}
