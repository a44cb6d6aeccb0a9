package raid

import (
	"context"
	"math"
	"sort"

	"github.com/graaaaa/raidlog-companion/internal/items"
)

// QualityEpsilon is the smallest quality change that classifies an item as
// changed.
const QualityEpsilon = 1e-9

// Delta classifies item instance ids between two snapshots. Each list is
// sorted.
type Delta struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether nothing was added, removed or changed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ComputeDelta compares entry and exit by instance id. Ids present in both
// are changed only when their quality differs by more than QualityEpsilon.
func ComputeDelta(entry, exit items.Snapshot, quality func(items.Item) float64) Delta {
	var d Delta
	for id, before := range entry {
		after, ok := exit[id]
		if !ok {
			d.Removed = append(d.Removed, id)
			continue
		}
		if math.Abs(quality(after)-quality(before)) > QualityEpsilon {
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range exit {
		if _, ok := entry[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

// Valuer values a single item instance.
type Valuer interface {
	ValueOf(ctx context.Context, it items.Item) int64
}

// Aggregate returns the gross profit and combat losses of d. Changed items
// contribute their value difference to whichever side it favours, so both
// results are non-negative. Void-parented items are ignored.
func Aggregate(ctx context.Context, d Delta, entry, exit items.Snapshot, v Valuer) (gross, losses int64) {
	value := func(it items.Item) int64 {
		if it.ParentID == items.VoidParentID {
			return 0
		}
		return max(v.ValueOf(ctx, it), 0)
	}

	for _, id := range d.Added {
		gross += value(exit[id])
	}
	for _, id := range d.Removed {
		losses += value(entry[id])
	}
	for _, id := range d.Changed {
		before, after := value(entry[id]), value(exit[id])
		switch {
		case after > before:
			gross += after - before
		case before > after:
			losses += before - after
		}
	}
	return gross, losses
}
