package lifecycle

import (
	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/profile"
)

// CaptureSnapshot returns everything the character carries below its
// equipment root. Quest raid items are included under the void parent so
// they are tracked but never valued. A nil character yields an empty
// snapshot.
func CaptureSnapshot(c *profile.Character) items.Snapshot {
	if c == nil {
		return items.Snapshot{}
	}
	inv := c.Inventory
	snap := items.NewSnapshot(items.Descendants(inv.Items, inv.Equipment))

	if inv.QuestRaidItems != "" {
		for _, it := range items.Descendants(inv.Items, inv.QuestRaidItems) {
			it.ParentID = items.VoidParentID
			snap[it.ID] = it
		}
	}
	return snap
}
