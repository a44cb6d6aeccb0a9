// Package items models item instances, template metadata and the base-class
// sets used to classify them.
package items

import (
	"sort"

	json "github.com/goccy/go-json"
)

// VoidParentID marks items that are carried but must never be valued.
const VoidParentID = "void"

// Item is a single item instance as the host serializes it.
type Item struct {
	ID       string          `json:"_id"`
	Tpl      string          `json:"_tpl"`
	ParentID string          `json:"parentId,omitempty"`
	SlotID   string          `json:"slotId,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
	Upd      *Upd            `json:"upd,omitempty"`
}

// Upd holds the mutable per-instance state.
type Upd struct {
	StackObjectsCount int64       `json:"StackObjectsCount,omitempty"`
	Repairable        *Repairable `json:"Repairable,omitempty"`
	MedKit            *MedKit     `json:"MedKit,omitempty"`
	FoodDrink         *FoodDrink  `json:"FoodDrink,omitempty"`
	Resource          *Resource   `json:"Resource,omitempty"`
	Key               *Key        `json:"Key,omitempty"`
}

type Repairable struct {
	Durability    float64 `json:"Durability"`
	MaxDurability float64 `json:"MaxDurability"`
}

type MedKit struct {
	HpResource float64 `json:"HpResource"`
}

type FoodDrink struct {
	HpPercent float64 `json:"HpPercent"`
}

type Resource struct {
	Value float64 `json:"Value"`
}

type Key struct {
	NumberOfUsages int `json:"NumberOfUsages"`
}

// StackCount returns the stack size, at least 1.
func (it Item) StackCount() int64 {
	if it.Upd == nil || it.Upd.StackObjectsCount < 1 {
		return 1
	}
	return it.Upd.StackObjectsCount
}

// Snapshot maps item instance id to the item.
type Snapshot map[string]Item

// NewSnapshot indexes list by instance id. Later duplicates win.
func NewSnapshot(list []Item) Snapshot {
	s := make(Snapshot, len(list))
	for _, it := range list {
		if it.ID == "" {
			continue
		}
		s[it.ID] = it
	}
	return s
}

// Items returns the snapshot as a slice ordered by instance id.
func (s Snapshot) Items() []Item {
	out := make([]Item, 0, len(s))
	for _, it := range s {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Descendants returns every item below rootID in list, excluding the root.
// Order follows a breadth-first walk; cycles are ignored.
func Descendants(list []Item, rootID string) []Item {
	children := make(map[string][]Item)
	for _, it := range list {
		if it.ParentID != "" {
			children[it.ParentID] = append(children[it.ParentID], it)
		}
	}

	var out []Item
	seen := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range children[id] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out
}
