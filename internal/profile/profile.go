// Package profile reads the host's profile directory and maps player
// identifiers to the account that owns them.
package profile

import (
	"github.com/graaaaa/raidlog-companion/internal/items"
)

// Profile is one <session>.json file in the host's profile directory.
type Profile struct {
	Info       Info       `json:"info"`
	Characters Characters `json:"characters"`
}

// Info identifies the account. ID is the session id.
type Info struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Characters holds the primary and the scavenger character.
type Characters struct {
	PMC  *Character `json:"pmc"`
	Scav *Character `json:"scav"`
}

// Character is the subset of character state the record core reads.
type Character struct {
	ID        string        `json:"_id"`
	AID       int64         `json:"aid"`
	Info      CharacterInfo `json:"Info"`
	Inventory Inventory     `json:"Inventory"`
}

type CharacterInfo struct {
	Nickname string `json:"Nickname"`
	Side     string `json:"Side"`
}

// Inventory is the flat item list plus the ids of its well-known containers.
type Inventory struct {
	Items          []items.Item `json:"items"`
	Equipment      string       `json:"equipment"`
	Stash          string       `json:"stash,omitempty"`
	QuestRaidItems string       `json:"questRaidItems,omitempty"`
}

// playerIDs returns every identifier that may appear in a raid payload for
// this profile.
func (p *Profile) playerIDs() []string {
	ids := []string{p.Info.ID}
	for _, c := range []*Character{p.Characters.PMC, p.Characters.Scav} {
		if c != nil && c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
