// Package raid holds the in-flight and archived raid records, the
// inventory delta engine and the archiver that compacts one into the other.
package raid

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/items"
)

// Side is the combatant faction a raid was played as.
type Side string

const (
	SidePMC    Side = "pmc"
	SideSavage Side = "savage"
)

// SideFromMatchID derives the side from the match id: ids carrying a
// "scav" or "savage" token denote a non-PMC instance.
func SideFromMatchID(matchID string) Side {
	tokens := strings.FieldsFunc(strings.ToLower(matchID), func(r rune) bool {
		switch r {
		case '.', '_', '-', ':', ' ', '/':
			return true
		}
		return false
	})
	for _, tok := range tokens {
		if tok == "scav" || tok == "savage" {
			return SideSavage
		}
	}
	return SidePMC
}

// Outcome is how a raid ended.
type Outcome string

const (
	OutcomeSurvived Outcome = "survived"
	OutcomeKilled   Outcome = "killed"
	OutcomeLeft     Outcome = "left"
	OutcomeMIA      Outcome = "missing_in_action"
	OutcomeRunner   Outcome = "runner"
	OutcomeTransit  Outcome = "transit"

	// OutcomeAbandoned marks a record archived because a new raid started
	// before its end was observed.
	OutcomeAbandoned Outcome = "abandoned"
)

var outcomes = map[string]Outcome{
	"survived":          OutcomeSurvived,
	"killed":            OutcomeKilled,
	"left":              OutcomeLeft,
	"missing_in_action": OutcomeMIA,
	"missinginaction":   OutcomeMIA,
	"runner":            OutcomeRunner,
	"transit":           OutcomeTransit,
	"abandoned":         OutcomeAbandoned,
}

// ParseOutcome accepts the host's spellings case-insensitively.
func ParseOutcome(s string) (Outcome, bool) {
	o, ok := outcomes[strings.ToLower(strings.TrimSpace(s))]
	return o, ok
}

// Survived reports whether the character extracted with its items.
func (o Outcome) Survived() bool {
	return o == OutcomeSurvived || o == OutcomeRunner || o == OutcomeTransit
}

// CombatStats is the post-raid statistics block. The large substructures
// are carried raw until Pruned drops them.
type CombatStats struct {
	Victims         []Victim        `json:"victims,omitempty"`
	Aggressor       *Aggressor      `json:"aggressor,omitempty"`
	LethalBodyPart  string          `json:"lethalBodyPart,omitempty"`
	DeathCause      string          `json:"deathCause,omitempty"`
	TotalExperience int64           `json:"totalExperience,omitempty"`
	SurvivorClass   string          `json:"survivorClass,omitempty"`
	BodyParts       json.RawMessage `json:"bodyParts,omitempty"`
	SessionCounters json.RawMessage `json:"sessionCounters,omitempty"`
	DroppedItems    json.RawMessage `json:"droppedItems,omitempty"`
}

type Victim struct {
	ProfileID string  `json:"profileId,omitempty"`
	Name      string  `json:"name,omitempty"`
	Side      string  `json:"side,omitempty"`
	Weapon    string  `json:"weapon,omitempty"`
	BodyPart  string  `json:"bodyPart,omitempty"`
	Distance  float64 `json:"distance,omitempty"`
}

type Aggressor struct {
	ProfileID string `json:"profileId,omitempty"`
	Name      string `json:"name,omitempty"`
	Side      string `json:"side,omitempty"`
	Weapon    string `json:"weapon,omitempty"`
}

// Pruned returns a copy without the substructures not kept long-term.
func (c *CombatStats) Pruned() *CombatStats {
	if c == nil {
		return nil
	}
	out := *c
	out.Victims = append([]Victim(nil), c.Victims...)
	out.BodyParts = nil
	out.SessionCounters = nil
	out.DroppedItems = nil
	return &out
}

// Result is the final data of a finished raid.
type Result struct {
	Outcome         Outcome      `json:"outcome"`
	ExitName        string       `json:"exitName,omitempty"`
	KillerID        string       `json:"killerId,omitempty"`
	KillerAID       int64        `json:"killerAid,omitempty"`
	PlayTimeSeconds int64        `json:"playTimeSeconds"`
	Stats           *CombatStats `json:"stats,omitempty"`
}

// Totals are the monetary aggregates of a raid.
type Totals struct {
	EntryValue   int64 `json:"entryValue"`
	LoadoutValue int64 `json:"loadoutValue"`
	SecuredValue int64 `json:"securedValue"`
	GrossProfit  int64 `json:"grossProfit"`
	CombatLosses int64 `json:"combatLosses"`
}

// Net is gross profit minus combat losses.
func (t Totals) Net() int64 {
	return t.GrossProfit - t.CombatLosses
}

// InFlightRecord is the raw record of a raid in progress or just ended.
type InFlightRecord struct {
	MatchID   string         `json:"matchId"`
	PlayerID  string         `json:"playerId"`
	Side      Side           `json:"side"`
	CreatedAt time.Time      `json:"createdAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Entry     items.Snapshot `json:"entry"`
	Exit      items.Snapshot `json:"exit,omitempty"`
	Added     []string       `json:"added,omitempty"`
	Removed   []string       `json:"removed,omitempty"`
	Changed   []string       `json:"changed,omitempty"`
	Totals    Totals         `json:"totals"`
	Result    *Result        `json:"result,omitempty"`

	// Inferred is set when the exit snapshot came from stored character
	// state instead of the raid-end payload.
	Inferred bool `json:"inferred,omitempty"`
}

// ArchivedRecord is the compact, permanent form of a finished raid.
type ArchivedRecord struct {
	MatchID    string       `json:"matchId"`
	PlayerID   string       `json:"playerId"`
	Side       Side         `json:"side"`
	CreatedAt  time.Time    `json:"createdAt"`
	EndedAt    time.Time    `json:"endedAt"`
	ArchivedAt time.Time    `json:"archivedAt"`
	Totals     Totals       `json:"totals"`
	Result     Result       `json:"result"`
	Loadout    []items.Item `json:"loadout"`
	Inferred   bool         `json:"inferred,omitempty"`
}
