package raid

import (
	"errors"
	"fmt"
)

// ErrInvalidSlot is returned when a persisted slot holds both record forms
// or neither.
var ErrInvalidSlot = errors.New("invalid record slot")

// Slot is either an *InFlightRecord or an *ArchivedRecord.
type Slot interface {
	Match() string
	isSlot()
}

func (r *InFlightRecord) Match() string { return r.MatchID }
func (r *ArchivedRecord) Match() string { return r.MatchID }

func (*InFlightRecord) isSlot() {}
func (*ArchivedRecord) isSlot() {}

// Wire is the persisted form of a Slot. Exactly one field is set.
type Wire struct {
	Info    *InFlightRecord `json:"info,omitempty"`
	Archive *ArchivedRecord `json:"archive,omitempty"`
}

// Wrap converts s to its persisted form.
func Wrap(s Slot) Wire {
	switch r := s.(type) {
	case *InFlightRecord:
		return Wire{Info: r}
	case *ArchivedRecord:
		return Wire{Archive: r}
	}
	return Wire{}
}

// Slot validates w and returns the record it holds.
func (w Wire) Slot() (Slot, error) {
	switch {
	case w.Info != nil && w.Archive != nil:
		return nil, fmt.Errorf("%w: both forms set (match %s)", ErrInvalidSlot, w.Info.MatchID)
	case w.Info != nil:
		return w.Info, nil
	case w.Archive != nil:
		return w.Archive, nil
	}
	return nil, fmt.Errorf("%w: empty", ErrInvalidSlot)
}
