package records

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// FileSchemaVersion is the version written to every history file.
// Version 1 is the legacy bare slot list.
const FileSchemaVersion = 2

type historyFile struct {
	SchemaVersion int         `json:"schemaVersion"`
	AccountID     string      `json:"accountId"`
	Records       []raid.Wire `json:"records"`
	Pending       *raid.Wire  `json:"pending"`
}

func encodeHistory(h *History) historyFile {
	f := historyFile{
		SchemaVersion: FileSchemaVersion,
		AccountID:     h.AccountID,
		Records:       make([]raid.Wire, 0, len(h.Records)),
	}
	for _, r := range h.Records {
		f.Records = append(f.Records, raid.Wrap(r))
	}
	if h.Pending != nil {
		w := raid.Wrap(h.Pending)
		f.Pending = &w
	}
	return f
}

// decoder turns file content into a History, healing slots that break the
// archived-sequence invariant.
type decoder struct {
	catalog *items.Catalog
	now     time.Time
	healed  int
}

// decode parses data in the current format, falling back to the legacy
// bare list. legacy reports which one matched.
func (d *decoder) decode(account string, data []byte) (h *History, legacy bool, err error) {
	h, curErr := d.decodeCurrent(account, data)
	if curErr == nil {
		return h, false, nil
	}
	h, legErr := d.decodeLegacy(account, data)
	if legErr == nil {
		return h, true, nil
	}
	return nil, false, fmt.Errorf("%w: current: %v; legacy: %v", errUnknownFormat, curErr, legErr)
}

func (d *decoder) decodeCurrent(account string, data []byte) (*History, error) {
	var f historyFile
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, err
	}
	if f.SchemaVersion != FileSchemaVersion {
		return nil, fmt.Errorf("schema version %d", f.SchemaVersion)
	}
	return d.fromWires(account, f.Records, f.Pending)
}

func (d *decoder) decodeLegacy(account string, data []byte) (*History, error) {
	var wires []raid.Wire
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&wires); err != nil {
		return nil, err
	}
	return d.fromWires(account, wires, nil)
}

// fromWires builds a history from persisted slots. In-flight slots inside
// the sequence are archived as abandoned, except a trailing one when no
// explicit pending slot exists, which becomes the pending record.
func (d *decoder) fromWires(account string, wires []raid.Wire, pending *raid.Wire) (*History, error) {
	h := emptyHistory(account)

	if pending != nil {
		s, err := pending.Slot()
		if err != nil {
			return nil, fmt.Errorf("pending: %w", err)
		}
		switch r := s.(type) {
		case *raid.InFlightRecord:
			h.Pending = r
		case *raid.ArchivedRecord:
			// An archived record never belongs in the pending slot.
			wires = append(wires, raid.Wrap(r))
			d.healed++
		}
	}

	for i, w := range wires {
		s, err := w.Slot()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		switch r := s.(type) {
		case *raid.ArchivedRecord:
			h.Records = append(h.Records, r)
		case *raid.InFlightRecord:
			if i == len(wires)-1 && h.Pending == nil {
				h.Pending = r
				continue
			}
			arch, err := raid.Abandon(r, d.catalog, d.now)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			h.Records = append(h.Records, arch)
			d.healed++
		}
	}
	return h, nil
}
