package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/items"
)

// Dump file names read by ImportDir.
const (
	TemplatesFile = "items.json"
	HandbookFile  = "handbook.json"
	OffersFile    = "offers.json"
)

const metadataKeyLastImport = "last_import_at"

// ImportStats reports how many rows each dump contributed.
type ImportStats struct {
	Templates int
	Handbook  int
	Offers    int
}

// ImportDir loads whichever dumps exist in dir. Offers replace the whole
// offers table; templates and handbook prices are upserted.
func (s *Store) ImportDir(ctx context.Context, dir string) (ImportStats, error) {
	var stats ImportStats

	if data, ok, err := readDump(dir, TemplatesFile); err != nil {
		return stats, err
	} else if ok {
		templates, err := decodeTemplates(data)
		if err != nil {
			return stats, fmt.Errorf("%s: %w", TemplatesFile, err)
		}
		if stats.Templates, err = s.UpsertTemplates(ctx, templates); err != nil {
			return stats, err
		}
	}

	if data, ok, err := readDump(dir, HandbookFile); err != nil {
		return stats, err
	} else if ok {
		var hb struct {
			Items []HandbookEntry `json:"Items"`
		}
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&hb); err != nil {
			return stats, fmt.Errorf("%s: %w", HandbookFile, err)
		}
		if stats.Handbook, err = s.UpsertHandbook(ctx, hb.Items); err != nil {
			return stats, err
		}
	}

	if data, ok, err := readDump(dir, OffersFile); err != nil {
		return stats, err
	} else if ok {
		var offers []Offer
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&offers); err != nil {
			return stats, fmt.Errorf("%s: %w", OffersFile, err)
		}
		if err := s.ReplaceAllOffers(ctx, offers); err != nil {
			return stats, err
		}
		stats.Offers = len(offers)
	}

	if err := s.setMetadata(ctx, metadataKeyLastImport, s.now().UTC().Format(TimeFormat)); err != nil {
		s.logger.Warn("failed to record import time", "error", err)
	}
	s.logger.Info("market data imported", "dir", dir,
		"templates", stats.Templates, "handbook", stats.Handbook, "offers", stats.Offers)
	return stats, nil
}

func readDump(dir, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return data, true, nil
}

// decodeTemplates accepts the host's id-keyed object or a plain list.
func decodeTemplates(data []byte) ([]items.Template, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []items.Template
		err := json.Unmarshal(trimmed, &list)
		return list, err
	}

	var byID map[string]items.Template
	if err := json.Unmarshal(trimmed, &byID); err != nil {
		return nil, err
	}
	list := make([]items.Template, 0, len(byID))
	for id, t := range byID {
		if t.ID == "" {
			t.ID = id
		}
		list = append(list, t)
	}
	return list, nil
}
