package records

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

type staticDirectory map[string][]string

func (d staticDirectory) Accounts() []string {
	out := make([]string, 0, len(d))
	for a := range d {
		out = append(out, a)
	}
	return out
}

func (d staticDirectory) PlayerIDs(account string) []string { return d[account] }

var base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func archived(match string, minutes int, outcome raid.Outcome, exit string) *raid.ArchivedRecord {
	return &raid.ArchivedRecord{
		MatchID:   match,
		PlayerID:  "pmc1",
		Side:      raid.SideFromMatchID(match),
		CreatedAt: base.Add(time.Duration(minutes) * time.Minute),
		Totals:    raid.Totals{EntryValue: 1000, GrossProfit: int64(minutes), CombatLosses: 5},
		Result:    raid.Result{Outcome: outcome, ExitName: exit},
	}
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, staticDirectory{"sess1": {"sess1", "pmc1", "scav1"}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func writeFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func appendRecord(t *testing.T, s *Store, account string, rec *raid.ArchivedRecord) {
	t.Helper()
	_, err := s.Update(context.Background(), account, func(h *History) (*History, error) {
		return h.WithArchived(rec), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestHistory_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)

	h := s.History(context.Background(), "sess1")
	if h.Len() != 0 || h.Pending != nil || h.AccountID != "sess1" {
		t.Errorf("history = %+v", h)
	}
	if _, err := os.Stat(filepath.Join(dir, "sess1.json")); !os.IsNotExist(err) {
		t.Error("reading must not create a file")
	}
}

func TestUpdate_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()

	rec := archived("factory.pmc.1", 0, raid.OutcomeSurvived, "Gate 3")
	appendRecord(t, s, "sess1", rec)

	// A fresh store reads the same aggregates back from disk.
	s2 := openStore(t, dir)
	got, ok := s2.ByIndex(ctx, "sess1", 0)
	if !ok {
		t.Fatal("record not persisted")
	}
	if got.Totals != rec.Totals || got.Result.ExitName != "Gate 3" {
		t.Errorf("reloaded = %+v", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.SchemaVersion != FileSchemaVersion || f.AccountID != "sess1" || f.Pending != nil {
		t.Errorf("file = %+v", f)
	}
}

func TestUpdate_ErrorAndNoopDoNotWrite(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()

	boom := errors.New("boom")
	if _, err := s.Update(ctx, "sess1", func(h *History) (*History, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if _, err := s.Update(ctx, "sess1", func(h *History) (*History, error) { return h, nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sess1.json")); !os.IsNotExist(err) {
		t.Error("unchanged history should not be written")
	}
}

func TestHistory_CorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess1.json")

	for i, wantBackup := range []string{path + ".err", path + ".err.1", path + ".err.2"} {
		if err := os.WriteFile(path, []byte("{broken"), 0600); err != nil {
			t.Fatal(err)
		}
		s := openStore(t, dir)
		h := s.History(context.Background(), "sess1")
		if h.Len() != 0 {
			t.Errorf("round %d: expected empty history", i)
		}
		if _, err := os.Stat(wantBackup); err != nil {
			t.Errorf("round %d: backup %s missing: %v", i, filepath.Base(wantBackup), err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("round %d: corrupt file should be gone", i)
		}
	}
}

func TestHistory_InvalidSlotIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess1.json")
	writeFile(t, path, map[string]any{
		"schemaVersion": FileSchemaVersion,
		"accountId":     "sess1",
		"records":       []map[string]any{{}},
	})

	s := openStore(t, dir)
	if s.History(context.Background(), "sess1").Len() != 0 {
		t.Error("expected empty history")
	}
	if _, err := os.Stat(path + CorruptSuffix); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}

func TestHistory_LegacySameNameMigrated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sess1.json")
	writeFile(t, path, []raid.Wire{
		{Archive: archived("m1", 0, raid.OutcomeSurvived, "A")},
		{Info: &raid.InFlightRecord{MatchID: "m2", CreatedAt: base.Add(10 * time.Minute)}},
		{Archive: archived("m3", 20, raid.OutcomeKilled, "")},
		{Info: &raid.InFlightRecord{MatchID: "m4", CreatedAt: base.Add(30 * time.Minute)}},
	})

	s := openStore(t, dir)
	h := s.History(context.Background(), "sess1")

	if h.Len() != 3 {
		t.Fatalf("records = %d, want 3", h.Len())
	}
	if h.Records[1].MatchID != "m2" || h.Records[1].Result.Outcome != raid.OutcomeAbandoned {
		t.Errorf("stray in-flight not archived: %+v", h.Records[1])
	}
	if h.Pending == nil || h.Pending.MatchID != "m4" {
		t.Errorf("trailing in-flight should be pending, got %+v", h.Pending)
	}
	if _, err := os.Stat(path + MigratedSuffix); err != nil {
		t.Errorf("legacy file not moved aside: %v", err)
	}

	// The rewritten file parses in the current format.
	data, _ := os.ReadFile(path)
	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil || f.SchemaVersion != FileSchemaVersion {
		t.Errorf("rewritten file: %v %+v", err, f)
	}
}

func TestHistory_LegacyPlayerFileMigrated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pmc1.json"), []raid.Wire{
		{Archive: archived("m2", 10, raid.OutcomeSurvived, "")},
	})
	writeFile(t, filepath.Join(dir, "scav1.json"), []raid.Wire{
		{Archive: archived("bigmap.scav.1", 5, raid.OutcomeKilled, "")},
	})
	if err := os.WriteFile(filepath.Join(dir, "bogus.json"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	s := openStore(t, dir)
	h := s.History(context.Background(), "sess1")
	if h.Len() != 2 {
		t.Fatalf("records = %d, want 2", h.Len())
	}
	if h.Records[0].MatchID != "bigmap.scav.1" {
		t.Errorf("records should be ordered by creation, got %s first", h.Records[0].MatchID)
	}
	for _, name := range []string{"pmc1.json.migrated", "scav1.json.migrated", "sess1.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestOpen_Degraded(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(filepath.Join(blocker, "records"), staticDirectory{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !s.Degraded() {
		t.Error("store should be degraded")
	}

	ctx := context.Background()
	if s.History(ctx, "a").Len() != 0 {
		t.Error("degraded history should be empty")
	}
	_, err = s.Update(ctx, "a", func(h *History) (*History, error) {
		return h.WithArchived(archived("m", 0, raid.OutcomeSurvived, "")), nil
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Update err = %v", err)
	}
	if len(s.Records(ctx, "a")) != 0 {
		t.Error("dropped write must not be visible")
	}
}

func TestConcurrentReadsSeeWholeHistories(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()

	const writes = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range writes {
			rec := archived("m", i, raid.OutcomeSurvived, "")
			rec.Totals.GrossProfit = int64(i)
			if _, err := s.Update(ctx, "sess1", func(h *History) (*History, error) {
				return h.WithArchived(rec), nil
			}); err != nil {
				t.Errorf("Update: %v", err)
				return
			}
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for last < writes {
				h := s.History(ctx, "sess1")
				n := h.Len()
				if n < last {
					t.Errorf("history shrank from %d to %d", last, n)
					return
				}
				for i, r := range h.Records {
					if r == nil || r.Totals.GrossProfit != int64(i) {
						t.Errorf("torn history at %d", i)
						return
					}
				}
				last = n
			}
		}()
	}
	wg.Wait()
}

func TestReloadAndPurge(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()

	appendRecord(t, s, "sess1", archived("m1", 0, raid.OutcomeSurvived, ""))

	s.Reload("sess1")
	if s.History(ctx, "sess1").Len() != 1 {
		t.Error("reload should read the file back")
	}

	if err := s.Purge(ctx, "sess1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if s.History(ctx, "sess1").Len() != 0 {
		t.Error("purged account should be empty")
	}
	if _, err := os.Stat(filepath.Join(dir, "sess1.json")); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
	if err := s.Purge(ctx, "sess1"); err != nil {
		t.Errorf("second purge: %v", err)
	}
}

func TestStore_RejectsPathLikeAccounts(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "records")
	s := openStore(t, dir)
	ctx := context.Background()

	victim := filepath.Join(root, "victim.json")
	if err := os.WriteFile(victim, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, account := range []string{"../victim", `..\victim`, "a/b", "..", ".", "", "c:victim"} {
		if h := s.History(ctx, account); h.Len() != 0 || h.Pending != nil {
			t.Errorf("History(%q) = %+v", account, h)
		}
		if _, err := s.Update(ctx, account, func(h *History) (*History, error) {
			return h.WithArchived(archived("m1", 0, raid.OutcomeSurvived, "")), nil
		}); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("Update(%q) error = %v, want ErrInvalidAccount", account, err)
		}
		if err := s.Save(ctx, account); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidAccount", account, err)
		}
		if err := s.Purge(ctx, account); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("Purge(%q) error = %v, want ErrInvalidAccount", account, err)
		}
	}

	if _, err := os.Stat(victim); err != nil {
		t.Errorf("file outside the record directory was touched: %v", err)
	}
	if matches, _ := filepath.Glob(filepath.Join(root, "victim.json.*")); len(matches) != 0 {
		t.Errorf("unexpected backups: %v", matches)
	}
	s.mu.RLock()
	n := len(s.cache)
	s.mu.RUnlock()
	if n != 0 {
		t.Errorf("rejected ids were cached: %d entries", n)
	}
}

func TestSave_WaitsForAccountLock(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()
	appendRecord(t, s, "sess1", archived("m1", 0, raid.OutcomeSurvived, ""))

	l := s.lockFor("sess1")
	l.Lock()
	done := make(chan error, 1)
	go func() { done <- s.Save(ctx, "sess1") }()

	select {
	case <-done:
		t.Fatal("Save ran while an update held the account lock")
	case <-time.After(50 * time.Millisecond):
	}
	l.Unlock()
	if err := <-done; err != nil {
		t.Errorf("Save: %v", err)
	}
}

func TestCompactAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sess1.json"), []raid.Wire{
		{Info: &raid.InFlightRecord{MatchID: "a"}},
		{Info: &raid.InFlightRecord{MatchID: "b"}},
	})

	s := openStore(t, dir)
	stats, err := s.CompactAll(context.Background())
	if err != nil {
		t.Fatalf("CompactAll: %v", err)
	}
	if stats != (CompactStats{Accounts: 1, Records: 1, Pending: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFindPending(t *testing.T) {
	s := openStore(t, t.TempDir())
	ctx := context.Background()

	_, err := s.Update(ctx, "sess1", func(h *History) (*History, error) {
		return h.WithPending(&raid.InFlightRecord{MatchID: "live"}), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if account, ok := s.FindPending(ctx, "live"); !ok || account != "sess1" {
		t.Errorf("FindPending = %q, %v", account, ok)
	}
	if _, ok := s.FindPending(ctx, "other"); ok {
		t.Error("unknown match should not be found")
	}
	if len(s.Records(ctx, "sess1")) != 0 {
		t.Error("pending record must not appear in queries")
	}
}
