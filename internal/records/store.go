package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/graaaaa/raidlog-companion/internal/clock"
	"github.com/graaaaa/raidlog-companion/internal/fsutil"
	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// Backup suffixes for files the store moves aside.
const (
	CorruptSuffix  = ".err"
	MigratedSuffix = ".migrated"
)

// AccountDirectory lists known accounts and the player ids mapping to them.
type AccountDirectory interface {
	Accounts() []string
	PlayerIDs(account string) []string
}

// Store caches one *History per account. Cache entries are swapped whole
// under mu; writers of one account are serialized by that account's lock.
type Store struct {
	dir      string
	accounts AccountDirectory
	catalog  *items.Catalog
	clock    clock.Clock
	logger   *slog.Logger
	degraded bool

	mu    sync.RWMutex
	cache map[string]*History

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source used when healing stray records.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithCatalog sets the catalog used to build loadouts of records archived
// during load.
func WithCatalog(c *items.Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

// Open creates dir if needed and returns a store over it. If the directory
// cannot be created the store is still returned, in degraded mode, along
// with an error wrapping ErrStoreUnavailable.
func Open(dir string, accounts AccountDirectory, opts ...Option) (*Store, error) {
	s := &Store{
		dir:      dir,
		accounts: accounts,
		clock:    clock.Real,
		logger:   slog.Default(),
		cache:    make(map[string]*History),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		s.degraded = true
		s.logger.Error("record directory unavailable, history will not be persisted",
			"dir", dir, "error", err)
		return s, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

// Degraded reports whether the store is running without a record directory.
func (s *Store) Degraded() bool {
	return s.degraded
}

// Dir returns the record directory.
func (s *Store) Dir() string {
	return s.dir
}

// Accounts lists every account known to the account directory.
func (s *Store) Accounts() []string {
	return s.accounts.Accounts()
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// validName reports whether name stays a plain file name inside the
// record directory once ".json" is appended.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\:`)
}

func (s *Store) lockFor(account string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[account]
	if !ok {
		l = &sync.Mutex{}
		s.locks[account] = l
	}
	return l
}

func (s *Store) cached(account string) *History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[account]
}

func (s *Store) publish(account string, h *History) {
	s.mu.Lock()
	s.cache[account] = h
	s.mu.Unlock()
}

// History returns the account's history, loading it on a cache miss. A
// missing file yields an empty history; a corrupt one is moved aside to a
// .err backup and replaced by an empty history.
func (s *Store) History(ctx context.Context, account string) *History {
	if !validName(account) {
		s.logger.Warn("rejected account id", "account", account, "op", "load")
		return emptyHistory(account)
	}
	if h := s.cached(account); h != nil {
		return h
	}
	if s.degraded {
		return emptyHistory(account)
	}

	l := s.lockFor(account)
	l.Lock()
	defer l.Unlock()
	return s.loadLocked(ctx, account)
}

// loadLocked returns the cached history or loads it. The account lock must
// be held.
func (s *Store) loadLocked(ctx context.Context, account string) *History {
	if h := s.cached(account); h != nil {
		return h
	}
	h := s.load(ctx, account)
	s.publish(account, h)
	return h
}

func (s *Store) load(ctx context.Context, account string) *History {
	path := s.path(account)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return s.loadFile(ctx, account, path, data)
	case !errors.Is(err, os.ErrNotExist):
		s.logger.Error("failed to read history, serving empty",
			"account", account, "op", "load", "path", path, "error", err)
		return emptyHistory(account)
	}

	return s.migrateLegacyFiles(ctx, account)
}

func (s *Store) loadFile(ctx context.Context, account, path string, data []byte) *History {
	d := &decoder{catalog: s.catalog, now: s.clock.Now()}
	h, legacy, err := d.decode(account, data)
	if err != nil {
		s.quarantine(account, path, err)
		return emptyHistory(account)
	}

	if legacy {
		if _, err := fsutil.MoveAside(path, MigratedSuffix); err != nil {
			s.logger.Warn("failed to move legacy history aside",
				"account", account, "op", "migrate", "path", path, "error", err)
		}
		s.logger.Info("migrated legacy history", "account", account, "records", h.Len())
	}
	if legacy || d.healed > 0 {
		if d.healed > 0 {
			s.logger.Warn("archived stray in-flight records", "account", account, "count", d.healed)
		}
		_ = s.save(ctx, h)
	}
	return h
}

// migrateLegacyFiles looks for legacy files named by the account's player
// ids and merges them into one history.
func (s *Store) migrateLegacyFiles(ctx context.Context, account string) *History {
	merged := emptyHistory(account)
	found := false

	for _, player := range s.accounts.PlayerIDs(account) {
		if player == account || !validName(player) {
			continue
		}
		path := s.path(player)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		d := &decoder{catalog: s.catalog, now: s.clock.Now()}
		h, err := d.decodeLegacy(account, data)
		if err != nil {
			s.quarantine(account, path, err)
			continue
		}
		found = true
		merged.Records = append(merged.Records, h.Records...)
		if h.Pending != nil {
			if merged.Pending != nil {
				// Two characters cannot both be in a raid; keep the newer one.
				older, newer := merged.Pending, h.Pending
				if newer.CreatedAt.Before(older.CreatedAt) {
					older, newer = newer, older
				}
				if arch, err := raid.Abandon(older, s.catalog, s.clock.Now()); err == nil {
					merged.Records = append(merged.Records, arch)
				}
				merged.Pending = newer
			} else {
				merged.Pending = h.Pending
			}
		}
		if _, err := fsutil.MoveAside(path, MigratedSuffix); err != nil {
			s.logger.Warn("failed to move legacy history aside",
				"account", account, "op", "migrate", "path", path, "error", err)
		}
		s.logger.Info("migrated legacy history", "account", account, "player", player, "records", h.Len())
	}

	if found {
		sortByCreated(merged.Records)
		_ = s.save(ctx, merged)
	}
	return merged
}

// quarantine moves an unreadable file to a free .err backup.
func (s *Store) quarantine(account, path string, cause error) {
	backup, err := fsutil.MoveAside(path, CorruptSuffix)
	if err != nil {
		s.logger.Error("corrupt history could not be moved aside",
			"account", account, "op", "load", "path", path, "cause", cause, "error", err)
		return
	}
	s.logger.Warn("corrupt history moved aside, serving empty",
		"account", account, "op", "load", "backup", backup, "error", cause)
}

// Save writes the cached history of account to its file. It holds the
// account lock so a concurrent Update never has its newer file replaced.
func (s *Store) Save(ctx context.Context, account string) error {
	if !validName(account) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	l := s.lockFor(account)
	l.Lock()
	defer l.Unlock()

	h := s.cached(account)
	if h == nil {
		return nil
	}
	return s.save(ctx, h)
}

func (s *Store) save(ctx context.Context, h *History) error {
	if s.degraded {
		s.logger.Warn("dropping history write, store unavailable", "account", h.AccountID, "op", "save")
		return ErrStoreUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fsutil.WriteJSONAtomic(s.path(h.AccountID), encodeHistory(h)); err != nil {
		s.logger.Error("failed to save history", "account", h.AccountID, "op", "save", "error", err)
		return fmt.Errorf("save %s: %w", h.AccountID, err)
	}
	return nil
}

// Update applies fn to the account's history and publishes the result
// before persisting it. fn must not modify its argument. Returning the
// argument unchanged skips the write. Persist failures are logged, not
// returned: the cache stays authoritative for the process lifetime.
func (s *Store) Update(ctx context.Context, account string, fn func(*History) (*History, error)) (*History, error) {
	if !validName(account) {
		return emptyHistory(account), fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	if s.degraded {
		s.logger.Warn("dropping history update, store unavailable", "account", account, "op", "update")
		return emptyHistory(account), ErrStoreUnavailable
	}

	l := s.lockFor(account)
	l.Lock()
	defer l.Unlock()

	cur := s.loadLocked(ctx, account)
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if next == nil || next == cur {
		return cur, nil
	}
	next.AccountID = account

	s.publish(account, next)
	_ = s.save(ctx, next)
	return next, nil
}

// Reload drops the cached history so the next read loads it from disk.
func (s *Store) Reload(account string) {
	if !validName(account) {
		return
	}
	l := s.lockFor(account)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.cache, account)
	s.mu.Unlock()
}

// Purge deletes the account's file and cache entry.
func (s *Store) Purge(ctx context.Context, account string) error {
	if !validName(account) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	l := s.lockFor(account)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.cache, account)
	s.mu.Unlock()

	if s.degraded {
		return ErrStoreUnavailable
	}
	if err := os.Remove(s.path(account)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("purge %s: %w", account, err)
	}
	s.logger.Info("purged history", "account", account)
	return nil
}
