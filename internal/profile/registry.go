package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// Sentinel errors for the profile package.
var (
	// ErrUnknownAccount is returned when no profile file exists for an account.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrNoCharacter is returned when the requested character is absent.
	ErrNoCharacter = errors.New("character not present")
)

// mapping is the immutable lookup table built by Refresh.
type mapping struct {
	players  map[string]string   // player id -> account id
	accounts map[string][]string // account id -> player ids
}

// Registry maps player identifiers to accounts. The table is rebuilt
// wholesale by Refresh and never patched in place.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu sync.RWMutex
	m  mapping
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry over dir. Call Refresh to populate it.
func NewRegistry(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:    dir,
		logger: slog.Default(),
		m:      mapping{players: map[string]string{}, accounts: map[string][]string{}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh rebuilds the mapping from every profile in the directory.
// Unreadable profiles are logged and skipped. A missing directory yields an
// empty mapping.
func (r *Registry) Refresh(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read profiles dir: %w", err)
	}

	next := mapping{players: map[string]string{}, accounts: map[string][]string{}}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p, err := readProfile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			r.logger.Warn("skipping unreadable profile", "file", e.Name(), "error", err)
			continue
		}
		account := p.Info.ID
		if account == "" {
			account = strings.TrimSuffix(e.Name(), ".json")
		}
		for _, id := range p.playerIDs() {
			if id == "" {
				continue
			}
			if owner, ok := next.players[id]; ok && owner != account {
				r.logger.Warn("player id claimed by two accounts, keeping first",
					"player", id, "account", owner, "other", account)
				continue
			}
			next.players[id] = account
		}
		next.accounts[account] = uniq(append(next.accounts[account], p.playerIDs()...))
	}

	r.mu.Lock()
	r.m = next
	r.mu.Unlock()

	r.logger.Debug("profile mapping rebuilt", "accounts", len(next.accounts), "players", len(next.players))
	return nil
}

// Resolve returns the account owning playerID.
func (r *Registry) Resolve(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.m.players[playerID]
	return account, ok
}

// Accounts returns all known account ids, sorted.
func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m.accounts))
	for id := range r.m.accounts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PlayerIDs returns the identifiers that map to account.
func (r *Registry) PlayerIDs(account string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.m.accounts[account]...)
}

// Character re-reads the account's profile file and returns the scavenger
// character when scav is set, the primary one otherwise.
func (r *Registry) Character(ctx context.Context, account string, scav bool) (*Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := readProfile(filepath.Join(r.dir, account+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	if err != nil {
		return nil, err
	}

	c := p.Characters.PMC
	if scav {
		c = p.Characters.Scav
	}
	if c == nil {
		return nil, fmt.Errorf("%w: account %s scav=%v", ErrNoCharacter, account, scav)
	}
	return c, nil
}

func readProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", filepath.Base(path), err)
	}
	return &p, nil
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
