// Package lifecycle drives a raid record from raid start to archive.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/graaaaa/raidlog-companion/internal/clock"
	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/profile"
	"github.com/graaaaa/raidlog-companion/internal/raid"
	"github.com/graaaaa/raidlog-companion/internal/records"
	"github.com/graaaaa/raidlog-companion/internal/valuation"
)

// Sentinel errors for the lifecycle package.
var (
	// ErrNoPendingRecord is returned when a raid ends for an account with
	// no raid in progress.
	ErrNoPendingRecord = errors.New("no pending raid record")

	// ErrUnknownPlayer is returned when no account owns the player id.
	ErrUnknownPlayer = errors.New("unknown player")

	// ErrInvalidRequest is returned for payloads missing required fields.
	ErrInvalidRequest = errors.New("invalid raid request")
)

// Directory resolves players to accounts and reads character state.
type Directory interface {
	Resolve(playerID string) (string, bool)
	Refresh(ctx context.Context) error
	Character(ctx context.Context, account string, scav bool) (*profile.Character, error)
}

// RecordStore is the subset of the record store the manager writes through.
type RecordStore interface {
	History(ctx context.Context, account string) *records.History
	Update(ctx context.Context, account string, fn func(*records.History) (*records.History, error)) (*records.History, error)
	FindPending(ctx context.Context, matchID string) (string, bool)
}

// Valuer prices snapshots.
type Valuer interface {
	raid.Valuer
	Quality(it items.Item) float64
	EntryTotals(ctx context.Context, snap items.Snapshot) valuation.Totals
	Catalog() *items.Catalog
}

// ArchiveHook is called after a record has been archived and published.
type ArchiveHook func(account string, rec *raid.ArchivedRecord)

// Manager owns the Idle -> Pending -> Idle cycle of every account.
type Manager struct {
	store  RecordStore
	dir    Directory
	valuer Valuer
	clock  clock.Clock
	logger *slog.Logger
	hooks  []ArchiveHook
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithArchiveHook registers h to run after every archive.
func WithArchiveHook(h ArchiveHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

// New creates a Manager.
func New(store RecordStore, dir Directory, valuer Valuer, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		dir:    dir,
		valuer: valuer,
		clock:  clock.Real,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartRequest is the raid-start payload.
type StartRequest struct {
	PlayerID  string             `json:"playerId"`
	MatchID   string             `json:"matchId"`
	Character *profile.Character `json:"character,omitempty"`
}

// EndRequest is the raid-end payload. PlayerID may be empty; the account
// is then found through the character or the pending match id.
type EndRequest struct {
	PlayerID        string             `json:"playerId,omitempty"`
	MatchID         string             `json:"matchId"`
	Outcome         string             `json:"outcome"`
	ExitName        string             `json:"exitName,omitempty"`
	KillerID        string             `json:"killerId,omitempty"`
	KillerAID       int64              `json:"killerAid,omitempty"`
	PlayTimeSeconds int64              `json:"playTimeSeconds"`
	Stats           *raid.CombatStats  `json:"stats,omitempty"`
	Character       *profile.Character `json:"character,omitempty"`
}

// resolve maps playerID to its account, rebuilding the mapping once when
// the id is unknown so accounts created after startup are picked up.
func (m *Manager) resolve(ctx context.Context, playerID string) (string, bool) {
	if playerID == "" {
		return "", false
	}
	if account, ok := m.dir.Resolve(playerID); ok {
		return account, true
	}
	if err := m.dir.Refresh(ctx); err != nil {
		m.logger.Warn("profile refresh failed", "player", playerID, "error", err)
		return "", false
	}
	return m.dir.Resolve(playerID)
}

// OnRaidStart opens a new in-flight record for the player's account. A
// pending record left by an unobserved raid end is archived first.
func (m *Manager) OnRaidStart(ctx context.Context, req StartRequest) (*raid.InFlightRecord, error) {
	if req.PlayerID == "" || req.MatchID == "" {
		return nil, fmt.Errorf("%w: playerId and matchId are required", ErrInvalidRequest)
	}
	account, ok := m.resolve(ctx, req.PlayerID)
	if !ok {
		m.logger.Warn("raid start for unknown player", "player", req.PlayerID, "match", req.MatchID, "op", "raidStart")
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, req.PlayerID)
	}

	side := raid.SideFromMatchID(req.MatchID)
	char := req.Character
	if char == nil {
		var err error
		char, err = m.dir.Character(ctx, account, side == raid.SideSavage)
		if err != nil {
			m.logger.Warn("entry character unavailable, starting with empty snapshot",
				"account", account, "match", req.MatchID, "op", "raidStart", "error", err)
		}
	}

	entry := CaptureSnapshot(char)
	rec := &raid.InFlightRecord{
		MatchID:   req.MatchID,
		PlayerID:  req.PlayerID,
		Side:      side,
		CreatedAt: m.clock.Now(),
		Entry:     entry,
	}
	if len(entry) > 0 {
		t := m.valuer.EntryTotals(ctx, entry)
		rec.Totals = raid.Totals{EntryValue: t.Entry, LoadoutValue: t.Loadout, SecuredValue: t.Secured}
	}

	var abandoned *raid.ArchivedRecord
	_, err := m.store.Update(ctx, account, func(h *records.History) (*records.History, error) {
		next := h
		if stale := h.Pending; stale != nil {
			m.logger.Warn("raid started with a pending record, archiving it",
				"account", account, "match", stale.MatchID, "new_match", req.MatchID, "op", "raidStart")
			arch, err := raid.Abandon(stale, m.valuer.Catalog(), m.clock.Now())
			if err != nil {
				return nil, err
			}
			next = next.WithArchived(arch)
			abandoned = arch
		}
		return next.WithPending(rec), nil
	})
	if err != nil {
		m.logger.Error("failed to record raid start", "account", account, "match", req.MatchID, "op", "raidStart", "error", err)
		return nil, err
	}

	if abandoned != nil {
		m.notify(account, abandoned)
	}
	m.logger.Info("raid started", "account", account, "match", req.MatchID, "side", side,
		"items", len(entry), "entry_value", rec.Totals.EntryValue)
	return rec, nil
}

func (m *Manager) accountForEnd(ctx context.Context, req EndRequest) (string, bool) {
	if account, ok := m.resolve(ctx, req.PlayerID); ok {
		return account, true
	}
	if req.Character != nil {
		if account, ok := m.resolve(ctx, req.Character.ID); ok {
			return account, true
		}
	}
	return m.store.FindPending(ctx, req.MatchID)
}

// OnRaidEnd finalizes and archives the account's pending record. Calling
// it again without a new raid start returns ErrNoPendingRecord.
func (m *Manager) OnRaidEnd(ctx context.Context, req EndRequest) (*raid.ArchivedRecord, error) {
	outcome, ok := raid.ParseOutcome(req.Outcome)
	if !ok {
		return nil, fmt.Errorf("%w: outcome %q", ErrInvalidRequest, req.Outcome)
	}
	account, ok := m.accountForEnd(ctx, req)
	if !ok {
		m.logger.Warn("raid end for unknown player", "player", req.PlayerID, "match", req.MatchID, "op", "raidEnd")
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, req.PlayerID)
	}

	pending := m.store.History(ctx, account).Pending
	if pending == nil {
		m.logger.Warn("raid end without pending record", "account", account, "match", req.MatchID, "op", "raidEnd")
		return nil, fmt.Errorf("%w: account %s", ErrNoPendingRecord, account)
	}
	if req.MatchID != "" && req.MatchID != pending.MatchID {
		m.logger.Warn("raid end match differs from pending record, finalizing pending",
			"account", account, "match", req.MatchID, "pending_match", pending.MatchID, "op", "raidEnd")
	}

	finished := m.finish(ctx, account, pending, outcome, req)
	arch, err := raid.Compact(finished, m.valuer.Catalog(), m.clock.Now())
	if err != nil {
		return nil, err
	}

	_, err = m.store.Update(ctx, account, func(h *records.History) (*records.History, error) {
		if h.Pending != pending {
			// Another raid end or start won the race.
			return nil, fmt.Errorf("%w: account %s", ErrNoPendingRecord, account)
		}
		return h.WithArchived(arch), nil
	})
	if err != nil {
		m.logger.Warn("failed to archive raid", "account", account, "match", pending.MatchID, "op", "raidEnd", "error", err)
		return nil, err
	}

	m.notify(account, arch)
	m.logger.Info("raid archived", "account", account, "match", arch.MatchID, "outcome", outcome,
		"gross_profit", arch.Totals.GrossProfit, "combat_losses", arch.Totals.CombatLosses, "inferred", arch.Inferred)
	return arch, nil
}

// finish returns a copy of pending with the exit snapshot, delta and
// result filled in.
func (m *Manager) finish(ctx context.Context, account string, pending *raid.InFlightRecord, outcome raid.Outcome, req EndRequest) *raid.InFlightRecord {
	rec := *pending
	rec.EndedAt = m.clock.Now()

	char := req.Character
	if char == nil {
		rec.Inferred = true
		var err error
		char, err = m.dir.Character(ctx, account, pending.Side == raid.SideSavage)
		if err != nil {
			m.logger.Warn("exit character unavailable, using empty snapshot",
				"account", account, "match", pending.MatchID, "op", "raidEnd", "error", err)
		}
	}
	rec.Exit = CaptureSnapshot(char)

	// A dead non-PMC character loses everything it carried.
	if rec.Side == raid.SideSavage && outcome == raid.OutcomeKilled {
		rec.Exit = items.Snapshot{}
	}

	if len(rec.Entry) == 0 && len(rec.Exit) == 0 {
		rec.Totals = raid.Totals{}
	} else {
		d := raid.ComputeDelta(rec.Entry, rec.Exit, m.valuer.Quality)
		rec.Added, rec.Removed, rec.Changed = d.Added, d.Removed, d.Changed
		rec.Totals.GrossProfit, rec.Totals.CombatLosses = raid.Aggregate(ctx, d, rec.Entry, rec.Exit, m.valuer)
	}

	rec.Result = &raid.Result{
		Outcome:         outcome,
		ExitName:        req.ExitName,
		KillerID:        req.KillerID,
		KillerAID:       req.KillerAID,
		PlayTimeSeconds: max(req.PlayTimeSeconds, 0),
		Stats:           req.Stats.Pruned(),
	}
	return &rec
}

func (m *Manager) notify(account string, rec *raid.ArchivedRecord) {
	for _, h := range m.hooks {
		h(account, rec)
	}
}
