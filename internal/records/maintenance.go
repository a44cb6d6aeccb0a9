package records

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// compactConcurrency bounds the number of accounts CompactAll loads at once.
const compactConcurrency = 4

// CompactStats summarizes a CompactAll run.
type CompactStats struct {
	Accounts int
	Records  int
	Pending  int
}

// CompactAll loads every known account, migrating legacy files and
// archiving stray in-flight records on the way, and rewrites each file in
// the current format.
func (s *Store) CompactAll(ctx context.Context) (CompactStats, error) {
	accounts := s.Accounts()
	results := make([]*History, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compactConcurrency)
	for i, account := range accounts {
		g.Go(func() error {
			h := s.History(gctx, account)
			if err := s.Save(gctx, account); err != nil {
				return err
			}
			results[i] = h
			return nil
		})
	}
	err := g.Wait()

	var stats CompactStats
	for _, h := range results {
		if h == nil {
			continue
		}
		stats.Accounts++
		stats.Records += h.Len()
		if h.Pending != nil {
			stats.Pending++
		}
	}
	s.logger.Info("compacted histories", "accounts", stats.Accounts, "records", stats.Records, "error", err)
	return stats, err
}

// FindPending returns the account whose pending record has matchID.
func (s *Store) FindPending(ctx context.Context, matchID string) (string, bool) {
	if matchID == "" {
		return "", false
	}
	s.mu.RLock()
	for account, h := range s.cache {
		if h.Pending != nil && h.Pending.MatchID == matchID {
			s.mu.RUnlock()
			return account, true
		}
	}
	s.mu.RUnlock()

	for _, account := range s.Accounts() {
		if ctx.Err() != nil {
			return "", false
		}
		h := s.History(ctx, account)
		if h.Pending != nil && h.Pending.MatchID == matchID {
			return account, true
		}
	}
	return "", false
}

func sortByCreated(recs []*raid.ArchivedRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
