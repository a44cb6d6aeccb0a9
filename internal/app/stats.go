package app

import (
	"context"

	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// StatsResult aggregates an account's archived raids.
type StatsResult struct {
	Account      string  `json:"account"`
	Raids        int     `json:"raids"`
	Survived     int     `json:"survived"`
	Killed       int     `json:"killed"`
	SurvivalRate float64 `json:"survivalRate"`
	Kills        int     `json:"kills"`
	GrossProfit  int64   `json:"grossProfit"`
	CombatLosses int64   `json:"combatLosses"`
	Net          int64   `json:"net"`
	PlayTimeSec  int64   `json:"playTimeSeconds"`
	LastMatchID  string  `json:"lastMatchId,omitempty"`
}

// StatsUsecase defines the interface for stats operations.
type StatsUsecase interface {
	AccountStats(ctx context.Context, id string) (*StatsResult, error)
}

// StatsStore defines the record access needed for stats.
type StatsStore interface {
	Records(ctx context.Context, account string) []*raid.ArchivedRecord
}

// StatsService implements StatsUsecase.
type StatsService struct {
	store    StatsStore
	accounts AccountResolver
}

// NewStatsService creates a new StatsService.
func NewStatsService(store StatsStore, accounts AccountResolver) *StatsService {
	return &StatsService{store: store, accounts: accounts}
}

// AccountStats aggregates every archived record of the account.
func (s *StatsService) AccountStats(ctx context.Context, id string) (*StatsResult, error) {
	account, err := resolveAccount(s.accounts, id)
	if err != nil {
		return nil, err
	}

	res := &StatsResult{Account: account}
	for _, r := range s.store.Records(ctx, account) {
		res.Raids++
		switch {
		case r.Result.Outcome.Survived():
			res.Survived++
		case r.Result.Outcome == raid.OutcomeKilled:
			res.Killed++
		}
		if r.Result.Stats != nil {
			res.Kills += len(r.Result.Stats.Victims)
		}
		res.GrossProfit += r.Totals.GrossProfit
		res.CombatLosses += r.Totals.CombatLosses
		res.PlayTimeSec += r.Result.PlayTimeSeconds
		res.LastMatchID = r.MatchID
	}
	res.Net = res.GrossProfit - res.CombatLosses
	if res.Raids > 0 {
		res.SurvivalRate = float64(res.Survived) / float64(res.Raids)
	}
	return res, nil
}
