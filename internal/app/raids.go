package app

import (
	"context"

	"github.com/graaaaa/raidlog-companion/internal/lifecycle"
	"github.com/graaaaa/raidlog-companion/internal/raid"
)

// RaidUsecase accepts raid lifecycle events from the host.
type RaidUsecase interface {
	Start(ctx context.Context, req lifecycle.StartRequest) (*raid.InFlightRecord, error)
	End(ctx context.Context, req lifecycle.EndRequest) (*raid.ArchivedRecord, error)
}

// RaidLifecycle is implemented by *lifecycle.Manager.
type RaidLifecycle interface {
	OnRaidStart(ctx context.Context, req lifecycle.StartRequest) (*raid.InFlightRecord, error)
	OnRaidEnd(ctx context.Context, req lifecycle.EndRequest) (*raid.ArchivedRecord, error)
}

// RaidService implements RaidUsecase.
type RaidService struct {
	Lifecycle RaidLifecycle
}

// Start records a raid start.
func (s *RaidService) Start(ctx context.Context, req lifecycle.StartRequest) (*raid.InFlightRecord, error) {
	return s.Lifecycle.OnRaidStart(ctx, req)
}

// End records a raid end and returns the archived record.
func (s *RaidService) End(ctx context.Context, req lifecycle.EndRequest) (*raid.ArchivedRecord, error) {
	return s.Lifecycle.OnRaidEnd(ctx, req)
}
