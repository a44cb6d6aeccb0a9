// Package app provides application use cases.
package app

import "context"

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult represents the health check response.
type HealthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Accounts int    `json:"accounts"`
}

// HealthStore reports the record store's condition.
type HealthStore interface {
	Degraded() bool
	Accounts() []string
}

// HealthService implements HealthUsecase.
type HealthService struct {
	Version string
	Store   HealthStore
}

// Handle returns the current health status. A record store without its
// directory reports "degraded".
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{Status: "ok", Version: s.Version}
	if s.Store != nil {
		if s.Store.Degraded() {
			res.Status = "degraded"
		}
		res.Accounts = len(s.Store.Accounts())
	}
	return res, nil
}
