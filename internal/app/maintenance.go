package app

import "context"

// MaintenanceStore is the administrative surface of the record store.
type MaintenanceStore interface {
	Reload(account string)
	Purge(ctx context.Context, account string) error
}

// MaintenanceService lets operators re-read hand-edited history files and
// delete an account's history.
type MaintenanceService struct {
	Store    MaintenanceStore
	Accounts AccountResolver
}

// Reload drops the cached history of id so the next read comes from disk.
// It returns the resolved account.
func (s *MaintenanceService) Reload(ctx context.Context, id string) (string, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return "", err
	}
	s.Store.Reload(account)
	return account, nil
}

// Purge deletes the history file and cache entry of id.
func (s *MaintenanceService) Purge(ctx context.Context, id string) (string, error) {
	account, err := resolveAccount(s.Accounts, id)
	if err != nil {
		return "", err
	}
	return account, s.Store.Purge(ctx, account)
}
