package market

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// VacuumInterval is the minimum interval between VACUUM operations.
// Offers are replaced wholesale on every import, so the file fragments.
const VacuumInterval = 30 * 24 * time.Hour

const metadataKeyLastVacuum = "last_vacuum_at"

// VacuumIfNeeded runs VACUUM when the last one is older than VacuumInterval.
// It reports whether VACUUM ran.
func (s *Store) VacuumIfNeeded(ctx context.Context) (bool, error) {
	last, err := s.getLastVacuumTime(ctx)
	if err != nil {
		return false, err
	}
	if s.now().Sub(last) < VacuumInterval {
		return false, nil
	}

	s.logger.Info("running VACUUM", "last_run", last.Format(time.RFC3339))
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, err
	}
	s.logger.Info("VACUUM completed", "elapsed", time.Since(start))

	if err := s.setLastVacuumTime(ctx, s.now()); err != nil {
		s.logger.Warn("failed to update last_vacuum_at", "error", err)
	}
	return true, nil
}

func (s *Store) getLastVacuumTime(ctx context.Context) (time.Time, error) {
	value, ok, err := s.metadata(ctx, metadataKeyLastVacuum)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(TimeFormat, value)
	if err != nil {
		// Unreadable stamp: vacuum again.
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) setLastVacuumTime(ctx context.Context, t time.Time) error {
	return s.setMetadata(ctx, metadataKeyLastVacuum, t.UTC().Format(TimeFormat))
}

func (s *Store) metadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) setMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value)
	return err
}
