package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// HandbookEntry is a static reference price.
type HandbookEntry struct {
	Tpl   string `json:"Id"`
	Price int64  `json:"Price"`
}

// UpsertHandbook inserts or replaces handbook prices.
func (s *Store) UpsertHandbook(ctx context.Context, entries []HandbookEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO handbook (tpl, price) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, e := range entries {
		if e.Tpl == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.Tpl, e.Price); err != nil {
			return 0, fmt.Errorf("insert handbook %s: %w", e.Tpl, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// HandbookPrice returns the reference price of tpl.
func (s *Store) HandbookPrice(ctx context.Context, tpl string) (int64, bool, error) {
	var price int64
	err := s.db.QueryRowContext(ctx, "SELECT price FROM handbook WHERE tpl = ?", tpl).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query handbook %s: %w", tpl, err)
	}
	return price, true, nil
}
