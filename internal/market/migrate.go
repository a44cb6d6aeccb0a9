package market

import (
	"context"
	"fmt"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

var migrations = []struct {
	name   string
	schema string
}{
	{"templates", `
	CREATE TABLE IF NOT EXISTS templates (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		node_type TEXT NOT NULL DEFAULT '',
		props     TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_templates_parent ON templates(parent_id);`},
	{"handbook", `
	CREATE TABLE IF NOT EXISTS handbook (
		tpl   TEXT PRIMARY KEY,
		price INTEGER NOT NULL
	);`},
	{"offers", `
	CREATE TABLE IF NOT EXISTS offers (
		id          TEXT PRIMARY KEY,
		tpl         TEXT NOT NULL,
		price       INTEGER NOT NULL,
		quantity    INTEGER NOT NULL,
		seller_type TEXT NOT NULL,
		barter      INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offers_tpl ON offers(tpl);`},
	{"metadata", `
	CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`},
}

// migrate creates every table that does not exist yet.
func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.schema); err != nil {
			return fmt.Errorf("create %s table: %w", m.name, err)
		}
	}
	return nil
}
