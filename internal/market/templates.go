package market

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/graaaaa/raidlog-companion/internal/items"
)

// UpsertTemplates inserts or replaces templates in one transaction.
func (s *Store) UpsertTemplates(ctx context.Context, templates []items.Template) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO templates (id, name, parent_id, node_type, props)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, t := range templates {
		if t.ID == "" {
			return 0, fmt.Errorf("%w: empty id (name %q)", ErrInvalidTemplate, t.Name)
		}
		props, err := json.Marshal(t.Props)
		if err != nil {
			return 0, fmt.Errorf("encode props %s: %w", t.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, t.Name, t.Parent, t.Type, string(props)); err != nil {
			return 0, fmt.Errorf("insert template %s: %w", t.ID, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Catalog loads every template into an immutable catalog.
func (s *Store) Catalog(ctx context.Context) (*items.Catalog, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, parent_id, node_type, props FROM templates")
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []items.Template
	for rows.Next() {
		var t items.Template
		var props string
		if err := rows.Scan(&t.ID, &t.Name, &t.Parent, &t.Type, &props); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(props), &t.Props); err != nil {
			s.logger.Warn("template props unreadable", "tpl", t.ID, "error", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items.NewCatalog(templates), nil
}
