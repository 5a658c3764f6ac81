package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sunmer/checkra/patch"
)

// Schema contains the DDL for the conversation log. The table mirrors the
// in-memory list: position is the index, everything else is the item.
const Schema = `
CREATE TABLE IF NOT EXISTS conversation_items (
    position   INTEGER PRIMARY KEY,
    id         TEXT NOT NULL,
    role       TEXT NOT NULL,
    text       TEXT NOT NULL DEFAULT '',
    streaming  INTEGER NOT NULL DEFAULT 0,
    fix_json   TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
`

// Store persists the conversation log in SQLite. Implements Persister.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database. The caller is responsible for applying
// Schema (dbopen.WithSchema) and for closing the handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveAll rewrites the whole log in one transaction. The log is small and
// the memory shape is authoritative, so full rewrites beat diffing.
func (s *Store) SaveAll(ctx context.Context, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_items`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversation_items (position, id, role, text, streaming, fix_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		fixJSON := ""
		if item.Fix != nil {
			b, err := json.Marshal(item.Fix)
			if err != nil {
				return fmt.Errorf("history: marshal fix %s: %w", item.ID, err)
			}
			fixJSON = string(b)
		}
		streaming := 0
		if item.Streaming {
			streaming = 1
		}
		if _, err := stmt.ExecContext(ctx, i, item.ID, item.Role, item.Text,
			streaming, fixJSON, item.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("history: insert item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Load returns the persisted log in order.
func (s *Store) Load(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, streaming, fix_json, created_at
		FROM conversation_items ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item      Item
			streaming int
			fixJSON   string
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.Role, &item.Text, &streaming,
			&fixJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		item.Streaming = streaming != 0
		item.CreatedAt = time.Unix(createdAt, 0).UTC()
		if fixJSON != "" {
			var snap patch.Snapshot
			if err := json.Unmarshal([]byte(fixJSON), &snap); err != nil {
				return nil, fmt.Errorf("history: unmarshal fix %s: %w", item.ID, err)
			}
			item.Fix = &snap
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
