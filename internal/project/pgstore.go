package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PGStore persists contexts in Postgres, one row per project with the
// context as a jsonb document and the version in its own column so the
// optimistic check happens in the WHERE clause.
type PGStore struct {
	conn *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open connection. The projects table is created by
// the db package's migrations.
func NewPGStore(conn *sql.DB) *PGStore {
	return &PGStore{conn: conn}
}

// Load reads the context for id.
func (s *PGStore) Load(ctx context.Context, id string) (*Context, error) {
	var doc []byte
	var version int
	err := s.conn.QueryRowContext(ctx,
		`SELECT doc, version FROM projects WHERE id = $1`, id,
	).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}

	var pc Context
	if err := json.Unmarshal(doc, &pc); err != nil {
		return nil, fmt.Errorf("load project %s: parse doc: %w", id, err)
	}
	// The column is authoritative for concurrency checks.
	pc.Version = version
	if pc.Stages == nil {
		pc.Stages = make(map[string][]StageResult)
	}
	return &pc, nil
}

// Save persists pc if its Version still matches the stored row. First
// save requires Version 0. On success pc.Version is advanced.
func (s *PGStore) Save(ctx context.Context, pc *Context) error {
	if pc == nil || pc.ID == "" {
		return fmt.Errorf("save project: invalid id")
	}

	prev := pc.Version
	pc.Version = prev + 1
	pc.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(pc)
	if err != nil {
		pc.Version = prev
		return fmt.Errorf("save project %s: marshal: %w", pc.ID, err)
	}

	var res sql.Result
	if prev == 0 {
		res, err = s.conn.ExecContext(ctx,
			`INSERT INTO projects (id, doc, version, updated_at)
			 VALUES ($1, $2, 1, now())
			 ON CONFLICT (id) DO NOTHING`,
			pc.ID, doc)
	} else {
		res, err = s.conn.ExecContext(ctx,
			`UPDATE projects SET doc = $2, version = $3, updated_at = now()
			 WHERE id = $1 AND version = $4`,
			pc.ID, doc, prev+1, prev)
	}
	if err != nil {
		pc.Version = prev
		return fmt.Errorf("save project %s: %w", pc.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		pc.Version = prev
		return fmt.Errorf("save project %s: rows affected: %w", pc.ID, err)
	}
	if n == 0 {
		pc.Version = prev
		if prev == 0 {
			// Concurrent first save won the insert.
			return fmt.Errorf("save project %s: %w", pc.ID, ErrVersionConflict)
		}
		var exists bool
		if err := s.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, pc.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("save project %s: %w", pc.ID, err)
		}
		if exists {
			return fmt.Errorf("save project %s: %w", pc.ID, ErrVersionConflict)
		}
		return fmt.Errorf("save project %s: %w", pc.ID, ErrNotFound)
	}
	return nil
}

// List returns all stored contexts sorted by ID.
func (s *PGStore) List(ctx context.Context) ([]*Context, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT doc, version FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		var doc []byte
		var version int
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var pc Context
		if err := json.Unmarshal(doc, &pc); err != nil {
			return nil, fmt.Errorf("parse project doc: %w", err)
		}
		pc.Version = version
		if pc.Stages == nil {
			pc.Stages = make(map[string][]StageResult)
		}
		out = append(out, &pc)
	}
	return out, rows.Err()
}

// Delete removes a project row.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
