package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StageEvent represents a row in the stage_events table.
type StageEvent struct {
	ID         int64
	ProjectID  string
	Stage      string
	Event      string
	Attempt    int
	DurationMs int64
	Detail     string
	CreatedAt  time.Time
}

// AskItem represents a row in the ask_queue table.
type AskItem struct {
	ID         int64
	SessionID  string
	Question   string
	Directive  string
	Status     string
	Capability string
	Answer     string
	Error      string
	AddedAt    time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// LogStageEvent inserts a stage event.
func (d *DB) LogStageEvent(ctx context.Context, projectID, stage, event string, attempt int, durationMs int64, detail string) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO stage_events (project_id, stage, event, attempt, duration_ms, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		projectID, stage, event, attempt, durationMs, detail,
	)
	if err != nil {
		return fmt.Errorf("log stage event: %w", err)
	}
	return nil
}

// GetStageHistory returns all stage events for a project, newest first.
func (d *DB) GetStageHistory(ctx context.Context, projectID string) ([]StageEvent, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, project_id, stage, event, attempt, duration_ms, detail, created_at
		 FROM stage_events WHERE project_id = $1 ORDER BY id DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage history: %w", err)
	}
	defer rows.Close()
	return scanStageEvents(rows)
}

// GetRecentStageEvents returns the most recent stage events across all
// projects, newest first.
func (d *DB) GetRecentStageEvents(ctx context.Context, limit int) ([]StageEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, project_id, stage, event, attempt, duration_ms, detail, created_at
		 FROM stage_events ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent stage events: %w", err)
	}
	defer rows.Close()
	return scanStageEvents(rows)
}

func scanStageEvents(rows *sql.Rows) ([]StageEvent, error) {
	var events []StageEvent
	for rows.Next() {
		var e StageEvent
		var attempt, durationMs sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Stage, &e.Event, &attempt, &durationMs, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		if attempt.Valid {
			e.Attempt = int(attempt.Int64)
		}
		if durationMs.Valid {
			e.DurationMs = durationMs.Int64
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// QueueAdd inserts a question into the ask queue and returns its id.
func (d *DB) QueueAdd(ctx context.Context, sessionID, question, directive string) (int64, error) {
	if directive == "" {
		directive = "auto"
	}
	var id int64
	err := d.conn.QueryRowContext(ctx,
		`INSERT INTO ask_queue (session_id, question, directive) VALUES ($1, $2, $3) RETURNING id`,
		sessionID, question, directive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("queue add: %w", err)
	}
	return id, nil
}

// QueueList returns queue items, oldest first. A non-empty status
// filters to that status.
func (d *DB) QueueList(ctx context.Context, status string) ([]AskItem, error) {
	query := `SELECT id, session_id, question, directive, status, capability, answer, error, added_at, started_at, finished_at
		 FROM ask_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var items []AskItem
	for rows.Next() {
		item, err := scanAskItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// QueueGet returns a single queue item by id.
func (d *DB) QueueGet(ctx context.Context, id int64) (*AskItem, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, session_id, question, directive, status, capability, answer, error, added_at, started_at, finished_at
		 FROM ask_queue WHERE id = $1`,
		id,
	)
	item, err := scanAskItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// QueueClaim atomically marks the oldest pending item active and
// returns it, or nil when the queue is empty. Concurrent workers each
// claim distinct items.
func (d *DB) QueueClaim(ctx context.Context) (*AskItem, error) {
	row := d.conn.QueryRowContext(ctx, `
		UPDATE ask_queue SET status = 'active', started_at = now()
		WHERE id = (
			SELECT id FROM ask_queue WHERE status = 'pending'
			ORDER BY id LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, session_id, question, directive, status, capability, answer, error, added_at, started_at, finished_at`,
	)
	item, err := scanAskItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queue item: %w", err)
	}
	return item, nil
}

// QueueComplete records a successful answer for a claimed item.
func (d *DB) QueueComplete(ctx context.Context, id int64, capability, answer string) error {
	return d.queueFinish(ctx, id, "completed", capability, answer, "")
}

// QueueFail records a failed item.
func (d *DB) QueueFail(ctx context.Context, id int64, capability, errMsg string) error {
	return d.queueFinish(ctx, id, "failed", capability, "", errMsg)
}

func (d *DB) queueFinish(ctx context.Context, id int64, status, capability, answer, errMsg string) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE ask_queue SET status = $1, capability = $2, answer = $3, error = $4, finished_at = now() WHERE id = $5`,
		status, capability, answer, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("finish queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %d not found", id)
	}
	return nil
}

// QueueRemove deletes a queue item by id.
func (d *DB) QueueRemove(ctx context.Context, id int64) error {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM ask_queue WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %d not found", id)
	}
	return nil
}

// QueueClear deletes all finished items, returning the count deleted.
// Pending and active items are kept.
func (d *DB) QueueClear(ctx context.Context) (int, error) {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM ask_queue WHERE status IN ('completed', 'failed')")
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}

// QueueRequeue resets an active item back to pending, for workers that
// died mid-claim. Returns an error when the item is not active.
func (d *DB) QueueRequeue(ctx context.Context, id int64) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE ask_queue SET status = 'pending', started_at = NULL WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("requeue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %d is not active", id)
	}
	return nil
}

type scanFunc func(dest ...any) error

func scanAskItem(scan scanFunc) (*AskItem, error) {
	var item AskItem
	var capability, answer, errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := scan(&item.ID, &item.SessionID, &item.Question, &item.Directive, &item.Status,
		&capability, &answer, &errMsg, &item.AddedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if capability.Valid {
		item.Capability = capability.String
	}
	if answer.Valid {
		item.Answer = answer.String
	}
	if errMsg.Valid {
		item.Error = errMsg.String
	}
	if startedAt.Valid {
		item.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		item.FinishedAt = finishedAt.Time
	}
	return &item, nil
}
