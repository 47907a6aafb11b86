package thought

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBRecorder persists the trace to the thought_steps table. Sequence
// numbers are issued inside the insert itself: the row takes
// max(seq)+1 for its session, and the table's primary key rejects the
// loser when two appenders race, which retries with the next number.
type DBRecorder struct {
	conn *sql.DB
}

var _ Recorder = (*DBRecorder)(nil)

// NewDBRecorder wraps an open connection pool. The thought_steps table
// must already be migrated.
func NewDBRecorder(conn *sql.DB) *DBRecorder {
	return &DBRecorder{conn: conn}
}

const appendRetries = 20

// Append durably writes the step and returns its sequence number.
func (r *DBRecorder) Append(ctx context.Context, sessionID string, step Step) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("append thought: empty session id")
	}
	if step.Status == "" {
		step.Status = StatusComplete
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for i := 0; i < appendRetries; i++ {
		var seq int
		err := r.conn.QueryRowContext(ctx, `
			INSERT INTO thought_steps (session_id, seq, step_type, title, summary, detail, confidence, duration_ms, status, created_at)
			SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7, $8, $9
			FROM thought_steps WHERE session_id = $1
			RETURNING seq`,
			sessionID, string(step.Type), step.Title, step.Summary, step.Detail,
			step.Confidence, step.DurationMs, string(step.Status), step.Timestamp,
		).Scan(&seq)
		if err == nil {
			return seq, nil
		}
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("append thought: %w", err)
		}
		lastErr = err
	}
	return 0, fmt.Errorf("append thought: %w", lastErr)
}

// Finish rewrites an active step in place. Finishing a step that is not
// active is an error: completed steps are append-only.
func (r *DBRecorder) Finish(ctx context.Context, sessionID string, seq int, fin Finish) error {
	status := fin.Status
	if status == "" {
		status = StatusComplete
	}
	res, err := r.conn.ExecContext(ctx, `
		UPDATE thought_steps SET
			status = $1,
			summary = CASE WHEN $2 <> '' THEN $2 ELSE summary END,
			detail = CASE WHEN $3 <> '' THEN $3 ELSE detail END,
			duration_ms = CASE WHEN $4 > 0 THEN $4 ELSE duration_ms END
		WHERE session_id = $5 AND seq = $6 AND status = 'active'`,
		string(status), fin.Summary, fin.Detail, fin.DurationMs, sessionID, seq,
	)
	if err != nil {
		return fmt.Errorf("finish thought: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish thought: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing step from one already finished.
	var current string
	err = r.conn.QueryRowContext(ctx,
		`SELECT status FROM thought_steps WHERE session_id = $1 AND seq = $2`,
		sessionID, seq,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("finish thought: session %q has no step %d", sessionID, seq)
	}
	if err != nil {
		return fmt.Errorf("finish thought: %w", err)
	}
	return fmt.Errorf("finish thought: step %d is already %s", seq, current)
}

// Read returns all steps for a session in sequence order.
func (r *DBRecorder) Read(ctx context.Context, sessionID string) ([]Step, error) {
	return r.ReadAfter(ctx, sessionID, 0)
}

// ReadAfter returns the steps with sequence numbers greater than afterSeq.
func (r *DBRecorder) ReadAfter(ctx context.Context, sessionID string, afterSeq int) ([]Step, error) {
	if afterSeq < 0 {
		afterSeq = 0
	}
	rows, err := r.conn.QueryContext(ctx, `
		SELECT seq, step_type, title, summary, detail, confidence, duration_ms, status, created_at
		FROM thought_steps WHERE session_id = $1 AND seq > $2 ORDER BY seq`,
		sessionID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("read thoughts: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		var stepType, status string
		var summary, detail sql.NullString
		var confidence, durationMs sql.NullInt64
		if err := rows.Scan(&s.Seq, &stepType, &s.Title, &summary, &detail, &confidence, &durationMs, &status, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan thought step: %w", err)
		}
		s.Type = Type(stepType)
		s.Status = Status(status)
		if summary.Valid {
			s.Summary = summary.String
		}
		if detail.Valid {
			s.Detail = detail.String
		}
		if confidence.Valid {
			s.Confidence = int(confidence.Int64)
		}
		if durationMs.Valid {
			s.DurationMs = durationMs.Int64
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
