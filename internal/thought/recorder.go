package thought

import (
	"context"
	"time"
)

// Type tags a step with the kind of reasoning it records.
type Type string

const (
	TypeIntent    Type = "intent-detection"
	TypeParameter Type = "parameter-extraction"
	TypeStage     Type = "stage-execution"
	TypeHandler   Type = "handler-execution"
	TypeError     Type = "error"
)

// Status is the lifecycle state of a step.
type Status string

const (
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Step is one unit of the live reasoning trace exposed to observers.
// Sequence numbers are assigned by the recorder, strictly increasing
// and gapless per session.
type Step struct {
	Seq        int       `json:"seq"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Detail     string    `json:"detail,omitempty"`
	Confidence int       `json:"confidence,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Status     Status    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Finish updates a step that was appended with StatusActive. Zero-value
// fields keep the step's existing values.
type Finish struct {
	Status     Status
	Summary    string
	Detail     string
	DurationMs int64
}

// Recorder is the durable, ordered reasoning log. Append completes the
// durable write before returning and hands back the assigned sequence
// number, so a caller cannot produce the next step without having
// waited for the previous one to land. Finish rewrites an active step
// in place under the same sequence number; no new number is consumed.
// Read and ReadAfter are idempotent and monotonic for a session.
type Recorder interface {
	Append(ctx context.Context, sessionID string, step Step) (int, error)
	Finish(ctx context.Context, sessionID string, seq int, fin Finish) error
	Read(ctx context.Context, sessionID string) ([]Step, error)
	ReadAfter(ctx context.Context, sessionID string, afterSeq int) ([]Step, error)
}
