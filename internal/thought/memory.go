package thought

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRecorder keeps the trace in process memory. It backs tests and
// single-process deployments that run without a database.
type MemoryRecorder struct {
	mu       sync.Mutex
	sessions map[string][]Step
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{sessions: make(map[string][]Step)}
}

// Append assigns the next sequence number for the session and stores the
// step before returning.
func (r *MemoryRecorder) Append(ctx context.Context, sessionID string, step Step) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("append thought: empty session id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	steps := r.sessions[sessionID]
	step.Seq = len(steps) + 1
	if step.Status == "" {
		step.Status = StatusComplete
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	r.sessions[sessionID] = append(steps, step)
	return step.Seq, nil
}

// Finish rewrites an active step in place. Finishing a step that is not
// active is an error: completed steps are append-only.
func (r *MemoryRecorder) Finish(ctx context.Context, sessionID string, seq int, fin Finish) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := r.sessions[sessionID]
	if seq < 1 || seq > len(steps) {
		return fmt.Errorf("finish thought: session %q has no step %d", sessionID, seq)
	}
	s := &steps[seq-1]
	if s.Status != StatusActive {
		return fmt.Errorf("finish thought: step %d is already %s", seq, s.Status)
	}

	if fin.Status != "" {
		s.Status = fin.Status
	} else {
		s.Status = StatusComplete
	}
	if fin.Summary != "" {
		s.Summary = fin.Summary
	}
	if fin.Detail != "" {
		s.Detail = fin.Detail
	}
	if fin.DurationMs > 0 {
		s.DurationMs = fin.DurationMs
	}
	return nil
}

// Read returns all steps for a session in sequence order.
func (r *MemoryRecorder) Read(ctx context.Context, sessionID string) ([]Step, error) {
	return r.ReadAfter(ctx, sessionID, 0)
}

// ReadAfter returns the steps with sequence numbers greater than
// afterSeq. Callers get a copy; the recorder's slice is never shared.
func (r *MemoryRecorder) ReadAfter(ctx context.Context, sessionID string, afterSeq int) ([]Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := r.sessions[sessionID]
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= len(steps) {
		return nil, nil
	}
	out := make([]Step, len(steps)-afterSeq)
	copy(out, steps[afterSeq:])
	return out, nil
}
