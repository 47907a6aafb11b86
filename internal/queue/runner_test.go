package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aerostat-labs/windscout/internal/agent"
	"github.com/aerostat-labs/windscout/internal/db"
)

// memStore is an in-memory queue with the claim/finish surface the
// runner uses.
type memStore struct {
	mu        sync.Mutex
	pending   []db.AskItem
	completed map[int64]string
	failed    map[int64]string
	claimErr  error
	finishErr error
}

func newMemStore(questions ...string) *memStore {
	s := &memStore{
		completed: make(map[int64]string),
		failed:    make(map[int64]string),
	}
	for i, q := range questions {
		s.pending = append(s.pending, db.AskItem{
			ID:        int64(i + 1),
			SessionID: fmt.Sprintf("s-%d", i+1),
			Question:  q,
			Directive: "auto",
			Status:    "pending",
		})
	}
	return s
}

func (s *memStore) QueueClaim(ctx context.Context) (*db.AskItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if len(s.pending) == 0 {
		return nil, nil
	}
	item := s.pending[0]
	s.pending = s.pending[1:]
	return &item, nil
}

func (s *memStore) QueueComplete(ctx context.Context, id int64, capability, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	s.completed[id] = capability + ": " + answer
	return nil
}

func (s *memStore) QueueFail(ctx context.Context, id int64, capability, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	s.failed[id] = capability + ": " + errMsg
	return nil
}

// scriptedAsker answers every request the same way and records what it
// was asked.
type scriptedAsker struct {
	mu       sync.Mutex
	requests []agent.Request
	respond  func(req agent.Request) *agent.Response
}

func (a *scriptedAsker) Ask(ctx context.Context, req agent.Request) *agent.Response {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.respond != nil {
		return a.respond(req)
	}
	return &agent.Response{Success: true, Message: "answered: " + req.Text, Capability: "qa"}
}

func TestDrainOnceCompletesItems(t *testing.T) {
	store := newMemStore("first question", "second question", "third question")
	asker := &scriptedAsker{}
	r := NewRunner(store, asker)

	actions, err := r.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("len(actions) = %d, want 3", len(actions))
	}
	for i, act := range actions {
		if act.Action != "completed" {
			t.Errorf("actions[%d].Action = %q, want completed", i, act.Action)
		}
		if act.Capability != "qa" {
			t.Errorf("actions[%d].Capability = %q, want qa", i, act.Capability)
		}
	}

	if len(store.completed) != 3 {
		t.Errorf("completed items = %d, want 3", len(store.completed))
	}
	if got := store.completed[2]; got != "qa: answered: second question" {
		t.Errorf("completed[2] = %q", got)
	}
}

func TestDrainOncePassesRequestFieldsThrough(t *testing.T) {
	store := newMemStore("survey the site")
	store.pending[0].Directive = "survey-analysis"
	asker := &scriptedAsker{}
	r := NewRunner(store, asker)

	if _, err := r.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce() error: %v", err)
	}

	if len(asker.requests) != 1 {
		t.Fatalf("asker saw %d requests, want 1", len(asker.requests))
	}
	req := asker.requests[0]
	if req.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want s-1", req.SessionID)
	}
	if req.Text != "survey the site" {
		t.Errorf("Text = %q", req.Text)
	}
	if req.Directive != "survey-analysis" {
		t.Errorf("Directive = %q, want survey-analysis", req.Directive)
	}
}

func TestDrainOnceRecordsFailures(t *testing.T) {
	store := newMemStore("run the doomed workflow")
	asker := &scriptedAsker{respond: func(req agent.Request) *agent.Response {
		return &agent.Response{
			Success:    false,
			Message:    "survey failed: sensor offline. See attempt log for history.",
			Capability: "feasibility-workflow_error",
		}
	}}
	r := NewRunner(store, asker)

	actions, err := r.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != "failed" {
		t.Fatalf("actions = %+v, want one failed", actions)
	}

	got := store.failed[1]
	if !strings.Contains(got, "sensor offline") {
		t.Errorf("failed[1] = %q, want root cause recorded", got)
	}
	if len(store.completed) != 0 {
		t.Errorf("completed = %v, want none", store.completed)
	}
}

func TestDrainOnceEmptyQueue(t *testing.T) {
	r := NewRunner(newMemStore(), &scriptedAsker{})

	actions, err := r.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("len(actions) = %d, want 0", len(actions))
	}
}

func TestDrainOnceStopsOnClaimError(t *testing.T) {
	store := newMemStore("one")
	store.claimErr = errors.New("connection reset")
	r := NewRunner(store, &scriptedAsker{})

	_, err := r.DrainOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("DrainOnce() error = %v, want claim error", err)
	}
}

func TestFinishWriteFailureIsReported(t *testing.T) {
	store := newMemStore("one")
	store.finishErr = errors.New("disk full")
	r := NewRunner(store, &scriptedAsker{})

	actions, err := r.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce() error: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	if actions[0].Action != "error" {
		t.Errorf("Action = %q, want error", actions[0].Action)
	}
	if !strings.Contains(actions[0].Message, "record completion") {
		t.Errorf("Message = %q", actions[0].Message)
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	r := NewRunner(newMemStore(), &scriptedAsker{})
	r.SetPollInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRunDrainsQueueWithWorkerPool(t *testing.T) {
	store := newMemStore("q1", "q2", "q3", "q4", "q5")
	asker := &scriptedAsker{}
	r := NewRunner(store, asker)
	r.SetWorkers(3)
	r.SetPollInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.completed)
		store.mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained, completed = %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}

	// Each item finished exactly once.
	for id := int64(1); id <= 5; id++ {
		if _, ok := store.completed[id]; !ok {
			t.Errorf("item %d was not completed", id)
		}
	}
}
