// Package queue executes queued asks in the background, so long-running
// workflows can be submitted and picked up later.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aerostat-labs/windscout/internal/agent"
	"github.com/aerostat-labs/windscout/internal/db"
)

// Store is the queue persistence the runner drives. *db.DB satisfies it.
type Store interface {
	QueueClaim(ctx context.Context) (*db.AskItem, error)
	QueueComplete(ctx context.Context, id int64, capability, answer string) error
	QueueFail(ctx context.Context, id int64, capability, errMsg string) error
}

// Asker is the slice of the agent router the runner needs.
type Asker interface {
	Ask(ctx context.Context, req agent.Request) *agent.Response
}

// Action describes what the runner did with one queue item.
type Action struct {
	ID         int64
	Action     string // "completed", "failed", "error"
	Capability string
	Message    string
}

// Runner claims pending asks and routes them through the agent. Claims
// go through FOR UPDATE SKIP LOCKED, so several runners (or processes)
// can drain the same queue without coordination.
type Runner struct {
	store    Store
	asker    Asker
	workers  int
	poll     time.Duration
	progress io.Writer
}

// NewRunner creates a runner with 2 workers polling every 2s.
func NewRunner(store Store, asker Asker) *Runner {
	return &Runner{
		store:   store,
		asker:   asker,
		workers: 2,
		poll:    2 * time.Second,
	}
}

// SetWorkers sets the number of concurrent workers.
func (r *Runner) SetWorkers(n int) {
	if n > 0 {
		r.workers = n
	}
}

// SetPollInterval sets how long an idle worker sleeps between claims.
func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.poll = d
	}
}

// SetProgress sets the writer for progress logging.
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

func (r *Runner) logf(format string, args ...any) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, format+"\n", args...)
	}
}

// Run polls the queue until ctx is cancelled. Cancellation is a clean
// shutdown, not an error.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		worker := i + 1
		g.Go(func() error {
			return r.workLoop(ctx, worker)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) workLoop(ctx context.Context, worker int) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			act, ok, err := r.runNext(ctx)
			if err != nil {
				r.logf("worker %d: claim: %v", worker, err)
				break
			}
			if !ok {
				break
			}
			r.logf("worker %d: ask %d %s (%s)", worker, act.ID, act.Action, act.Capability)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainOnce claims and executes items until the queue is empty, then
// returns what happened to each.
func (r *Runner) DrainOnce(ctx context.Context) ([]Action, error) {
	var actions []Action
	for {
		act, ok, err := r.runNext(ctx)
		if err != nil {
			return actions, err
		}
		if !ok {
			return actions, nil
		}
		actions = append(actions, act)
	}
}

// runNext claims one pending item and executes it. ok is false when the
// queue is empty.
func (r *Runner) runNext(ctx context.Context) (Action, bool, error) {
	item, err := r.store.QueueClaim(ctx)
	if err != nil {
		return Action{}, false, err
	}
	if item == nil {
		return Action{}, false, nil
	}
	return r.execute(ctx, item), true, nil
}

// execute routes a claimed item through the agent and records the
// outcome. The router never errors, so the item always finishes as
// completed or failed; "error" only means the finish write itself
// could not be recorded.
func (r *Runner) execute(ctx context.Context, item *db.AskItem) Action {
	resp := r.asker.Ask(ctx, agent.Request{
		SessionID: item.SessionID,
		Text:      item.Question,
		Directive: item.Directive,
	})

	act := Action{ID: item.ID, Capability: resp.Capability, Message: resp.Message}
	if resp.Success {
		if err := r.store.QueueComplete(ctx, item.ID, resp.Capability, resp.Message); err != nil {
			act.Action = "error"
			act.Message = fmt.Sprintf("record completion: %v", err)
			return act
		}
		act.Action = "completed"
		return act
	}

	if err := r.store.QueueFail(ctx, item.ID, resp.Capability, resp.Message); err != nil {
		act.Action = "error"
		act.Message = fmt.Sprintf("record failure: %v", err)
		return act
	}
	act.Action = "failed"
	return act
}
