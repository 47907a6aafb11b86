package project

import (
	"time"

	"github.com/aerostat-labs/windscout/internal/artifact"
)

// Stage result statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Location is the site a project is anchored to.
type Location struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Place string  `json:"place,omitempty"`
}

// Finding is a non-fatal observation a validator made about a stage's
// output. Findings never gate the pipeline.
type Finding struct {
	Severity string `json:"severity"` // "warning" or "info"
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// StageResult is the recorded outcome of one stage invocation.
type StageResult struct {
	Stage       string         `json:"stage"`
	Status      string         `json:"status"`
	Attempt     int            `json:"attempt"`
	Output      map[string]any `json:"output,omitempty"`
	Artifacts   []artifact.Ref `json:"artifacts,omitempty"`
	Findings    []Finding      `json:"findings,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Context is the durable cross-stage state record for one pipeline run.
// The ID is assigned when the record is created and never changes.
// Stage results are append-only: re-running a stage appends a new
// result that supersedes the prior one, and the prior one is kept. The
// latest result for a stage is the last element of its history slice.
// Version is the optimistic-concurrency token managed by the store.
type Context struct {
	ID         string                   `json:"id"`
	Name       string                   `json:"name,omitempty"`
	Location   *Location                `json:"location,omitempty"`
	CapacityMW float64                  `json:"capacity_mw,omitempty"`
	Params     map[string]any           `json:"params,omitempty"`
	Stages     map[string][]StageResult `json:"stages"`
	Version    int                      `json:"version"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// New creates an empty context for the given identifier.
func New(id string) *Context {
	now := time.Now().UTC()
	return &Context{
		ID:        id,
		Stages:    make(map[string][]StageResult),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Latest returns the most recent result for a stage, or nil if the
// stage has never run.
func (c *Context) Latest(stage string) *StageResult {
	history := c.Stages[stage]
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}

// HasSuccess reports whether the stage's latest result is a success.
func (c *Context) HasSuccess(stage string) bool {
	res := c.Latest(stage)
	return res != nil && res.Status == StatusSuccess
}

// AppendResult appends a stage result, assigning the next attempt
// number for that stage. Prior results are preserved, superseded by the
// new one.
func (c *Context) AppendResult(res StageResult) {
	if c.Stages == nil {
		c.Stages = make(map[string][]StageResult)
	}
	res.Attempt = len(c.Stages[res.Stage]) + 1
	c.Stages[res.Stage] = append(c.Stages[res.Stage], res)
	c.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy. Stores and caches hand out clones so a
// caller's mutations never leak into shared state.
func (c *Context) Clone() *Context {
	out := *c
	if c.Location != nil {
		loc := *c.Location
		out.Location = &loc
	}
	if c.Params != nil {
		out.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	out.Stages = make(map[string][]StageResult, len(c.Stages))
	for stage, history := range c.Stages {
		copied := make([]StageResult, len(history))
		copy(copied, history)
		for i := range copied {
			copied[i].Output = cloneMap(history[i].Output)
			copied[i].Artifacts = append([]artifact.Ref(nil), history[i].Artifacts...)
			copied[i].Findings = append([]Finding(nil), history[i].Findings...)
		}
		out.Stages[stage] = copied
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
