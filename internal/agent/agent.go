// Package agent routes classified requests to capability handlers and
// normalizes every outcome into one response envelope.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aerostat-labs/windscout/internal/artifact"
	"github.com/aerostat-labs/windscout/internal/intent"
	"github.com/aerostat-labs/windscout/internal/thought"
	"github.com/aerostat-labs/windscout/internal/unit"
)

// Request is one user ask. Immutable once received.
type Request struct {
	SessionID string         `json:"session_id,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
	Text      string         `json:"text"`
	Directive string         `json:"directive,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// Response is the envelope every ask returns. The shape is stable
// regardless of which capability handled the request and regardless of
// whether it succeeded.
type Response struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Capability   string              `json:"capability"`
	Confidence   int                 `json:"confidence"`
	SessionID    string              `json:"session_id"`
	ProjectID    string              `json:"project_id,omitempty"`
	Data         map[string]any      `json:"data,omitempty"`
	Artifacts    []artifact.Artifact `json:"artifacts"`
	ThoughtSteps []thought.Step      `json:"thought_steps"`
}

// Ask is the resolved form of a request as a handler sees it: the raw
// request, the routing decision it arrived under, the merged parameter
// set, and the per-request artifact collector.
type Ask struct {
	Request   Request
	Decision  intent.Decision
	SessionID string
	Params    map[string]any
	Artifacts *artifact.Collector
}

// ProjectID returns the caller-declared project identifier, minting a
// fresh one when the request carries none.
func (a Ask) ProjectID() string {
	if a.Request.ProjectID != "" {
		return a.Request.ProjectID
	}
	return "proj-" + uuid.NewString()[:8]
}

// Result is a handler's successful outcome. Failures are returned as
// errors and converted to a failure envelope by the router.
type Result struct {
	Message   string
	ProjectID string
	Data      map[string]any
}

// Handler executes one capability.
type Handler interface {
	Capability() string
	Handle(ctx context.Context, ask Ask) (*Result, error)
}

// Invoker dispatches a payload to a named compute unit.
type Invoker interface {
	Invoke(ctx context.Context, unitName string, in unit.Input) (*unit.Output, error)
}

// Router owns the capability table. It is the single error boundary
// visible to callers: Ask never returns an error and never lets a
// handler panic escape.
type Router struct {
	classifier *intent.Classifier
	recorder   thought.Recorder
	handlers   map[string]Handler
	fallback   string
	minConf    int
	logf       func(format string, args ...any)
}

// NewRouter builds a router around a compiled rule table and a thought
// recorder. The classifier's fallback capability doubles as the default
// routing target for unknown or low-confidence capabilities.
func NewRouter(classifier *intent.Classifier, recorder thought.Recorder, handlers ...Handler) *Router {
	r := &Router{
		classifier: classifier,
		recorder:   recorder,
		handlers:   make(map[string]Handler, len(handlers)),
		fallback:   classifier.FallbackCapability(),
		logf:       func(string, ...any) {},
	}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler for its capability.
func (r *Router) Register(h Handler) {
	r.handlers[h.Capability()] = h
}

// SetMinConfidence sets the routing threshold: a non-explicit decision
// below it is redirected to the fallback capability instead of being
// dispatched.
func (r *Router) SetMinConfidence(n int) { r.minConf = n }

// SetLogf installs a diagnostic log sink.
func (r *Router) SetLogf(f func(format string, args ...any)) {
	if f != nil {
		r.logf = f
	}
}

// Capabilities returns the registered capability names.
func (r *Router) Capabilities() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Ask classifies the request, records the routing decision, dispatches
// to the selected handler and returns the normalized envelope. Handler
// errors and panics become failure envelopes; they never propagate.
func (r *Router) Ask(ctx context.Context, req Request) *Response {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	dec := r.classifier.Classify(req.Text, req.Directive)

	target := dec.Capability
	redirected := false
	if !dec.Explicit && !dec.Fallback && dec.Confidence < r.minConf {
		target = r.fallback
		redirected = true
	}

	params := make(map[string]any, len(dec.Params)+len(req.Params))
	for k, v := range dec.Params {
		params[k] = v
	}
	for k, v := range req.Params {
		params[k] = v
	}

	// The routing decision lands in the thought stream before the
	// handler runs, so the trace shows why a request went where it
	// went even when the handler later fails.
	seq, err := r.recorder.Append(ctx, sessionID, routingStep(dec, target, redirected, r.minConf))
	if err != nil {
		return r.failure(ctx, sessionID, 0, dec, target,
			fmt.Errorf("recording routing decision: %w", err))
	}

	h, ok := r.handlers[target]
	if !ok {
		h, ok = r.handlers[r.fallback]
		if !ok {
			return r.failure(ctx, sessionID, seq, dec, target,
				fmt.Errorf("no handler registered for capability %q", target))
		}
		target = r.fallback
	}

	ask := Ask{
		Request:   req,
		Decision:  dec,
		SessionID: sessionID,
		Params:    params,
		Artifacts: artifact.NewCollector(),
	}

	res, err := r.dispatch(ctx, h, ask)
	if err != nil {
		return r.failure(ctx, sessionID, seq, dec, target, err)
	}

	r.finish(ctx, sessionID, seq, thought.Finish{Status: thought.StatusComplete})

	resp := &Response{
		Success:      true,
		Message:      res.Message,
		Capability:   target,
		Confidence:   dec.Confidence,
		SessionID:    sessionID,
		ProjectID:    res.ProjectID,
		Data:         res.Data,
		Artifacts:    ask.Artifacts.Drain(),
		ThoughtSteps: r.trace(ctx, sessionID, seq),
	}
	if resp.ProjectID == "" {
		resp.ProjectID = req.ProjectID
	}
	return resp
}

// dispatch runs the handler behind a panic guard.
func (r *Router) dispatch(ctx context.Context, h Handler, ask Ask) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Capability(), p)
		}
	}()
	res, err = h.Handle(ctx, ask)
	if err == nil && res == nil {
		err = fmt.Errorf("handler %s returned no result", h.Capability())
	}
	return res, err
}

func (r *Router) failure(ctx context.Context, sessionID string, seq int, dec intent.Decision, target string, err error) *Response {
	r.logf("ask %s: capability %s failed: %v", sessionID, target, err)
	r.finish(ctx, sessionID, seq, thought.Finish{
		Status: thought.StatusFailed,
		Detail: err.Error(),
	})
	return &Response{
		Success:      false,
		Message:      err.Error(),
		Capability:   target + "_error",
		Confidence:   dec.Confidence,
		SessionID:    sessionID,
		Artifacts:    []artifact.Artifact{},
		ThoughtSteps: r.trace(ctx, sessionID, seq),
	}
}

func (r *Router) finish(ctx context.Context, sessionID string, seq int, fin thought.Finish) {
	if seq == 0 {
		return
	}
	if err := r.recorder.Finish(ctx, sessionID, seq, fin); err != nil {
		r.logf("finish routing step %d: %v", seq, err)
	}
}

// trace returns the steps this request produced, starting at the
// routing step. Envelope assembly never fails over a read error.
func (r *Router) trace(ctx context.Context, sessionID string, fromSeq int) []thought.Step {
	after := fromSeq - 1
	if after < 0 {
		after = 0
	}
	steps, err := r.recorder.ReadAfter(ctx, sessionID, after)
	if err != nil {
		r.logf("read thought steps for %s: %v", sessionID, err)
		return []thought.Step{}
	}
	return steps
}

func routingStep(dec intent.Decision, target string, redirected bool, minConf int) thought.Step {
	summary := fmt.Sprintf("capability %s (confidence %d)", dec.Capability, dec.Confidence)
	switch {
	case dec.Explicit:
		summary = fmt.Sprintf("capability %s (explicit directive)", dec.Capability)
	case dec.Fallback:
		summary = fmt.Sprintf("no rule matched, falling back to %s", dec.Capability)
	case redirected:
		summary = fmt.Sprintf("capability %s (confidence %d) below threshold %d, falling back to %s",
			dec.Capability, dec.Confidence, minConf, target)
	}

	var detail string
	if len(dec.MatchedRules) > 0 {
		detail = fmt.Sprintf("matched %s in group %s", strings.Join(dec.MatchedRules, ", "), dec.Group)
	}

	return thought.Step{
		Type:       thought.TypeIntent,
		Title:      "Routing request",
		Summary:    summary,
		Detail:     detail,
		Confidence: dec.Confidence,
		Status:     thought.StatusActive,
	}
}
