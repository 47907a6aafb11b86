package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aerostat-labs/windscout/internal/invoke"
	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/thought"
	"github.com/aerostat-labs/windscout/internal/unit"
	"github.com/aerostat-labs/windscout/internal/validate"
)

// UnitInvoker dispatches one stage invocation to a compute unit.
type UnitInvoker interface {
	Invoke(ctx context.Context, unitName string, in unit.Input) (*unit.Output, error)
}

var _ UnitInvoker = (*invoke.Invoker)(nil)

// EventLog records stage lifecycle events. Satisfied by db.DB;
// deployments without a database run without one.
type EventLog interface {
	LogStageEvent(ctx context.Context, projectID, stage, event string, attempt int, durationMs int64, detail string) error
}

// Orchestrator drives the feasibility pipeline: it loads or creates the
// project context, gates each stage on its prerequisites, hands the
// full accumulated context to the unit, and persists the outcome,
// success or failure, before returning. A request cancelled mid-stage
// persists nothing.
type Orchestrator struct {
	store    project.Store
	invoker  UnitInvoker
	recorder thought.Recorder
	stageLog project.StageLogWriter
	events   EventLog
	logf     func(format string, args ...any)
}

// New creates an orchestrator over the given store, invoker, and
// thought recorder.
func New(store project.Store, invoker UnitInvoker, recorder thought.Recorder) *Orchestrator {
	return &Orchestrator{
		store:    store,
		invoker:  invoker,
		recorder: recorder,
		logf:     func(string, ...any) {},
	}
}

// SetStageLog installs a writer for per-attempt diagnostic blobs.
func (o *Orchestrator) SetStageLog(w project.StageLogWriter) { o.stageLog = w }

// SetEventLog installs a stage event sink.
func (o *Orchestrator) SetEventLog(e EventLog) { o.events = e }

// SetLogf installs a progress sink.
func (o *Orchestrator) SetLogf(f func(format string, args ...any)) {
	if f != nil {
		o.logf = f
	}
}

// RunStage executes one pipeline stage for the project and returns the
// saved context and the recorded stage result. Prerequisite failures
// surface as *MissingPrerequisiteError before anything is invoked.
func (o *Orchestrator) RunStage(ctx context.Context, sessionID, projectID, stageName string, params map[string]any) (*project.Context, *project.StageResult, error) {
	spec, ok := specs[stageName]
	if !ok {
		return nil, nil, fmt.Errorf("unknown stage %q", stageName)
	}

	pc, err := o.loadOrCreate(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	applySiteParams(pc, params)

	if missing := missingPrereqs(pc, spec); len(missing) > 0 {
		prereqErr := &MissingPrerequisiteError{Stage: stageName, Missing: missing}
		o.record(ctx, sessionID, thought.Step{
			Type:    thought.TypeError,
			Title:   fmt.Sprintf("Cannot run %s yet", stageName),
			Summary: prereqErr.Error(),
			Status:  thought.StatusFailed,
		})
		return pc, nil, prereqErr
	}

	attempt := len(pc.Stages[stageName]) + 1
	seq := o.begin(ctx, sessionID, thought.Step{
		Type:    thought.TypeStage,
		Title:   fmt.Sprintf("Running %s stage", stageName),
		Summary: fmt.Sprintf("dispatching to unit %s (attempt %d)", spec.Unit, attempt),
		Status:  thought.StatusActive,
	})
	o.logEvent(ctx, projectID, stageName, "started", attempt, 0, "")

	start := time.Now()
	out, err := o.invoker.Invoke(ctx, spec.Unit, unit.Input{
		ProjectContext:  pc,
		StageParameters: params,
	})
	durMs := time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		// The caller went away; the stage outcome is unknowable and
		// nothing may be persisted for this request.
		o.finish(ctx, sessionID, seq, thought.Finish{
			Status:     thought.StatusFailed,
			Summary:    "cancelled: " + ctx.Err().Error(),
			DurationMs: durMs,
		})
		if err != nil {
			return pc, nil, err
		}
		return pc, nil, fmt.Errorf("run stage %s: %w", stageName, ctx.Err())
	}

	if err != nil {
		res := project.StageResult{
			Stage:       stageName,
			Status:      project.StatusFailed,
			Error:       err.Error(),
			DurationMs:  durMs,
			CompletedAt: time.Now().UTC(),
		}
		saved, commitErr := o.commit(ctx, pc, params, res)
		if commitErr != nil {
			o.logf("persist failed %s result: %v", stageName, commitErr)
		} else {
			pc = saved
		}
		o.logEvent(ctx, projectID, stageName, "failed", attempt, durMs, err.Error())
		o.finish(ctx, sessionID, seq, thought.Finish{
			Status:     thought.StatusFailed,
			Summary:    err.Error(),
			DurationMs: durMs,
		})
		return pc, pc.Latest(stageName), err
	}

	res := project.StageResult{
		Stage:       stageName,
		Status:      project.StatusSuccess,
		Output:      out.StageOutput,
		Artifacts:   out.Artifacts,
		Findings:    validate.Evaluate(stageName, out.StageOutput),
		DurationMs:  durMs,
		CompletedAt: time.Now().UTC(),
	}
	pc, err = o.commit(ctx, pc, params, res)
	if err != nil {
		o.finish(ctx, sessionID, seq, thought.Finish{
			Status:     thought.StatusFailed,
			Summary:    fmt.Sprintf("stage succeeded but saving failed: %v", err),
			DurationMs: durMs,
		})
		return nil, nil, err
	}
	latest := pc.Latest(stageName)

	o.writeStageLog(pc.ID, stageName, latest.Attempt, out)
	o.logEvent(ctx, projectID, stageName, "completed", latest.Attempt, durMs, "")
	o.finish(ctx, sessionID, seq, thought.Finish{
		Status:     thought.StatusComplete,
		Summary:    fmt.Sprintf("%s complete in %dms", stageName, durMs),
		DurationMs: durMs,
	})
	o.logf("stage %s attempt %d for %s: success in %dms", stageName, latest.Attempt, projectID, durMs)
	return pc, latest, nil
}

// RunResult summarizes a full pipeline run.
type RunResult struct {
	ProjectID string                 `json:"project_id"`
	Completed []string               `json:"completed"`
	Failed    string                 `json:"failed,omitempty"`
	Results   []*project.StageResult `json:"results"`
	Error     string                 `json:"error,omitempty"`
}

// Run executes the whole pipeline in order, halting at the first stage
// that fails. Each stage sees the context accumulated by the ones
// before it.
func (o *Orchestrator) Run(ctx context.Context, sessionID, projectID string, params map[string]any) (*RunResult, error) {
	result := &RunResult{ProjectID: projectID}
	for _, stageName := range StageOrder {
		_, sr, err := o.RunStage(ctx, sessionID, projectID, stageName, params)
		if sr != nil {
			result.Results = append(result.Results, sr)
		}
		if err != nil {
			result.Failed = stageName
			result.Error = err.Error()
			return result, err
		}
		result.Completed = append(result.Completed, stageName)
	}
	return result, nil
}

// StageStatus is the per-stage rollup reported by Status.
type StageStatus struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Status returns the project context and a rollup of every pipeline
// stage, in pipeline order.
func (o *Orchestrator) Status(ctx context.Context, projectID string) (*project.Context, []StageStatus, error) {
	pc, err := o.store.Load(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	statuses := make([]StageStatus, 0, len(StageOrder))
	for _, stageName := range StageOrder {
		st := StageStatus{Stage: stageName, Status: project.StatusPending}
		if latest := pc.Latest(stageName); latest != nil {
			st.Status = latest.Status
			st.Attempts = latest.Attempt
			st.DurationMs = latest.DurationMs
			st.Error = latest.Error
		}
		statuses = append(statuses, st)
	}
	return pc, statuses, nil
}

// --- Helpers ---

func (o *Orchestrator) loadOrCreate(ctx context.Context, projectID string) (*project.Context, error) {
	pc, err := o.store.Load(ctx, projectID)
	if errors.Is(err, project.ErrNotFound) {
		return project.New(projectID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	return pc, nil
}

// commit appends the result and saves, reloading and reapplying when a
// concurrent writer got there first.
func (o *Orchestrator) commit(ctx context.Context, pc *project.Context, params map[string]any, res project.StageResult) (*project.Context, error) {
	pc.AppendResult(res)
	for attempt := 0; ; attempt++ {
		err := o.store.Save(ctx, pc)
		if err == nil {
			return pc, nil
		}
		if !errors.Is(err, project.ErrVersionConflict) || attempt >= 2 {
			return nil, fmt.Errorf("save project %s: %w", pc.ID, err)
		}
		fresh, loadErr := o.store.Load(ctx, pc.ID)
		if loadErr != nil {
			return nil, fmt.Errorf("reload project %s after conflict: %w", pc.ID, loadErr)
		}
		applySiteParams(fresh, params)
		fresh.AppendResult(res)
		pc = fresh
	}
}

func missingPrereqs(pc *project.Context, spec StageSpec) []string {
	var missing []string
	for _, dep := range spec.Requires {
		if !pc.HasSuccess(dep) {
			missing = append(missing, dep)
		}
	}
	return missing
}

// applySiteParams folds caller-supplied site identity into the context
// once; existing values always win.
func applySiteParams(pc *project.Context, params map[string]any) {
	if pc.Location == nil {
		lat, okLat := toFloat(params["lat"])
		lon, okLon := toFloat(params["lon"])
		if okLat && okLon {
			pc.Location = &project.Location{Lat: lat, Lon: lon}
		}
	}
	if place, ok := params["place"].(string); ok && place != "" {
		if pc.Location == nil {
			pc.Location = &project.Location{Place: place}
		} else if pc.Location.Place == "" {
			pc.Location.Place = place
		}
	}
	if pc.CapacityMW == 0 {
		if mw, ok := toFloat(params["capacity_mw"]); ok && mw > 0 {
			pc.CapacityMW = mw
		}
	}
	if pc.Name == "" {
		if name, ok := params["project_name"].(string); ok {
			pc.Name = name
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (o *Orchestrator) begin(ctx context.Context, sessionID string, step thought.Step) int {
	if sessionID == "" {
		return 0
	}
	seq, err := o.recorder.Append(ctx, sessionID, step)
	if err != nil {
		o.logf("record thought: %v", err)
		return 0
	}
	return seq
}

func (o *Orchestrator) record(ctx context.Context, sessionID string, step thought.Step) {
	o.begin(ctx, sessionID, step)
}

func (o *Orchestrator) finish(ctx context.Context, sessionID string, seq int, fin thought.Finish) {
	if sessionID == "" || seq == 0 {
		return
	}
	if err := o.recorder.Finish(ctx, sessionID, seq, fin); err != nil {
		o.logf("finish thought: %v", err)
	}
}

func (o *Orchestrator) logEvent(ctx context.Context, projectID, stageName, event string, attempt int, durMs int64, detail string) {
	if o.events == nil {
		return
	}
	_ = o.events.LogStageEvent(ctx, projectID, stageName, event, attempt, durMs, detail)
}

func (o *Orchestrator) writeStageLog(projectID, stageName string, attempt int, out *unit.Output) {
	if o.stageLog == nil {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	if _, err := o.stageLog.WriteStageLog(projectID, stageName, attempt, "output.json", data); err != nil {
		o.logf("write stage log: %v", err)
	}
}
