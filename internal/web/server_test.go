package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostat-labs/windscout/internal/agent"
	"github.com/aerostat-labs/windscout/internal/artifact"
	"github.com/aerostat-labs/windscout/internal/db"
	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/thought"
	"github.com/aerostat-labs/windscout/internal/workflow"
)

// ---- fakes ----

type fakeAsker struct {
	last    agent.Request
	respond func(req agent.Request) *agent.Response
}

func (f *fakeAsker) Ask(ctx context.Context, req agent.Request) *agent.Response {
	f.last = req
	if f.respond != nil {
		return f.respond(req)
	}
	return &agent.Response{
		Success:      true,
		Message:      "answered: " + req.Text,
		Capability:   "qa",
		SessionID:    req.SessionID,
		Artifacts:    []artifact.Artifact{},
		ThoughtSteps: []thought.Step{},
	}
}

func (f *fakeAsker) Capabilities() []string {
	return []string{"qa", "survey-analysis"}
}

type fakeStatus struct {
	pc     *project.Context
	stages []workflow.StageStatus
	err    error
}

func (f *fakeStatus) Status(ctx context.Context, projectID string) (*project.Context, []workflow.StageStatus, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.pc, f.stages, nil
}

type fakeActivity struct {
	events []db.StageEvent
}

func (f *fakeActivity) GetRecentStageEvents(ctx context.Context, limit int) ([]db.StageEvent, error) {
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func newTestServer(t *testing.T) (*Server, *fakeAsker, *thought.MemoryRecorder, project.Store) {
	t.Helper()
	asker := &fakeAsker{}
	rec := thought.NewMemoryRecorder()
	store, err := project.NewFileStore(t.TempDir())
	require.NoError(t, err)
	s := NewServer(asker, rec, store, &fakeStatus{})
	s.SetLogf(func(string, ...any) {})
	return s, asker, rec, store
}

func seedSteps(t *testing.T, rec *thought.MemoryRecorder, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := rec.Append(context.Background(), sessionID, thought.Step{
			Type:    thought.TypeStage,
			Title:   "Step",
			Summary: "step",
			Status:  thought.StatusComplete,
		})
		require.NoError(t, err)
	}
}

// ---- /api/ask ----

func TestAskEndpointRoundTrip(t *testing.T) {
	s, asker, _, _ := newTestServer(t)

	body := `{"text": "what is a wind rose?", "session_id": "s-77", "params": {"lat": 45.5}}`
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp agent.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "answered: what is a wind rose?", resp.Message)
	assert.Equal(t, "s-77", resp.SessionID)

	assert.Equal(t, "what is a wind rose?", asker.last.Text)
	assert.Equal(t, "s-77", asker.last.SessionID)
	assert.Equal(t, 45.5, asker.last.Params["lat"])
}

func TestAskFailureEnvelopePassesThrough(t *testing.T) {
	s, asker, _, _ := newTestServer(t)
	asker.respond = func(req agent.Request) *agent.Response {
		return &agent.Response{
			Success:      false,
			Message:      "simulation stage failed",
			Capability:   "simulation-run_error",
			Artifacts:    []artifact.Artifact{},
			ThoughtSteps: []thought.Step{},
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"text": "simulate"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	// The envelope carries the failure; HTTP stays 200.
	require.Equal(t, http.StatusOK, w.Code)
	var resp agent.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "simulation-run_error", resp.Capability)
}

func TestAskRejectsBadJSON(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskRequiresText(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"text": "   "}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskDirectiveAloneIsEnough(t *testing.T) {
	s, asker, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"directive": "wind-rose", "project_id": "proj-a"}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wind-rose", asker.last.Directive)
	assert.Equal(t, "proj-a", asker.last.ProjectID)
}

func TestAskMethodNotAllowed(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ask", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// ---- /api/capabilities ----

func TestCapabilitiesEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/capabilities", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Capabilities []string `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, []string{"qa", "survey-analysis"}, out.Capabilities)
}

// ---- /api/sessions/{id}/thoughts ----

func TestThoughtsReturnsStepsInOrder(t *testing.T) {
	s, _, rec, _ := newTestServer(t)
	seedSteps(t, rec, "s-1", 3)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s-1/thoughts", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var page ThoughtsPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, "s-1", page.SessionID)
	require.Len(t, page.Steps, 3)
	for i, step := range page.Steps {
		assert.Equal(t, i+1, step.Seq)
	}
	assert.Equal(t, 3, page.NextAfter)
}

func TestThoughtsAfterParamResumes(t *testing.T) {
	s, _, rec, _ := newTestServer(t)
	seedSteps(t, rec, "s-1", 3)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s-1/thoughts?after=2", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var page ThoughtsPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Steps, 1)
	assert.Equal(t, 3, page.Steps[0].Seq)
	assert.Equal(t, 3, page.NextAfter)
}

func TestThoughtsPastEndKeepsCursor(t *testing.T) {
	s, _, rec, _ := newTestServer(t)
	seedSteps(t, rec, "s-1", 2)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s-1/thoughts?after=9", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var page ThoughtsPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Empty(t, page.Steps)
	assert.Equal(t, 9, page.NextAfter)
}

func TestThoughtsEmptySessionIsEmptyList(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/never-seen/thoughts", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	// Empty list, never null.
	assert.Contains(t, w.Body.String(), `"steps":[]`)
}

func TestThoughtsRejectsBadAfter(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s-1/thoughts?after=soon", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionRouteFallthrough(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	for _, path := range []string{"/api/sessions/", "/api/sessions/s-1", "/api/sessions/s-1/other"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, "path %s", path)
	}
}

// ---- /api/projects ----

func TestProjectListSortsByRecency(t *testing.T) {
	s, _, _, store := newTestServer(t)
	ctx := context.Background()

	older := project.New("proj-older")
	older.Name = "Older Site"
	require.NoError(t, store.Save(ctx, older))

	time.Sleep(5 * time.Millisecond)

	newer := project.New("proj-newer")
	newer.Name = "Newer Site"
	newer.CapacityMW = 150
	require.NoError(t, store.Save(ctx, newer))

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Projects []ProjectRow `json:"projects"`
		Count    int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "proj-newer", out.Projects[0].ID)
	assert.Equal(t, 150.0, out.Projects[0].CapacityMW)
	assert.Equal(t, "proj-older", out.Projects[1].ID)
	// No stage has run yet.
	assert.Empty(t, out.Projects[0].Completed)
}

func TestProjectDetailReportsStages(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	pc := project.New("proj-x")
	pc.Name = "Site X"
	s.status = &fakeStatus{
		pc: pc,
		stages: []workflow.StageStatus{
			{Stage: "survey", Status: project.StatusSuccess, Attempts: 1},
			{Stage: "layout", Status: project.StatusPending},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/projects/proj-x", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out ProjectDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "proj-x", out.Project.ID)
	require.Len(t, out.Stages, 2)
	assert.Equal(t, project.StatusSuccess, out.Stages[0].Status)
}

func TestProjectDetailNotFound(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	s.status = &fakeStatus{err: project.ErrNotFound}

	req := httptest.NewRequest(http.MethodGet, "/api/projects/ghost", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectRouteFallthrough(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/a/b", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---- /api/activity ----

func TestActivityWithoutLogIsNotImplemented(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/activity", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestActivityReturnsEvents(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	now := time.Now().UTC()
	s.SetActivityLog(&fakeActivity{events: []db.StageEvent{
		{ProjectID: "proj-a", Stage: "survey", Event: "completed", Attempt: 1, CreatedAt: now},
		{ProjectID: "proj-b", Stage: "layout", Event: "failed", Attempt: 2, Detail: "grid error", CreatedAt: now},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/activity", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Events []ActivityItem `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Events, 2)
	assert.Equal(t, "survey", out.Events[0].Stage)
	assert.Equal(t, "grid error", out.Events[1].Detail)
}

func TestActivityRejectsBadLimit(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	s.SetActivityLog(&fakeActivity{})

	for _, q := range []string{"limit=0", "limit=-3", "limit=9999", "limit=soon"} {
		req := httptest.NewRequest(http.MethodGet, "/api/activity?"+q, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "query %s", q)
	}
}

// ---- /healthz ----

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

// ---- SSE stream ----

func TestThoughtStreamTailsNewSteps(t *testing.T) {
	s, _, rec, _ := newTestServer(t)
	s.SetStreamPoll(5 * time.Millisecond)
	seedSteps(t, rec, "s-1", 2)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/s-1/thoughts/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Collect events until the step appended mid-stream shows up.
	scanner := bufio.NewScanner(resp.Body)
	var dataLines []string
	appended := false
	for len(dataLines) < 3 && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		if !appended {
			appended = true
			seedSteps(t, rec, "s-1", 1)
		}
	}
	cancel()

	require.Len(t, dataLines, 3)
	for i, data := range dataLines {
		var step thought.Step
		require.NoError(t, json.Unmarshal([]byte(data), &step), "event %d", i)
		assert.Equal(t, i+1, step.Seq)
	}
}

func TestThoughtStreamResumesAfter(t *testing.T) {
	s, _, rec, _ := newTestServer(t)
	s.SetStreamPoll(5 * time.Millisecond)
	seedSteps(t, rec, "s-1", 3)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/s-1/thoughts/stream?after=2", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var buf bytes.Buffer
	for !strings.Contains(buf.String(), "event: step") || !strings.Contains(buf.String(), "\n\n") {
		b, err := reader.ReadByte()
		require.NoError(t, err)
		buf.WriteByte(b)
	}
	cancel()

	var step thought.Step
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "data: ") {
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &step))
		}
	}
	assert.Equal(t, 3, step.Seq)
}

func TestThoughtStreamRejectsBadAfter(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s-1/thoughts/stream?after=x", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
