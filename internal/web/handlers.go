package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aerostat-labs/windscout/internal/agent"
	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/thought"
	"github.com/aerostat-labs/windscout/internal/workflow"
)

// ---- view models ----

// ThoughtsPage is one page of the reasoning trace. NextAfter is the
// value to pass as ?after= on the next poll; repeating it when no new
// steps arrived is harmless.
type ThoughtsPage struct {
	SessionID string         `json:"session_id"`
	Steps     []thought.Step `json:"steps"`
	NextAfter int            `json:"next_after"`
}

type ProjectRow struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Location   *project.Location `json:"location,omitempty"`
	CapacityMW float64           `json:"capacity_mw,omitempty"`
	Completed  []string          `json:"completed"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type ProjectDetail struct {
	Project *project.Context       `json:"project"`
	Stages  []workflow.StageStatus `json:"stages"`
}

type ActivityItem struct {
	ProjectID string    `json:"project_id"`
	Stage     string    `json:"stage"`
	Event     string    `json:"event"`
	Attempt   int       `json:"attempt"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// ---- handlers ----

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.Directive == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	resp := s.router.Ask(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": s.router.Capabilities(),
	})
}

func (s *Server) handleThoughts(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		after = n
	}

	steps, err := s.recorder.ReadAfter(r.Context(), sessionID, after)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if steps == nil {
		steps = []thought.Step{}
	}

	next := after
	if len(steps) > 0 {
		next = steps[len(steps)-1].Seq
	}
	writeJSON(w, http.StatusOK, ThoughtsPage{SessionID: sessionID, Steps: steps, NextAfter: next})
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	contexts, err := s.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows := make([]ProjectRow, 0, len(contexts))
	for _, pc := range contexts {
		completed := make([]string, 0, len(workflow.StageOrder))
		for _, stage := range workflow.StageOrder {
			if pc.HasSuccess(stage) {
				completed = append(completed, stage)
			}
		}
		rows = append(rows, ProjectRow{
			ID:         pc.ID,
			Name:       pc.Name,
			Location:   pc.Location,
			CapacityMW: pc.CapacityMW,
			Completed:  completed,
			UpdatedAt:  pc.UpdatedAt,
		})
	}

	// Most recently active first.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})

	writeJSON(w, http.StatusOK, map[string]any{"projects": rows, "count": len(rows)})
}

func (s *Server) handleProjectDetail(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	pc, stages, err := s.status.Status(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ProjectDetail{Project: pc, Stages: stages})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.activity == nil {
		http.Error(w, "activity feed requires the postgres backend", http.StatusNotImplemented)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.activity.GetRecentStageEvents(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]ActivityItem, 0, len(events))
	for _, e := range events {
		items = append(items, ActivityItem{
			ProjectID: e.ProjectID,
			Stage:     e.Stage,
			Event:     e.Event,
			Attempt:   e.Attempt,
			Detail:    e.Detail,
			At:        e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": items})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
