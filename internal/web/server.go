package web

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aerostat-labs/windscout/internal/agent"
	"github.com/aerostat-labs/windscout/internal/db"
	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/thought"
	"github.com/aerostat-labs/windscout/internal/workflow"
)

// Asker routes one request to a capability handler and returns the
// response envelope. Satisfied by *agent.Router.
type Asker interface {
	Ask(ctx context.Context, req agent.Request) *agent.Response
	Capabilities() []string
}

// StatusReader reports the per-stage rollup for one project. Satisfied
// by *workflow.Orchestrator.
type StatusReader interface {
	Status(ctx context.Context, projectID string) (*project.Context, []workflow.StageStatus, error)
}

// ActivityLog lists recent stage events across all projects. Satisfied
// by *db.DB. Optional; the file backend runs without one.
type ActivityLog interface {
	GetRecentStageEvents(ctx context.Context, limit int) ([]db.StageEvent, error)
}

// Server is the JSON API. Everything it serves derives from the
// router, the reasoning log, and the project store; it keeps no state
// of its own, so any number of replicas can sit in front of the same
// backends.
type Server struct {
	router   Asker
	recorder thought.Recorder
	store    project.Store
	status   StatusReader
	activity ActivityLog

	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	streamPoll   time.Duration
	logf         func(format string, args ...any)
}

// NewServer creates a Server with default listen address and timeouts.
func NewServer(router Asker, recorder thought.Recorder, store project.Store, status StatusReader) *Server {
	return &Server{
		router:       router,
		recorder:     recorder,
		store:        store,
		status:       status,
		addr:         ":8080",
		readTimeout:  15 * time.Second,
		writeTimeout: 120 * time.Second,
		streamPoll:   time.Second,
		logf:         log.Printf,
	}
}

// SetAddr overrides the listen address. Empty keeps the default.
func (s *Server) SetAddr(addr string) {
	if addr != "" {
		s.addr = addr
	}
}

// SetTimeouts overrides the HTTP read and write timeouts.
func (s *Server) SetTimeouts(read, write time.Duration) {
	if read > 0 {
		s.readTimeout = read
	}
	if write > 0 {
		s.writeTimeout = write
	}
}

// SetActivityLog attaches the stage event feed backing /api/activity.
func (s *Server) SetActivityLog(a ActivityLog) { s.activity = a }

// SetStreamPoll overrides how often the SSE stream polls the reasoning
// log for new steps.
func (s *Server) SetStreamPoll(d time.Duration) {
	if d > 0 {
		s.streamPoll = d
	}
}

// SetLogf overrides where progress lines go.
func (s *Server) SetLogf(f func(format string, args ...any)) {
	if f != nil {
		s.logf = f
	}
}

// Handler returns the full routing table as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/capabilities", s.handleCapabilities)
	mux.HandleFunc("/api/sessions/", s.routeSessions)
	mux.HandleFunc("/api/projects", s.handleProjectList)
	mux.HandleFunc("/api/projects/", s.routeProjects)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *Server) routeSessions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "thoughts" && parts[0] != "":
		s.handleThoughts(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "thoughts" && parts[2] == "stream":
		s.handleThoughtStream(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) routeProjects(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/projects/"), "/")
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	s.handleProjectDetail(w, r, rest)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logf("windscout api listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
