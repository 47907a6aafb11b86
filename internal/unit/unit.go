package unit

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aerostat-labs/windscout/internal/artifact"
	"github.com/aerostat-labs/windscout/internal/project"
)

// ErrRejected marks a payload the unit refused outright (malformed or
// missing inputs). Rejections are never retried.
var ErrRejected = errors.New("unit rejected the payload")

// Input is the invocation payload every compute unit receives: the full
// accumulated project context plus the parameters for this call. Units
// are stateless; everything they need must be in here.
type Input struct {
	ProjectContext  *project.Context `json:"project_context,omitempty"`
	StageParameters map[string]any   `json:"stage_parameters,omitempty"`
}

// Output is what a unit reports back. Success false with an
// ErrorMessage is a unit-level failure, distinct from transport errors.
type Output struct {
	Success      bool           `json:"success"`
	StageOutput  map[string]any `json:"stage_output,omitempty"`
	Artifacts    []artifact.Ref `json:"artifacts,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Unit is one stateless compute worker.
type Unit interface {
	Name() string
	Execute(ctx context.Context, in Input) (*Output, error)
}

// Registry maps unit names to implementations. Registration happens at
// startup; lookups are concurrent.
type Registry struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewRegistry creates a registry holding the given units.
func NewRegistry(units ...Unit) *Registry {
	r := &Registry{units: make(map[string]Unit, len(units))}
	for _, u := range units {
		r.units[u.Name()] = u
	}
	return r
}

// Register adds or replaces a unit.
func (r *Registry) Register(u Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[u.Name()] = u
}

// Get looks a unit up by name.
func (r *Registry) Get(name string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	return u, ok
}

// Names returns the registered unit names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for n := range r.units {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
