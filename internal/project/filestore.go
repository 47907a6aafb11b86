package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageLogWriter stores diagnostic blobs for a stage attempt, e.g. the
// raw unit response. Implemented by FileStore; deployments without a
// file store simply skip stage logs.
type StageLogWriter interface {
	WriteStageLog(id, stage string, attempt int, name string, data []byte) (string, error)
}

// FileStore persists contexts as JSON files under a root directory, one
// directory per project. Writes are atomic (temp file + rename); a
// store-wide mutex serializes read-modify-write cycles within the
// process.
type FileStore struct {
	root string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: empty root dir")
	}
	if err := os.MkdirAll(filepath.Join(dir, "projects"), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the store's root directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) projectDir(id string) string {
	return filepath.Join(s.root, "projects", id)
}

func (s *FileStore) contextPath(id string) string {
	return filepath.Join(s.projectDir(id), "context.json")
}

// validID rejects identifiers that cannot be used as a directory name.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}

// Load reads the context for id. Returns ErrNotFound if it has never
// been saved.
func (s *FileStore) Load(ctx context.Context, id string) (*Context, error) {
	if !validID(id) {
		return nil, fmt.Errorf("load project: invalid id %q", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *FileStore) loadLocked(id string) (*Context, error) {
	var pc Context
	if err := readJSON(s.contextPath(id), &pc); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	if pc.Stages == nil {
		pc.Stages = make(map[string][]StageResult)
	}
	return &pc, nil
}

// Save persists pc if its Version still matches the stored record.
// First save requires Version 0. On success pc.Version is advanced.
func (s *FileStore) Save(ctx context.Context, pc *Context) error {
	if pc == nil || !validID(pc.ID) {
		return fmt.Errorf("save project: invalid id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked(pc.ID)
	switch {
	case err == ErrNotFound:
		if pc.Version != 0 {
			return fmt.Errorf("save project %s: %w", pc.ID, ErrNotFound)
		}
	case err != nil:
		return err
	default:
		if cur.Version != pc.Version {
			return fmt.Errorf("save project %s: stored version %d, caller has %d: %w",
				pc.ID, cur.Version, pc.Version, ErrVersionConflict)
		}
	}

	pc.Version++
	pc.UpdatedAt = time.Now().UTC()
	if err := writeJSON(s.contextPath(pc.ID), pc); err != nil {
		pc.Version--
		return fmt.Errorf("save project %s: %w", pc.ID, err)
	}
	return nil
}

// List returns all stored contexts sorted by ID.
func (s *FileStore) List(ctx context.Context) ([]*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, "projects"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var out []*Context
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pc, err := s.loadLocked(e.Name())
		if err != nil {
			// Half-created directories are not listable projects.
			continue
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a project and all of its stage logs.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("delete project: invalid id %q", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.projectDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

// WriteStageLog stores a diagnostic blob under the stage attempt's
// directory and returns the file path.
func (s *FileStore) WriteStageLog(id, stage string, attempt int, name string, data []byte) (string, error) {
	for _, part := range []string{id, stage, name} {
		if !validID(part) {
			return "", fmt.Errorf("write stage log: invalid path element %q", part)
		}
	}
	dir := filepath.Join(s.projectDir(id), "stages", stage, fmt.Sprintf("attempt-%d", attempt))
	path := filepath.Join(dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("write stage log: %w", err)
	}
	return path, nil
}

// ReadStageLog reads a blob written by WriteStageLog.
func (s *FileStore) ReadStageLog(id, stage string, attempt int, name string) ([]byte, error) {
	path := filepath.Join(s.projectDir(id), "stages", stage, fmt.Sprintf("attempt-%d", attempt), name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read stage log: %w", err)
	}
	return data, nil
}
