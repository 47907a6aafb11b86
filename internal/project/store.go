package project

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no context exists for an identifier.
var ErrNotFound = errors.New("project not found")

// ErrVersionConflict is returned by Save when the stored version no
// longer matches the caller's copy: someone else committed first. The
// caller reloads, reapplies its change, and saves again.
var ErrVersionConflict = errors.New("project version conflict")

// Store is durable get/put for project contexts, keyed by identifier,
// with optimistic concurrency on Save. Save compares the caller's
// Version against the stored one; on success the stored record and the
// caller's copy both advance to Version+1. A context that has never
// been saved carries Version 0.
type Store interface {
	Load(ctx context.Context, id string) (*Context, error)
	Save(ctx context.Context, pc *Context) error
	List(ctx context.Context) ([]*Context, error)
	Delete(ctx context.Context, id string) error
}
