// Package sessions persists capture sessions between workflow events. The
// workflow serializes access per session id; stores only need to be safe for
// concurrent use across different ids.
package sessions

import (
	"context"
	"fmt"
	"time"

	"snapshelf/internal/domain"
)

// Record is one session's persisted state. Draft is nil while no item is
// pending.
type Record struct {
	ID        string
	State     string
	Draft     *domain.Draft
	UpdatedAt time.Time
}

// Clone deep-copies the record so callers never share draft state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Draft = r.Draft.Clone()
	return &c
}

// Store is the session persistence boundary. Get returns (nil, nil) for an
// unknown id, Put upserts and stamps UpdatedAt, Delete is idempotent.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
}

// New selects a backend by name. The cleanup func releases backend resources
// and is safe to call once at shutdown.
func New(backend, path string) (Store, func() error, error) {
	switch backend {
	case "memory":
		return NewMemory(), func() error { return nil }, nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
