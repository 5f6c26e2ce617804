package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory keeps sessions in a map. Suitable for single-process deployments
// that can afford to lose sessions on restart.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]*Record
}

func NewMemory() *Memory {
	return &Memory{recs: make(map[string]*Record)}
}

func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *Memory) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("session record requires an id")
	}
	clone := rec.Clone()
	clone.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.recs[clone.ID] = clone
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.recs, id)
	m.mu.Unlock()
	return nil
}
