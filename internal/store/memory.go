package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and single-node runs.
type Memory struct {
	mu          sync.RWMutex
	assessments map[string]Assessment
	rationales  map[string]Rationale
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		assessments: make(map[string]Assessment),
		rationales:  make(map[string]Rationale),
	}
}

func (m *Memory) SaveAssessment(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.ID] = a
	return nil
}

func (m *Memory) SaveRationale(_ context.Context, r Rationale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rationales[r.AssessmentID] = r
	return nil
}

func (m *Memory) Assessment(_ context.Context, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[id]
	if !ok {
		return Assessment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) Rationale(_ context.Context, assessmentID string) (Rationale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rationales[assessmentID]
	if !ok {
		return Rationale{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) History(_ context.Context, userID string) ([]Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Assessment
	for _, a := range m.assessments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
