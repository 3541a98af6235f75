// Package drafts mirrors in-progress answer selections outside the process so a
// restarted server can pick up where a learner left off. Drafts are a cache:
// the attempt record stays the source of truth and drafts are dropped on submit.
package drafts

import (
	"context"
	"sync"
)

type Store interface {
	// Put records the chosen option for one question, replacing any earlier choice.
	Put(ctx context.Context, attemptID, questionID string, optionIndex int) error
	// Load returns every recorded choice; an unknown attempt yields an empty map.
	Load(ctx context.Context, attemptID string) (map[string]int, error)
	Delete(ctx context.Context, attemptID string) error
}

type memoryStore struct {
	mu     sync.Mutex
	drafts map[string]map[string]int
}

func NewMemoryStore() Store {
	return &memoryStore{drafts: map[string]map[string]int{}}
}

func (m *memoryStore) Put(_ context.Context, attemptID, questionID string, optionIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[attemptID]
	if !ok {
		d = map[string]int{}
		m.drafts[attemptID] = d
	}
	d[questionID] = optionIndex
	return nil
}

func (m *memoryStore) Load(_ context.Context, attemptID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.drafts[attemptID]))
	for k, v := range m.drafts[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, attemptID)
	return nil
}
