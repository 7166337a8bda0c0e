package runstore

import (
	"context"
	"sync"

	"cloudarb/core/models"
)

// MemoryStore is the default in-process run store.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]models.OptimizationRun
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{runs: make(map[string]models.OptimizationRun)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, run models.OptimizationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, run models.OptimizationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (models.OptimizationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return models.OptimizationRun{}, models.NewError(models.CodeRunNotFound, "optimization run not found: "+id)
	}
	return run, nil
}

// Close implements Store.
func (s *MemoryStore) Close(_ context.Context) error { return nil }
