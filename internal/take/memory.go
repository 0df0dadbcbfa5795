package take

import (
	"context"
	"sort"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps takes in a map guarded by a RWMutex.
// Takes are cloned on the way in and out.
type MemoryRepository struct {
	mu    sync.RWMutex
	takes map[string]*Take
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		takes: make(map[string]*Take),
	}
}

// Save stores a clone of t.
func (r *MemoryRepository) Save(_ context.Context, t *Take) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.takes[t.ID] = t.Clone()
	return nil
}

// FindByID returns a clone of the stored take.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Take, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.takes[id]
	if !ok {
		return nil, ErrTakeNotFound
	}
	return t.Clone(), nil
}

// List returns clones of all takes, oldest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Take, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Take, 0, len(r.takes))
	for _, t := range r.takes {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a take.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.takes[id]; !ok {
		return ErrTakeNotFound
	}
	delete(r.takes, id)
	return nil
}
