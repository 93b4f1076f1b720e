package results

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type InMemoryRepository struct {
	results map[uuid.UUID]*Result
	mu      sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		results: make(map[uuid.UUID]*Result),
	}
}

func (r *InMemoryRepository) Save(ctx context.Context, result *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *result
	stored.Feedback = slices.Clone(result.Feedback)
	r.results[result.ID] = &stored
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, exists := r.results[id]
	if !exists {
		return nil, ErrResultNotFound
	}
	out := *result
	return &out, nil
}

func (r *InMemoryRepository) List(ctx context.Context, instanceID, trainee string) ([]*Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Result{}
	for _, result := range r.results {
		if result.InstanceID != instanceID {
			continue
		}
		if trainee != "" && result.Trainee != trainee {
			continue
		}
		cp := *result
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Result) int {
		return b.GradedAt.Compare(a.GradedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) Close() {}
