package plan

import (
	"context"
	"sync"
)

type staticSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewStaticSource returns an in-memory Source with a deep copy of the given plans.
// Deep copying prevents external modifications from affecting the source's state.
func NewStaticSource(plans ...Plan) Source {
	plansCopy := make(map[string]Plan, len(plans))
	for _, p := range plans {
		plansCopy[p.ID] = p.clone()
	}
	return &staticSource{plans: plansCopy}
}

// Load returns a copy of all available plans from memory.
func (s *staticSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plansCopy := make(map[string]Plan, len(s.plans))
	for id, p := range s.plans {
		plansCopy[id] = p.clone()
	}
	return plansCopy, nil
}
