package planner

import (
	"slices"
	"sync"
)

// Guard is a per-key in-flight token: at most one holder per key, and a second
// caller is turned away instead of waiting.
type Guard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{busy: make(map[string]struct{})}
}

// TryAcquire takes the token for key. The returned release func must be
// called exactly once when ok is true.
func (g *Guard) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.busy[key]; held {
		return nil, false
	}
	g.busy[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.busy, key)
		g.mu.Unlock()
	}, true
}

// Busy reports whether key is currently held.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.busy[key]
	return held
}

// Selection is the set of meal indices a user has marked for regeneration.
type Selection struct {
	mu      sync.Mutex
	indices map[int]struct{}
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{indices: make(map[int]struct{})}
}

// Toggle adds index if absent, removes it otherwise. It reports whether the
// index is selected afterwards.
func (s *Selection) Toggle(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[index]; ok {
		delete(s.indices, index)
		return false
	}
	s.indices[index] = struct{}{}
	return true
}

// Set replaces the selection.
func (s *Selection) Set(indices ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = make(map[int]struct{}, len(indices))
	for _, i := range indices {
		s.indices[i] = struct{}{}
	}
}

// Indices returns the selected indices in ascending order.
func (s *Selection) Indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.indices))
	for i := range s.indices {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.indices)
}
