package pipeline

import "sync"

// Shared is the per-run key/value context. Upstream stages publish values
// that are not carried on a stage's direct input, such as the resolved graph
// space.
type Shared struct {
	mu   sync.RWMutex
	vals map[string]any
}

// NewShared returns an empty shared context.
func NewShared() *Shared {
	return &Shared{vals: make(map[string]any)}
}

// Set stores v under key.
func (s *Shared) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = v
}

// Get returns the value stored under key.
func (s *Shared) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vals[key]
	return v, ok
}

// Value returns the value under key if it has type T.
func Value[T any](s *Shared, key string) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// StringOr returns the string under key, or def when absent or empty.
func (s *Shared) StringOr(key, def string) string {
	if v, ok := Value[string](s, key); ok && v != "" {
		return v
	}
	return def
}
