// Package cancel implements the two cancellation books that let the
// engine tell its own echoes apart from genuine peer-originated
// changes, without needing an origin-tag carried through the Server's
// or the filesystem's native change notifications.
package cancel

import "sync"

// PathCounter is the remote-to-local cancellation book
// ("nc2l_cancel_map" in the design notes): every local write the engine
// performs on behalf of a remote event bumps the count for that path by
// one; the next locally-observed event for that path decrements it and
// is dropped instead of being treated as a genuine local change.
type PathCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewPathCounter constructs an empty PathCounter.
func NewPathCounter() *PathCounter {
	return &PathCounter{counts: make(map[string]int)}
}

// Bump increments the counter for path by one.
func (c *PathCounter) Bump(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[path]++
}

// Consume reports whether path has a pending cancellation and, if so,
// decrements it (removing the entry once it reaches zero).
func (c *PathCounter) Consume(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, ok := c.counts[path]
	if !ok || count <= 0 {
		return false
	}
	if count == 1 {
		delete(c.counts, path)
	} else {
		c.counts[path] = count - 1
	}
	return true
}

// Clear empties the counter, as done when a repair pass discards stale
// cancellation state.
func (c *PathCounter) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
}

// EventSet is the local-to-remote cancellation book ("l2nc_cancel_set"):
// every Server mutation the engine performs on behalf of a local event
// is recorded here as a key; the next matching remote event consumes
// (removes) it and is dropped instead of being replayed locally.
type EventSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewEventSet constructs an empty EventSet.
func NewEventSet() *EventSet {
	return &EventSet{seen: make(map[string]struct{})}
}

// Add records key as a pending echo to cancel.
func (s *EventSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = struct{}{}
}

// Consume reports whether key was pending and, if so, removes it.
func (s *EventSet) Consume(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; !ok {
		return false
	}
	delete(s.seen, key)
	return true
}

// Clear empties the set.
func (s *EventSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}
