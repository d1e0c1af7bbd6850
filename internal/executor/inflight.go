package executor

import "sync"

// inflightSet tracks task ids with a running execution so a task is never
// started twice concurrently.
type inflightSet struct {
	mu  *sync.Mutex
	ids map[string]struct{}
}

func newInflightSet() inflightSet {
	return inflightSet{
		mu:  &sync.Mutex{},
		ids: make(map[string]struct{}),
	}
}

// tryAdd registers a task id, returning false if it is already in flight.
func (s inflightSet) tryAdd(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[taskID]; ok {
		return false
	}
	s.ids[taskID] = struct{}{}
	return true
}

func (s inflightSet) remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, taskID)
}

func (s inflightSet) has(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[taskID]
	return ok
}
