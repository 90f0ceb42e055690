package parallel

import "sync"

// StepSet is a thread-safe set of global training steps that were already handled.
// It only grows; the run length bounds its size.
type StepSet struct {
	mu  sync.RWMutex     // Synchronizes access to the set
	set map[int]struct{} // Steps seen so far
}

// NewStepSet initializes and returns an empty StepSet.
func NewStepSet() *StepSet {
	return &StepSet{
		set: make(map[int]struct{}),
	}
}

// Insert adds a step to the set. It reports true when the step was not present before,
// so that check and insert happen atomically.
func (m *StepSet) Insert(step int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.set[step]; exists {
		return false
	}
	m.set[step] = struct{}{}
	return true
}

// Exists checks if a step was already inserted.
func (m *StepSet) Exists(step int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.set[step]
	return exists
}

// Len returns the number of steps seen.
func (m *StepSet) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set)
}
