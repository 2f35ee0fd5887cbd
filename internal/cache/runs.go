package cache

import "sync"

// RunIndex maps simulation run IDs to their database row IDs
type RunIndex struct {
	mu   sync.RWMutex
	runs map[string]uint
}

// NewRunIndex creates a new RunIndex
func NewRunIndex() *RunIndex {
	return &RunIndex{
		runs: make(map[string]uint),
	}
}

// Get retrieves a row ID by run ID
func (c *RunIndex) Get(runID string) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.runs[runID]
	return id, ok
}

// Set stores a row ID by run ID
func (c *RunIndex) Set(runID string, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[runID] = id
}

// Delete removes a run
func (c *RunIndex) Delete(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runID)
}
