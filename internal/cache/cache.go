package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/skyblocks/flightdeck/internal/compiler"
)

// DefaultCapacity is the number of compiled workspaces kept.
const DefaultCapacity = 128

type entry struct {
	program compiler.Program
	err     error
}

// ProgramCache memoizes compilation by the hash of the raw workspace bytes.
// Structural errors are cached too, since compilation is deterministic.
// Entries are evicted oldest first.
type ProgramCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]entry
	order    []uint64

	Hits   SafeCounter
	Misses SafeCounter
}

func NewProgramCache(capacity int) *ProgramCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ProgramCache{
		capacity: capacity,
		entries:  make(map[uint64]entry, capacity),
	}
}

// Key hashes a raw workspace document.
func Key(raw []byte) uint64 {
	return xxhash.Sum64(raw)
}

// GetOrCompile returns the cached result for raw or calls compile and
// stores its result. compile runs without the lock held.
func (c *ProgramCache) GetOrCompile(raw []byte, compile func() (compiler.Program, error)) (compiler.Program, error) {
	key := Key(raw)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.Hits.Inc()
		return e.program, e.err
	}
	c.mu.Unlock()
	c.Misses.Inc()

	prog, err := compile()
	c.put(key, entry{program: prog, err: err})
	return prog, err
}

func (c *ProgramCache) put(key uint64, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = e
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = e
	c.order = append(c.order, key)
}

// Len returns the number of cached workspaces.
func (c *ProgramCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset clears all entries.
func (c *ProgramCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]entry, c.capacity)
	c.order = nil
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
