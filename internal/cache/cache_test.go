package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyblocks/flightdeck/internal/compiler"
	"github.com/skyblocks/flightdeck/pkg/core"
)

func compiled(name string) func() (compiler.Program, error) {
	return func() (compiler.Program, error) {
		return compiler.Program{Name: name, Instructions: []core.Instruction{core.Launch{}, core.Land{}}}, nil
	}
}

func TestProgramCache_HitAndMiss(t *testing.T) {
	c := NewProgramCache(4)
	calls := 0
	compile := func() (compiler.Program, error) {
		calls++
		return compiled("a")()
	}

	p, err := c.GetOrCompile([]byte(`{"a":1}`), compile)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)

	p, err = c.GetOrCompile([]byte(`{"a":1}`), compile)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Hits.Value())
	assert.Equal(t, 1, c.Misses.Value())
}

func TestProgramCache_CachesErrors(t *testing.T) {
	c := NewProgramCache(4)
	calls := 0
	compile := func() (compiler.Program, error) {
		calls++
		return compiler.Program{}, compiler.ErrEmptyProgram
	}

	_, err := c.GetOrCompile([]byte(`{}`), compile)
	assert.True(t, errors.Is(err, compiler.ErrEmptyProgram))
	_, err = c.GetOrCompile([]byte(`{}`), compile)
	assert.True(t, errors.Is(err, compiler.ErrEmptyProgram))
	assert.Equal(t, 1, calls)
}

func TestProgramCache_EvictsOldest(t *testing.T) {
	c := NewProgramCache(2)
	_, _ = c.GetOrCompile([]byte("one"), compiled("one"))
	_, _ = c.GetOrCompile([]byte("two"), compiled("two"))
	_, _ = c.GetOrCompile([]byte("three"), compiled("three"))
	assert.Equal(t, 2, c.Len())

	calls := 0
	_, _ = c.GetOrCompile([]byte("one"), func() (compiler.Program, error) {
		calls++
		return compiled("one")()
	})
	assert.Equal(t, 1, calls, "evicted entry is compiled again")

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestProgramCache_Concurrent(t *testing.T) {
	c := NewProgramCache(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := []byte{byte(i % 5)}
			_, _ = c.GetOrCompile(raw, compiled("x"))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, 50, c.Hits.Value()+c.Misses.Value())
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key([]byte("abc")), Key([]byte("abc")))
	assert.NotEqual(t, Key([]byte("abc")), Key([]byte("abd")))
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter
	c.Inc()
	c.Inc()
	assert.Equal(t, 2, c.Value())
	c.Set(10)
	assert.Equal(t, 10, c.Value())
}

func TestRunIndex(t *testing.T) {
	idx := NewRunIndex()
	_, ok := idx.Get("run-1")
	assert.False(t, ok)

	idx.Set("run-1", 7)
	id, ok := idx.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, uint(7), id)

	idx.Delete("run-1")
	_, ok = idx.Get("run-1")
	assert.False(t, ok)
}
