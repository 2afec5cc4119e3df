package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_RangeSorted(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Store("c", 3)
	m.Store("a", 1)
	m.Store("b", 2)

	var keys []string
	m.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMap_RangeStops(t *testing.T) {
	t.Parallel()

	m := NewMap[int, int]()
	for i := range 5 {
		m.Store(i, i)
	}

	visited := 0
	m.Range(func(int, int) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestMap_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	stored := m.Update("x", func(_ int, exists bool) (int, bool) {
		return 1, !exists
	})
	assert.True(t, stored)

	stored = m.Update("x", func(_ int, exists bool) (int, bool) {
		return 2, !exists
	})
	assert.False(t, stored)

	v, ok := m.Load("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, m.Delete("x"))
	assert.False(t, m.Delete("x"))
	assert.Equal(t, 0, m.Length())
}

func TestMap_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			m.Store(i, i)
			_, _ = m.Load(i)
		})
	}
	wg.Wait()
	assert.Equal(t, 20, m.Length())
}
