package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_SetGetExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set("k", "v", time.Minute)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Incr(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	n, exp := c.Incr("k", time.Minute)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(time.Minute), exp)

	now = now.Add(30 * time.Second)
	n, exp2 := c.Incr("k", time.Minute)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, exp, exp2)

	now = now.Add(31 * time.Second)
	n, _ = c.Incr("k", time.Minute)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCache_IncrConcurrent(t *testing.T) {
	c := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incr("k", time.Minute)
		}()
	}
	wg.Wait()
	n, _ := c.Incr("k", time.Minute)
	assert.Equal(t, int64(101), n)
}
