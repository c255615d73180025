package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Stats(t *testing.T) {
	c := NewCollector(100)
	for i := 1; i <= 100; i++ {
		status := 200
		if i%10 == 0 {
			status = 429
		}
		c.Record(time.Duration(i)*time.Millisecond, status)
	}
	c.RecordRejection("ratelimit")
	c.RecordRejection("ratelimit")
	c.RecordRejection("detect")

	s := c.GetStats()
	assert.Equal(t, uint64(100), s.TotalRequests)
	assert.Equal(t, uint64(10), s.TotalErrors)
	assert.InDelta(t, 0.1, s.ErrorRate, 1e-9)
	assert.Equal(t, "51ms", s.P50Latency)
	assert.Equal(t, "96ms", s.P95Latency)
	assert.Equal(t, "100ms", s.P99Latency)
	assert.Equal(t, uint64(90), s.StatusCounts[200])
	assert.Equal(t, uint64(2), s.Rejections["ratelimit"])
	assert.Equal(t, uint64(1), s.Rejections["detect"])
}

func TestCollector_SlidingWindow(t *testing.T) {
	c := NewCollector(2)
	c.Record(time.Second, 200)
	c.Record(2*time.Second, 200)
	c.Record(3*time.Second, 200)

	s := c.GetStats()
	assert.Equal(t, uint64(3), s.TotalRequests)
	assert.Equal(t, "3s", s.P50Latency)
}

func TestCollector_Empty(t *testing.T) {
	s := NewCollector(0).GetStats()
	assert.Equal(t, "0s", s.P50Latency)
	assert.Zero(t, s.ErrorRate)
}
