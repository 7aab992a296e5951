package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarlabs/zar/internal/logger"
)

func TestRollingMetricsEvictsOldest(t *testing.T) {
	r := NewRollingMetrics(3)

	r.Append(1)
	r.Append(2)
	r.Append(3)
	r.Append(4) // evicts 1

	s := r.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 4.0, s.Current)
	assert.InDelta(t, 3.0, s.Avg, 1e-9)
}

func TestRollingMetricsEmpty(t *testing.T) {
	r := NewRollingMetrics(10)
	assert.Equal(t, Stats{}, r.Stats())
}

func TestRollingMetricsCapAtWindowSize(t *testing.T) {
	r := NewRollingMetrics(WindowSize)
	for i := 0; i < WindowSize*2; i++ {
		r.Append(float64(i))
	}
	assert.Equal(t, WindowSize, r.Len())

	s := r.Stats()
	assert.Equal(t, float64(WindowSize), s.Min)
	assert.Equal(t, float64(WindowSize*2-1), s.Max)
}

func TestCountersUnderConcurrentWriters(t *testing.T) {
	m := New(time.Hour, logger.NewNop())

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.IncrementRequest()
				if j%5 == 0 {
					m.IncrementError()
				}
				m.ObserveResponseTime(float64(j))
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, uint64(workers*perWorker), snap.TotalRequests)
	assert.Equal(t, uint64(workers*perWorker/5), snap.TotalErrors)
	assert.InDelta(t, 0.2, snap.ErrorRate, 1e-9)
}

func TestSnapshotShape(t *testing.T) {
	m := New(time.Hour, logger.NewNop())
	m.IncrementRequest()
	m.ObserveResponseTime(12.5)
	m.Sample()

	snap := m.Snapshot()
	require.NotZero(t, snap.GeneratedAt)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
	assert.Equal(t, uint64(1), snap.TotalRequests)
	assert.Equal(t, 12.5, snap.ResponseTimeMS.Current)
	assert.Greater(t, snap.Goroutines, 0)
}
