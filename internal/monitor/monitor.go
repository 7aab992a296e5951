// Package monitor keeps process-wide request counters and a rolling window of
// host metrics, sampled in the background and exposed on the admin surface.
package monitor

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/zarlabs/zar/internal/logger"
)

// WindowSize is the ring capacity: 24 hours of samples at the 5-minute
// cadence.
const WindowSize = 288

// Stats summarises one rolling window.
type Stats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	Current float64 `json:"current"`
	Count   int     `json:"count"`
}

// RollingMetrics is a fixed-capacity append-and-evict sample window safe for
// concurrent writers.
type RollingMetrics struct {
	mu      sync.RWMutex
	samples []float64
	size    int
}

// NewRollingMetrics returns a window holding at most size samples.
func NewRollingMetrics(size int) *RollingMetrics {
	if size <= 0 {
		size = WindowSize
	}
	return &RollingMetrics{samples: make([]float64, 0, size), size: size}
}

// Append adds a sample, evicting the oldest once the window is full.
func (r *RollingMetrics) Append(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == r.size {
		copy(r.samples, r.samples[1:])
		r.samples = r.samples[:len(r.samples)-1]
	}
	r.samples = append(r.samples, v)
}

// Len returns the current sample count.
func (r *RollingMetrics) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// Stats returns a consistent snapshot of the window.
func (r *RollingMetrics) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.samples) == 0 {
		return Stats{}
	}

	s := Stats{
		Min:     r.samples[0],
		Max:     r.samples[0],
		Current: r.samples[len(r.samples)-1],
		Count:   len(r.samples),
	}
	var sum float64
	for _, v := range r.samples {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(len(r.samples))
	return s
}

// Snapshot is the admin metrics payload.
type Snapshot struct {
	Uptime         string    `json:"uptime"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	TotalRequests  uint64    `json:"total_requests"`
	TotalErrors    uint64    `json:"total_errors"`
	ErrorRate      float64   `json:"error_rate"`
	PeakMemoryMB   float64   `json:"peak_memory_mb"`
	PeakCPUPercent float64   `json:"peak_cpu_percent"`
	Goroutines     int       `json:"goroutines"`
	Memory         Stats     `json:"memory_mb"`
	CPU            Stats     `json:"cpu_percent"`
	ResponseTimeMS Stats     `json:"response_time_ms"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// SystemMonitor owns the counters and rolling windows. Request and error
// totals are atomics; peaks are guarded by a mutex; each window carries its
// own lock.
type SystemMonitor struct {
	startedAt time.Time
	interval  time.Duration
	log       *logger.Logger

	totalRequests atomic.Uint64
	totalErrors   atomic.Uint64

	peakMu         sync.Mutex
	peakMemoryMB   float64
	peakCPUPercent float64

	memory     *RollingMetrics
	cpu        *RollingMetrics
	responseMS *RollingMetrics

	proc *process.Process
}

// New builds a monitor sampling every interval once Run is started.
func New(interval time.Duration, log *logger.Logger) *SystemMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Metrics fall back to zero samples; the counters still work.
		proc = nil
	}
	return &SystemMonitor{
		startedAt:  time.Now(),
		interval:   interval,
		log:        log,
		memory:     NewRollingMetrics(WindowSize),
		cpu:        NewRollingMetrics(WindowSize),
		responseMS: NewRollingMetrics(WindowSize),
		proc:       proc,
	}
}

// IncrementRequest counts one handled request.
func (m *SystemMonitor) IncrementRequest() {
	m.totalRequests.Add(1)
}

// IncrementError counts one funnelled error response.
func (m *SystemMonitor) IncrementError() {
	m.totalErrors.Add(1)
}

// ObserveResponseTime records one response latency in milliseconds.
func (m *SystemMonitor) ObserveResponseTime(ms float64) {
	m.responseMS.Append(ms)
}

// Sample reads process RSS and CPU usage, appends them to the windows, and
// advances the peaks.
func (m *SystemMonitor) Sample() {
	if m.proc == nil {
		return
	}

	var memMB, cpuPct float64
	if info, err := m.proc.MemoryInfo(); err == nil && info != nil {
		memMB = float64(info.RSS) / (1024 * 1024)
		m.memory.Append(memMB)
	}
	if pct, err := m.proc.CPUPercent(); err == nil {
		cpuPct = pct
		m.cpu.Append(cpuPct)
	}

	m.peakMu.Lock()
	if memMB > m.peakMemoryMB {
		m.peakMemoryMB = memMB
	}
	if cpuPct > m.peakCPUPercent {
		m.peakCPUPercent = cpuPct
	}
	m.peakMu.Unlock()
}

// Run samples immediately and then on every interval tick until ctx is
// cancelled. One instance per process.
func (m *SystemMonitor) Run(ctx context.Context) {
	m.Sample()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Infow("system monitor stopped")
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Snapshot assembles the full metrics payload.
func (m *SystemMonitor) Snapshot() Snapshot {
	requests := m.totalRequests.Load()
	errors := m.totalErrors.Load()

	var errorRate float64
	if requests > 0 {
		errorRate = float64(errors) / float64(requests)
	}

	m.peakMu.Lock()
	peakMem := m.peakMemoryMB
	peakCPU := m.peakCPUPercent
	m.peakMu.Unlock()

	uptime := time.Since(m.startedAt)
	return Snapshot{
		Uptime:         uptime.Truncate(time.Second).String(),
		UptimeSeconds:  uptime.Seconds(),
		TotalRequests:  requests,
		TotalErrors:    errors,
		ErrorRate:      errorRate,
		PeakMemoryMB:   peakMem,
		PeakCPUPercent: peakCPU,
		Goroutines:     runtime.NumGoroutine(),
		Memory:         m.memory.Stats(),
		CPU:            m.cpu.Stats(),
		ResponseTimeMS: m.responseMS.Stats(),
		GeneratedAt:    time.Now().UTC(),
	}
}
