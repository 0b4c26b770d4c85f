package system

import (
	"context"
	"log/slog"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats represents host and agent resource usage (percentages as integers)
type Stats struct {
	CPU        int       `json:"cpu"`
	Memory     int       `json:"memory"`
	Disk       int       `json:"disk"`
	AgentRSSMB int       `json:"agentRssMb"`
	Goroutines int       `json:"goroutines"`
	Collected  time.Time `json:"collected"`
}

// Monitor collects Stats in the background so reads are instant.
type Monitor struct {
	diskPath string
	interval time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	stats Stats
	once  sync.Once
}

// NewMonitor creates a monitor reporting disk usage for diskPath
func NewMonitor(diskPath string, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{diskPath: diskPath, interval: interval, logger: logger}
}

// Start starts background stats collection. Subsequent calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.once.Do(func() {
		go m.collectLoop(ctx)
	})
}

// collectLoop runs in background and updates cached stats
func (m *Monitor) collectLoop(ctx context.Context) {
	m.Collect()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect()
		}
	}
}

// Collect samples usage once and caches the result.
func (m *Monitor) Collect() {
	stats := Stats{
		Goroutines: runtime.NumGoroutine(),
		Collected:  time.Now(),
	}

	// 1 second sample; blocks but runs in background
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err == nil && len(cpuPercent) > 0 {
		stats.CPU = int(math.Round(cpuPercent[0]))
	}

	memStats, err := mem.VirtualMemory()
	if err == nil {
		stats.Memory = int(math.Round(memStats.UsedPercent))
	}

	diskStats, err := disk.Usage(m.diskPath)
	if err == nil {
		stats.Disk = int(math.Round(diskStats.UsedPercent))
	} else {
		m.logger.Debug("failed to read disk usage", "path", m.diskPath, "error", err)
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			stats.AgentRSSMB = int(info.RSS >> 20)
		}
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}

// Stats returns the cached usage (instant response)
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
