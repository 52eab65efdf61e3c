package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// InstanceSample holds CPU and memory figures for one live instance.
type InstanceSample struct {
	Instance   string    `json:"instance"`
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// InstanceLister returns the live instances keyed by instance id.
type InstanceLister func() map[string]int32

// InstanceCollector periodically samples every instance returned by its
// lister and exports the figures as gauges labelled by instance.
type InstanceCollector struct {
	interval time.Duration

	mu     sync.RWMutex
	latest map[string]InstanceSample

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	rssBytes   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

func NewInstanceCollector(interval time.Duration) *InstanceCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instance",
			Name:      name,
			Help:      help,
		}, []string{"instance"})
	}
	return &InstanceCollector{
		interval:   interval,
		latest:     make(map[string]InstanceSample),
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage per instance."),
		rssBytes:   gauge("memory_rss_bytes", "Resident memory per instance."),
		numThreads: gauge("num_threads", "Thread count per instance."),
		numFDs:     gauge("num_fds", "Open file descriptors per instance (Unix only)."),
	}
}

// RegisterMetrics registers the instance gauges with r.
func (c *InstanceCollector) RegisterMetrics(r prometheus.Registerer) error {
	cs := []prometheus.Collector{c.cpuPercent, c.rssBytes, c.numThreads}
	if runtime.GOOS != "windows" {
		cs = append(cs, c.numFDs)
	}
	for _, col := range cs {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start samples on every tick until ctx is done or Stop is called.
func (c *InstanceCollector) Start(ctx context.Context, list InstanceLister) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Collect(ctx, list())
			}
		}
	}()
}

func (c *InstanceCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Collect takes one sample of every instance and drops gauges for
// instances that are no longer listed.
func (c *InstanceCollector) Collect(ctx context.Context, instances map[string]int32) {
	now := time.Now()
	results := make(map[string]InstanceSample, len(instances))
	for id, pid := range instances {
		if pid <= 0 {
			continue
		}
		s, err := sample(ctx, id, pid, now)
		if err != nil {
			slog.Debug("Failed to sample instance", "instance", id, "pid", pid, "error", err)
			continue
		}
		results[id] = *s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.latest {
		if _, ok := results[id]; !ok {
			c.cpuPercent.DeleteLabelValues(id)
			c.rssBytes.DeleteLabelValues(id)
			c.numThreads.DeleteLabelValues(id)
			c.numFDs.DeleteLabelValues(id)
		}
	}
	for id, s := range results {
		c.cpuPercent.WithLabelValues(id).Set(s.CPUPercent)
		c.rssBytes.WithLabelValues(id).Set(float64(s.MemoryRSS))
		c.numThreads.WithLabelValues(id).Set(float64(s.NumThreads))
		if runtime.GOOS != "windows" {
			c.numFDs.WithLabelValues(id).Set(float64(s.NumFDs))
		}
	}
	c.latest = results
}

// Latest returns the most recent sample for an instance.
func (c *InstanceCollector) Latest(id string) (InstanceSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[id]
	return s, ok
}

func sample(ctx context.Context, id string, pid int32, ts time.Time) (*InstanceSample, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %w", err)
	}
	s := &InstanceSample{Instance: id, PID: pid, MemoryRSS: mem.RSS, MemoryVMS: mem.VMS, Timestamp: ts}
	// CPU percent needs a previous reading to be accurate; zero is acceptable
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}
	if n, err := proc.NumThreadsWithContext(ctx); err == nil {
		s.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDsWithContext(ctx); err == nil {
			s.NumFDs = n
		}
	}
	return s, nil
}
