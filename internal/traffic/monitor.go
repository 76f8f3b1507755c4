package traffic

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// #region sampler

// CPUSampler reads current system CPU utilization in percent.
type CPUSampler interface {
	Sample(ctx context.Context) (float64, error)
}

// SystemCPUSampler reads host utilization since the previous sample.
type SystemCPUSampler struct{}

// Sample returns aggregate CPU utilization in percent.
func (SystemCPUSampler) Sample(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("sample cpu: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("sample cpu: no data")
	}
	return percents[0], nil
}

// #endregion sampler

// #region config

// MonitorConfig tunes the mode-transition rules.
type MonitorConfig struct {
	PollInterval    time.Duration // cadence of the background loop
	WindowSize      int           // CPU samples retained; rule waits for a full window
	CPUThresholdPct float64       // sustained average above this enters LEAN
	SurgeEnterDepth int           // queue depth at or above this enters SURGE
	SurgeExitDepth  int           // queue depth below this exits SURGE
}

// DefaultMonitorConfig covers a 5-minute CPU window at 10s polls.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:    10 * time.Second,
		WindowSize:      30,
		CPUThresholdPct: 70,
		SurgeEnterDepth: 50,
		SurgeExitDepth:  40,
	}
}

// #endregion config

// #region monitor

// Monitor is the background loop that shifts operating posture on sustained
// resource pressure. It is the sole writer of the mode store. Run drives the
// polling from one goroutine; TriggerSafeMode and Status may be called from
// any goroutine.
type Monitor struct {
	cfg     MonitorConfig
	store   *ModeStore
	sampler CPUSampler
	queue   QueueSource

	mu     sync.Mutex
	window []float64
}

// NewMonitor wires the mode monitor.
func NewMonitor(cfg MonitorConfig, store *ModeStore, sampler CPUSampler, queue QueueSource) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultMonitorConfig().WindowSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultMonitorConfig().PollInterval
	}
	return &Monitor{
		cfg:     cfg,
		store:   store,
		sampler: sampler,
		queue:   queue,
	}
}

// Run polls until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("[TRAFFIC] monitor started, poll interval %s", m.cfg.PollInterval)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[TRAFFIC] monitor stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one evaluation cycle. Transient read failures are logged and
// treated as no transition this cycle.
func (m *Monitor) Poll(ctx context.Context) {
	mode, err := m.store.Current()
	if err != nil {
		log.Printf("[TRAFFIC] mode read failed, skipping cycle: %v", err)
		return
	}

	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		log.Printf("[TRAFFIC] cpu sample failed: %v", err)
	} else {
		m.mu.Lock()
		m.window = append(m.window, sample)
		if len(m.window) > m.cfg.WindowSize {
			m.window = m.window[len(m.window)-m.cfg.WindowSize:]
		}
		m.mu.Unlock()
	}

	// SAFE is a security posture. Load rules never move the system out of
	// it; exit requires an explicit operator action.
	if mode == ModeSafe {
		return
	}

	if next, reason, ok := m.evaluate(mode); ok {
		changed, err := m.store.Transition(next, reason)
		if err != nil {
			log.Printf("[TRAFFIC] transition to %s failed: %v", next, err)
			return
		}
		if changed {
			log.Printf("[TRAFFIC] mode %s -> %s: %s", mode, next, reason)
		}
	}
}

// evaluate applies the queue rule first, then the CPU rule.
func (m *Monitor) evaluate(mode Mode) (Mode, string, bool) {
	depth, err := m.queue.Depth()
	if err != nil {
		log.Printf("[TRAFFIC] queue depth read failed: %v", err)
	} else {
		if depth >= m.cfg.SurgeEnterDepth && mode != ModeSurge {
			return ModeSurge, fmt.Sprintf("approval queue depth %d >= %d", depth, m.cfg.SurgeEnterDepth), true
		}
		if mode == ModeSurge && depth < m.cfg.SurgeExitDepth {
			return ModeNormal, fmt.Sprintf("approval queue drained to %d", depth), true
		}
	}

	// Cold start: judge nothing on a partial window.
	m.mu.Lock()
	full := len(m.window) >= m.cfg.WindowSize
	avg := 0.0
	if full {
		avg = average(m.window)
	}
	m.mu.Unlock()
	if !full {
		return "", "", false
	}
	if avg > m.cfg.CPUThresholdPct && mode != ModeLean {
		return ModeLean, fmt.Sprintf("cpu %.1f%% sustained over window", avg), true
	}
	if mode == ModeLean && avg <= m.cfg.CPUThresholdPct {
		return ModeNormal, fmt.Sprintf("cpu recovered to %.1f%%", avg), true
	}
	return "", "", false
}

// TriggerSafeMode forces SAFE immediately, bypassing the polling cadence.
func (m *Monitor) TriggerSafeMode(reason string) error {
	changed, err := m.store.Transition(ModeSafe, "SECURITY: "+reason)
	if err != nil {
		return fmt.Errorf("enter safe mode: %w", err)
	}
	if changed {
		log.Printf("[TRAFFIC] SAFE mode engaged: %s", reason)
	}
	return nil
}

func average(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// #endregion monitor

// #region status

// MonitorStatus is an observability snapshot of the mode monitor.
type MonitorStatus struct {
	Mode        Mode    `json:"mode"`
	AvgCPU      float64 `json:"avg_cpu_pct"`
	SampleCount int     `json:"cpu_samples"`
	WindowSize  int     `json:"cpu_window_size"`
	QueueDepth  int     `json:"queue_depth"`
}

// Status reports the monitor's current view of the system.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	st := MonitorStatus{
		SampleCount: len(m.window),
		WindowSize:  m.cfg.WindowSize,
	}
	if len(m.window) > 0 {
		st.AvgCPU = average(m.window)
	}
	m.mu.Unlock()
	if mode, err := m.store.Current(); err == nil {
		st.Mode = mode
	}
	if depth, err := m.queue.Depth(); err == nil {
		st.QueueDepth = depth
	}
	return st
}

// #endregion status
