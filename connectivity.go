package session

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultProbeInterval is how often the Monitor re-probes reachability while
// monitoring is active.
const DefaultProbeInterval = 30 * time.Second

// DefaultConnectivityTimeout bounds WaitForConnectivity when the caller does
// not supply a timeout.
const DefaultConnectivityTimeout = 30 * time.Second

// Monitor tracks backend reachability and exposes a wait-for-connectivity
// primitive. All concurrent waiters are released on a single offline→online
// transition (broadcast, not single-consumer).
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	online  bool
	waitCh  chan struct{}
	stopCh  chan struct{}
	running bool
}

// MonitorOption customizes monitor construction.
type MonitorOption func(*Monitor)

// WithProbeInterval overrides the periodic probe interval.
func WithProbeInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithMonitorLogger overrides the monitor logger.
func WithMonitorLogger(logger Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor builds a Monitor around the given prober. The monitor starts
// offline; the first probe or SetOnline call establishes the real state.
func NewMonitor(prober Prober, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: DefaultProbeInterval,
		logger:   defLogger{},
		waitCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// NewHTTPProber probes reachability with a HEAD request against url. Any
// response, regardless of status, counts as reachable.
func NewHTTPProber(client *http.Client, url string) Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return ProberFunc(func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	})
}

// IsConnected performs a point-in-time probe and records the result.
func (m *Monitor) IsConnected(ctx context.Context) bool {
	if m.prober == nil {
		return m.Online()
	}
	online := m.prober.Probe(ctx)
	m.SetOnline(online)
	return online
}

// Online returns the last observed state without probing.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a reachability observation. OS connectivity callbacks and
// tests feed the monitor through here; the offline→online edge releases every
// registered waiter.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if online == m.online {
		return
	}

	m.online = online
	if online {
		close(m.waitCh)
		m.waitCh = make(chan struct{})
	}
}

// StartMonitoring begins periodic probing. Starting an already running
// monitor is a no-op.
func (m *Monitor) StartMonitoring(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	go m.loop(ctx, stopCh)
}

// StopMonitoring halts periodic probing. Waiters stay registered; a later
// SetOnline still releases them.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *Monitor) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.IsConnected(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.IsConnected(ctx)
		}
	}
}

// WaitForConnectivity blocks until the monitored state transitions to
// connected, returning false if timeout elapses or ctx is cancelled first.
// A monitor that is already online resolves immediately.
func (m *Monitor) WaitForConnectivity(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultConnectivityTimeout
	}

	m.mu.Lock()
	if m.online {
		m.mu.Unlock()
		return true
	}
	waitCh := m.waitCh
	m.mu.Unlock()

	// One immediate probe covers callers that never started monitoring.
	if m.prober != nil && m.IsConnected(ctx) {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waitCh:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
