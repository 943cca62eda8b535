package gateway

import (
	"context"
	"sync"
	"time"
)

// DefaultPollIntervalMs is the FR-8 contract: a disconnection must be
// detectable within this interval (§4.9).
const DefaultPollIntervalMs = 5000

// MonitorCallbacks is the Connection Monitor's narrow event sink (§9).
type MonitorCallbacks struct {
	OnConnected     func()
	OnDisconnected  func()
	OnCheckComplete func(connected bool, err error)
	OnError         func(error)
}

// Monitor periodically probes a Gateway's health, emitting connected /
// disconnected only on status change (§4.9).
type Monitor struct {
	gw           Gateway
	pollInterval time.Duration
	cb           MonitorCallbacks

	mu                  sync.Mutex
	connected           bool
	firstCheckDone      bool
	consecutiveFailures int

	cancel context.CancelFunc
}

// NewMonitor constructs a Monitor for gw. pollIntervalMs <= 0 uses
// DefaultPollIntervalMs.
func NewMonitor(gw Gateway, pollIntervalMs int, cb MonitorCallbacks) *Monitor {
	if pollIntervalMs <= 0 {
		pollIntervalMs = DefaultPollIntervalMs
	}
	return &Monitor{gw: gw, pollInterval: time.Duration(pollIntervalMs) * time.Millisecond, cb: cb}
}

// Start performs an immediate check, then schedules the periodic probe on
// its own goroutine (§4.9: "On start, performs an immediate check, then
// schedules the periodic check").
func (m *Monitor) Start(ctx context.Context) {
	ctx = m.setupContext(ctx)
	m.check(ctx)

	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

func (m *Monitor) setupContext(ctx context.Context) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	return ctx
}

func (m *Monitor) check(ctx context.Context) {
	err := m.gw.HealthCheck(ctx)
	connected := err == nil

	m.mu.Lock()
	wasConnected := m.connected
	firstCheck := !m.firstCheckDone
	m.firstCheckDone = true
	m.connected = connected
	if connected {
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
	}
	m.mu.Unlock()

	if m.cb.OnCheckComplete != nil {
		m.cb.OnCheckComplete(connected, err)
	}
	if err != nil && m.cb.OnError != nil {
		m.cb.OnError(err)
	}

	if firstCheck || connected != wasConnected {
		if connected {
			if m.cb.OnConnected != nil {
				m.cb.OnConnected()
			}
		} else {
			if m.cb.OnDisconnected != nil {
				m.cb.OnDisconnected()
			}
		}
	}
}

// Connected reports the last observed status.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// ConsecutiveFailures reports the current failure streak.
func (m *Monitor) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}

// Stop cancels the periodic check goroutine.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
