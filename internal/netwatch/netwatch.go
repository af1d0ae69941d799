// Package netwatch tracks whether the AI endpoint is reachable. Going offline
// never interrupts a call already in flight; it only stops new ones.
package netwatch

import (
	"context"
	"net"
	"sync"
	"time"

	"foodbridge/internal/logger"
)

// Status reports the last known connectivity.
type Status interface {
	Online() bool
}

// Static is a fixed answer, used when probing is disabled and in tests.
type Static bool

func (s Static) Online() bool { return bool(s) }

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Monitor dials ProbeAddr on an interval. It starts optimistic.
type Monitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
	log      *logger.Logger

	mu      sync.RWMutex
	online  bool
	checked time.Time
	running bool
	cancel  context.CancelFunc
}

type Option func(*Monitor)

func WithDialer(d DialFunc) Option {
	return func(m *Monitor) { m.dial = d }
}

func New(addr string, interval, timeout time.Duration, log *logger.Logger, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	m := &Monitor{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		log:      log,
		online:   true,
	}
	d := &net.Dialer{}
	m.dial = d.DialContext
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Monitor) LastChecked() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checked
}

// Check probes once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dial(ctx, "tcp", m.addr)
	online := err == nil
	if conn != nil {
		conn.Close()
	}
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.checked = time.Now()
	m.mu.Unlock()
	if changed {
		if online {
			m.log.Info("netwatch: %s reachable again", m.addr)
		} else {
			m.log.Warn("netwatch: %s unreachable: %v", m.addr, err)
		}
	}
	return online
}

// Start probes immediately and then on every interval. Non-blocking.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	go func() {
		m.Check(childCtx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-childCtx.Done():
				return
			case <-ticker.C:
				m.Check(childCtx)
			}
		}
	}()
	m.log.Debug("netwatch: probing %s every %s", m.addr, m.interval)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
}
