// Package idle signs users out after a period without tracked activity. A
// deadline timer and a one second tick both watch the countdown; whichever
// reaches zero first fires OnTimeout, and a latch keeps it to once per cycle.
package idle

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	dErrors "teller/pkg/domain-errors"
)

const (
	DefaultTimeout = 5 * time.Minute
	DefaultWarning = 1 * time.Minute

	tickInterval = time.Second
)

// Event is a user activity that restarts the countdown.
type Event string

const (
	EventMouseDown  Event = "mousedown"
	EventMouseMove  Event = "mousemove"
	EventKeyPress   Event = "keypress"
	EventScroll     Event = "scroll"
	EventTouchStart Event = "touchstart"
	EventClick      Event = "click"
)

// TrackedEvents lists every event Activity accepts.
var TrackedEvents = []Event{EventMouseDown, EventMouseMove, EventKeyPress, EventScroll, EventTouchStart, EventClick}

type Config struct {
	Timeout time.Duration
	// Warning is how long before Timeout OnWarning fires. Must be shorter than Timeout.
	Warning   time.Duration
	OnTimeout func()
	OnWarning func()
}

// State is the observable countdown.
type State struct {
	TimeLeft  time.Duration
	IsWarning bool
	IsActive  bool
}

type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	active       bool
	closed       bool
	warned       bool
	fired        bool
	lastActivity time.Time
	timeLeft     time.Duration
	deadline     *time.Timer
	done         chan struct{}
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New applies the 5 minute / 1 minute defaults to zero durations. The monitor
// starts stopped.
func New(cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Warning <= 0 {
		cfg.Warning = DefaultWarning
	}
	if cfg.Warning >= cfg.Timeout {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "warning must be shorter than timeout")
	}
	m := &Monitor{
		cfg:      cfg,
		logger:   slog.Default(),
		timeLeft: cfg.Timeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start begins a new cycle, restarting one already in progress.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.haltLocked()

	m.active = true
	m.warned = false
	m.fired = false
	m.lastActivity = time.Now()
	m.timeLeft = m.cfg.Timeout
	m.deadline = time.AfterFunc(m.cfg.Timeout, m.expire)
	m.done = make(chan struct{})
	go m.tick(m.done)
}

// Reset is Start under the name callers use after an explicit "stay signed in".
func (m *Monitor) Reset() {
	m.Start()
}

// Stop cancels both timers. TimeLeft and IsWarning keep their last values.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haltLocked()
}

// Close stops the monitor for good; later Starts are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.haltLocked()
}

// Activity restarts the countdown for a tracked event while the monitor runs.
// It reports whether the event was counted.
func (m *Monitor) Activity(e Event) bool {
	if !slices.Contains(TrackedEvents, e) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return false
	}
	m.lastActivity = time.Now()
	m.timeLeft = m.cfg.Timeout
	m.warned = false
	m.deadline.Reset(m.cfg.Timeout)
	return true
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{TimeLeft: m.timeLeft, IsWarning: m.warned, IsActive: m.active}
}

func (m *Monitor) tick(done <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.onTick()
		case <-done:
			return
		}
	}
}

func (m *Monitor) onTick() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	remaining := max(m.cfg.Timeout-time.Since(m.lastActivity), 0)
	m.timeLeft = remaining

	var callback func()
	switch {
	case remaining == 0:
		callback = m.fireLocked()
	case remaining <= m.cfg.Warning && !m.warned:
		m.warned = true
		callback = m.cfg.OnWarning
		m.logger.Debug("idle warning", "time_left", remaining)
	}
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// expire is the deadline path. Activity may have moved the deadline after the
// timer already fired, so elapsed time is checked again under the lock.
func (m *Monitor) expire() {
	m.mu.Lock()
	if !m.active || time.Since(m.lastActivity) < m.cfg.Timeout {
		m.mu.Unlock()
		return
	}
	m.timeLeft = 0
	callback := m.fireLocked()
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}

func (m *Monitor) fireLocked() func() {
	if m.fired {
		return nil
	}
	m.fired = true
	m.haltLocked()
	m.logger.Info("idle timeout reached", "timeout", m.cfg.Timeout)
	return m.cfg.OnTimeout
}

func (m *Monitor) haltLocked() {
	m.active = false
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}
