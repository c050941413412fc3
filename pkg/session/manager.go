package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/odvcencio/chatproxy/pkg/automation"
	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/provider"
)

// Options configures a Manager beyond its adapters.
type Options struct {
	// Settings resolves per-provider tunables. Nil means defaults for all.
	Settings func(p provider.Provider) Settings
	// OnRestart runs after a forced restart has closed the browser and
	// before the next launch, e.g. to wipe the profile directory.
	OnRestart func(p provider.Provider)
}

// Manager tracks at most one live browser session per provider and
// serializes all use of it.
type Manager struct {
	launcher automation.Launcher
	adapters map[provider.Provider]provider.Adapter
	opts     Options
	logger   *logging.Logger

	mu     sync.Mutex
	slots  map[provider.Provider]*slot
	closed bool
}

// slot holds one provider's session. jobMu serializes jobs; mu guards the
// snapshot fields so Health never blocks behind a running job.
type slot struct {
	jobMu sync.Mutex

	mu        sync.Mutex
	state     State
	driver    automation.Driver
	failures  int
	jobs      int
	startedAt time.Time
	lastUsed  time.Time
	lastErr   error
}

// NewManager creates a Manager over the given launcher and adapters.
func NewManager(launcher automation.Launcher, adapters map[provider.Provider]provider.Adapter, opts Options, logger *logging.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		adapters: adapters,
		opts:     opts,
		logger:   logger,
		slots:    make(map[provider.Provider]*slot),
	}
}

func (m *Manager) settingsFor(p provider.Provider) Settings {
	if m.opts.Settings == nil {
		return Settings{}.withDefaults()
	}
	return m.opts.Settings(p).withDefaults()
}

func (m *Manager) slotFor(p provider.Provider) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.slots[p]
	if !ok {
		s = &slot{state: StateAbsent}
		m.slots[p] = s
	}
	return s, nil
}

// WithSession runs fn against the provider's live session, starting one if
// needed. Calls for the same provider never overlap; the session stays open
// across calls until a failure or an explicit restart.
func (m *Manager) WithSession(ctx context.Context, p provider.Provider, fn func(ctx context.Context, d automation.Driver, a provider.Adapter) error) error {
	adapter, ok := m.adapters[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, p)
	}
	s, err := m.slotFor(p)
	if err != nil {
		return err
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	d, err := m.ensureReady(ctx, p, s, adapter)
	if err != nil {
		return err
	}

	s.setState(StateBusy)
	start := time.Now()
	err = fn(ctx, d, adapter)
	metricJobDuration.WithLabelValues(string(p), outcome(err)).Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.lastUsed = time.Now()
	if err == nil {
		s.jobs++
		s.failures = 0
		s.lastErr = nil
		s.state = StateReady
		s.mu.Unlock()
		return nil
	}
	s.failures++
	s.lastErr = err
	failures := s.failures
	s.mu.Unlock()

	metricSessionFailures.WithLabelValues(string(p)).Inc()
	limit := m.settingsFor(p).FailureLimit
	// A mid-flight abort leaves the page in an unknown state, so deadline
	// expiry is as fatal as a lost tab.
	fatal := errors.Is(err, provider.ErrSessionLost) ||
		errors.Is(err, provider.ErrNavigationRequired) ||
		errors.Is(err, provider.ErrResponseTimeout) ||
		ctx.Err() != nil
	if fatal || failures >= limit {
		m.logger.Warn(logging.CategorySession, "session_failed", err.Error(), map[string]any{
			"provider":             string(p),
			"consecutive_failures": failures,
		})
		m.teardown(p, s, StateFailed)
	} else {
		s.setState(StateReady)
	}
	return err
}

// ensureReady returns the slot's live driver, launching a browser if the
// slot is absent or failed. Caller holds s.jobMu.
func (m *Manager) ensureReady(ctx context.Context, p provider.Provider, s *slot, adapter provider.Adapter) (automation.Driver, error) {
	s.mu.Lock()
	d := s.driver
	state := s.state
	s.mu.Unlock()

	if d != nil && state != StateFailed {
		// Re-validate before reuse; the tab may have died between jobs.
		err := d.Ping(ctx)
		if err == nil {
			return d, nil
		}
		m.logger.Warn(logging.CategorySession, "session_ping_failed", err.Error(), map[string]any{
			"provider": string(p),
		})
	}
	if d != nil {
		m.teardown(p, s, StateAbsent)
	}

	settings := m.settingsFor(p)
	s.setState(StateStarting)

	var lastErr error
	for attempt := 1; attempt <= settings.StartAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			s.setState(StateFailed)
			return nil, fmt.Errorf("%w: %s: %v", ErrSessionStart, p, err)
		}
		d, lastErr = m.startOnce(ctx, p, s, adapter, settings)
		if lastErr == nil {
			s.mu.Lock()
			s.driver = d
			s.state = StateReady
			s.startedAt = time.Now()
			s.failures = 0
			s.lastErr = nil
			s.mu.Unlock()
			metricActiveSessions.Inc()
			metricSessionStarts.WithLabelValues(string(p)).Inc()
			m.logger.Info(logging.CategorySession, "session_ready", "", map[string]any{
				"provider": string(p),
				"attempt":  attempt,
			})
			return d, nil
		}
		m.logger.Warn(logging.CategorySession, "session_start_attempt_failed", lastErr.Error(), map[string]any{
			"provider": string(p),
			"attempt":  attempt,
		})
	}

	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = lastErr
	s.mu.Unlock()
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrSessionStart, p, settings.StartAttempts, lastErr)
}

// startOnce performs a single launch, navigate and ready-wait cycle.
func (m *Manager) startOnce(ctx context.Context, p provider.Provider, s *slot, adapter provider.Adapter, settings Settings) (automation.Driver, error) {
	startCtx, cancel := context.WithTimeout(ctx, settings.StartTimeout)
	defer cancel()

	d, err := m.launcher.Launch(startCtx)
	if err != nil {
		return nil, err
	}
	if err := d.Navigate(startCtx, adapter.URL()); err != nil {
		d.Close()
		return nil, err
	}

	ticker := time.NewTicker(settings.PollInterval)
	defer ticker.Stop()
	for {
		ready, err := adapter.Ready(startCtx, d)
		if err != nil {
			d.Close()
			return nil, err
		}
		if ready {
			return d, nil
		}
		select {
		case <-startCtx.Done():
			d.Close()
			return nil, fmt.Errorf("page for %s never became ready: %w", p, startCtx.Err())
		case <-ticker.C:
		}
	}
}

// Restart force-closes the provider's session so the next job gets a fresh
// browser. Restarting an absent session is a no-op.
func (m *Manager) Restart(ctx context.Context, p provider.Provider) error {
	if _, ok := m.adapters[p]; !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, p)
	}
	s, err := m.slotFor(p)
	if err != nil {
		return err
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	m.teardown(p, s, StateAbsent)
	if m.opts.OnRestart != nil {
		m.opts.OnRestart(p)
	}
	m.logger.Info(logging.CategorySession, "session_restarted", "", map[string]any{
		"provider": string(p),
	})
	return nil
}

// teardown closes the slot's browser if any and parks the slot in state.
func (m *Manager) teardown(p provider.Provider, s *slot, state State) {
	s.mu.Lock()
	d := s.driver
	s.driver = nil
	s.state = state
	s.mu.Unlock()

	if d != nil {
		if err := d.Close(); err != nil {
			m.logger.Warn(logging.CategorySession, "session_close_failed", err.Error(), map[string]any{
				"provider": string(p),
			})
		}
		metricActiveSessions.Dec()
	}
}

// Health snapshots every known provider slot. Providers with no slot yet
// report StateAbsent.
func (m *Manager) Health() []Status {
	m.mu.Lock()
	slots := make(map[provider.Provider]*slot, len(m.slots))
	for p, s := range m.slots {
		slots[p] = s
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(m.adapters))
	for _, p := range provider.All() {
		if _, ok := m.adapters[p]; !ok {
			continue
		}
		st := Status{Provider: p, State: StateAbsent}
		if s, ok := slots[p]; ok {
			s.mu.Lock()
			st.State = s.state
			st.ConsecutiveFailures = s.failures
			st.JobsServed = s.jobs
			st.StartedAt = s.startedAt
			st.LastUsed = s.lastUsed
			if s.lastErr != nil {
				st.LastError = s.lastErr.Error()
			}
			s.mu.Unlock()
		}
		out = append(out, st)
	}
	return out
}

// Close shuts down every live session. The manager rejects further use.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	slots := make(map[provider.Provider]*slot, len(m.slots))
	for p, s := range m.slots {
		slots[p] = s
	}
	m.mu.Unlock()

	for p, s := range slots {
		s.jobMu.Lock()
		m.teardown(p, s, StateAbsent)
		s.jobMu.Unlock()
	}
	return nil
}

func (s *slot) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
