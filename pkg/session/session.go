// Package session owns the live browser sessions, one per provider. All
// access to a provider's page funnels through its Manager slot, which is the
// single synchronization point for that browser.
package session

import (
	"errors"
	"time"

	"github.com/odvcencio/chatproxy/pkg/provider"
)

// State is a provider slot's lifecycle position.
type State string

const (
	// StateAbsent means no browser session exists yet.
	StateAbsent State = "absent"
	// StateStarting means the browser is launching or the page is loading.
	StateStarting State = "starting"
	// StateReady means the chat page is loaded and idle.
	StateReady State = "ready"
	// StateBusy means a job currently holds the session.
	StateBusy State = "busy"
	// StateFailed means the last job or start broke the session; the next
	// acquire launches a fresh browser.
	StateFailed State = "failed"
)

var (
	// ErrSessionStart is returned when a session could not be brought to
	// ready within the configured number of attempts.
	ErrSessionStart = errors.New("session start failed")
	// ErrNoAdapter is returned for providers the manager was not wired with.
	ErrNoAdapter = errors.New("no adapter for provider")
	// ErrClosed is returned after the manager has shut down.
	ErrClosed = errors.New("session manager closed")
)

// Status is a point-in-time snapshot of one provider slot.
type Status struct {
	Provider            provider.Provider `json:"provider"`
	State               State             `json:"state"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	JobsServed          int               `json:"jobs_served"`
	StartedAt           time.Time         `json:"started_at,omitempty"`
	LastUsed            time.Time         `json:"last_used,omitempty"`
	LastError           string            `json:"last_error,omitempty"`
}

// Settings tunes one provider slot's start and failure behavior.
type Settings struct {
	// StartAttempts bounds how many browser launches a single acquire tries
	// before giving up with ErrSessionStart.
	StartAttempts int
	// StartTimeout bounds how long one attempt waits for the page to
	// become ready.
	StartTimeout time.Duration
	// PollInterval is the readiness sampling interval during start.
	PollInterval time.Duration
	// FailureLimit is how many consecutive job failures force a fresh
	// browser on the next acquire.
	FailureLimit int
}

func (s Settings) withDefaults() Settings {
	if s.StartAttempts <= 0 {
		s.StartAttempts = 3
	}
	if s.StartTimeout <= 0 {
		s.StartTimeout = 60 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.FailureLimit <= 0 {
		s.FailureLimit = 3
	}
	return s
}
