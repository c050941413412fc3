package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/chatproxy/pkg/automation"
	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/provider"
)

type stubDriver struct {
	closed  atomic.Bool
	pingErr atomic.Value // error
}

func (d *stubDriver) Navigate(context.Context, string) error { return nil }
func (d *stubDriver) Count(context.Context, automation.Selector) (int, error) {
	return 1, nil
}
func (d *stubDriver) InsertText(context.Context, automation.Selector, string) error { return nil }
func (d *stubDriver) Click(context.Context, automation.Selector) error              { return nil }
func (d *stubDriver) ReadText(context.Context, automation.Selector) (string, error) {
	return "", nil
}
func (d *stubDriver) OuterHTML(context.Context, automation.Selector) (string, error) {
	return "", nil
}
func (d *stubDriver) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (d *stubDriver) Ping(context.Context) error {
	if err, ok := d.pingErr.Load().(error); ok {
		return err
	}
	return nil
}
func (d *stubDriver) Close() error {
	d.closed.Store(true)
	return nil
}

type stubLauncher struct {
	mu       sync.Mutex
	launches int
	failures int // first N launches fail
	drivers  []*stubDriver
}

func (l *stubLauncher) Launch(context.Context) (automation.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.launches <= l.failures {
		return nil, automation.ErrLaunch
	}
	d := &stubDriver{}
	l.drivers = append(l.drivers, d)
	return d, nil
}

func (l *stubLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

type stubAdapter struct {
	p provider.Provider
}

func (a *stubAdapter) Provider() provider.Provider { return a.p }
func (a *stubAdapter) URL() string                 { return "https://example.test/chat" }
func (a *stubAdapter) Ready(context.Context, automation.Driver) (bool, error) {
	return true, nil
}
func (a *stubAdapter) Submit(context.Context, automation.Driver, string) error { return nil }
func (a *stubAdapter) AwaitCompletion(context.Context, automation.Driver) error {
	return nil
}
func (a *stubAdapter) Extract(context.Context, automation.Driver) (string, error) {
	return "ok", nil
}

func fastSettings(provider.Provider) Settings {
	return Settings{
		StartAttempts: 2,
		StartTimeout:  time.Second,
		PollInterval:  time.Millisecond,
		FailureLimit:  3,
	}
}

func newTestManager(l *stubLauncher) *Manager {
	adapters := map[provider.Provider]provider.Adapter{
		provider.Grok: &stubAdapter{p: provider.Grok},
	}
	return NewManager(l, adapters, Options{Settings: fastSettings}, logging.NewNop())
}

func TestWithSessionReusesBrowser(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	for i := 0; i < 3; i++ {
		err := m.WithSession(context.Background(), provider.Grok, func(_ context.Context, d automation.Driver, a provider.Adapter) error {
			assert.NotNil(t, d)
			assert.Equal(t, provider.Grok, a.Provider())
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, l.count(), "session should persist across jobs")
}

func TestWithSessionSerializes(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	var inFlight, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
				if inFlight.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load(), "jobs for one provider must never overlap")
}

func TestWithSessionRetriesStart(t *testing.T) {
	l := &stubLauncher{failures: 1}
	m := newTestManager(l)
	defer m.Close()

	err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, l.count())
}

type hangingLauncher struct{}

func (hangingLauncher) Launch(ctx context.Context) (automation.Driver, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %v", automation.ErrLaunch, ctx.Err())
}

func TestStartTimeoutBoundsHangingLaunch(t *testing.T) {
	adapters := map[provider.Provider]provider.Adapter{
		provider.Grok: &stubAdapter{p: provider.Grok},
	}
	m := NewManager(hangingLauncher{}, adapters, Options{
		Settings: func(provider.Provider) Settings {
			return Settings{StartAttempts: 2, StartTimeout: 20 * time.Millisecond, PollInterval: time.Millisecond, FailureLimit: 3}
		},
	}, logging.NewNop())
	defer m.Close()

	begin := time.Now()
	err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		t.Fatal("job must not run without a session")
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionStart)
	assert.Less(t, time.Since(begin), time.Second, "a wedged launch must not hang acquire")
}

func TestWithSessionStartExhausted(t *testing.T) {
	l := &stubLauncher{failures: 100}
	m := newTestManager(l)
	defer m.Close()

	err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		t.Fatal("job must not run without a session")
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionStart)

	health := m.Health()
	require.Len(t, health, 1)
	assert.Equal(t, StateFailed, health[0].State)
}

func TestDeadTabDetectedOnReuse(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	require.NoError(t, m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	}))
	require.Len(t, l.drivers, 1)

	// The tab dies between jobs; the next acquire must notice and relaunch.
	l.drivers[0].pingErr.Store(error(automation.ErrPageGone))

	require.NoError(t, m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	}))
	assert.Equal(t, 2, l.count())
	assert.True(t, l.drivers[0].closed.Load(), "dead browser must be closed")
}

func TestSessionLostForcesRelaunch(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return provider.ErrSessionLost
	})
	assert.ErrorIs(t, err, provider.ErrSessionLost)
	require.Len(t, l.drivers, 1)
	assert.True(t, l.drivers[0].closed.Load(), "broken browser must be closed")

	err = m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, l.count())
}

func TestResponseTimeoutForcesRelaunch(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return provider.ErrResponseTimeout
	})
	assert.ErrorIs(t, err, provider.ErrResponseTimeout)
	require.Len(t, l.drivers, 1)
	assert.True(t, l.drivers[0].closed.Load(), "an aborted wait leaves the page dirty")

	require.NoError(t, m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	}))
	assert.Equal(t, 2, l.count())
}

func TestConsecutiveFailuresForceRelaunch(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	jobErr := errors.New("flaky page")
	for i := 0; i < 3; i++ {
		err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
			return jobErr
		})
		assert.ErrorIs(t, err, jobErr)
	}
	require.Len(t, l.drivers, 1)
	assert.True(t, l.drivers[0].closed.Load(), "third consecutive failure tears the session down")

	require.NoError(t, m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	}))
	assert.Equal(t, 2, l.count())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	jobErr := errors.New("flaky page")
	script := []error{jobErr, jobErr, nil, jobErr, jobErr, nil}
	for _, want := range script {
		err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
			return want
		})
		if want == nil {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, jobErr)
		}
	}
	assert.Equal(t, 1, l.count(), "failure streaks broken by success must not restart")
}

func TestRestart(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)
	defer m.Close()

	var restarted atomic.Int32
	m.opts.OnRestart = func(provider.Provider) { restarted.Add(1) }

	// Restarting with no session is a no-op that still runs the hook.
	require.NoError(t, m.Restart(context.Background(), provider.Grok))
	require.NoError(t, m.Restart(context.Background(), provider.Grok))
	assert.Equal(t, int32(2), restarted.Load())

	require.NoError(t, m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	}))
	require.NoError(t, m.Restart(context.Background(), provider.Grok))
	require.Len(t, l.drivers, 1)
	assert.True(t, l.drivers[0].closed.Load())

	health := m.Health()
	require.Len(t, health, 1)
	assert.Equal(t, StateAbsent, health[0].State)
}

func TestUnknownAdapter(t *testing.T) {
	m := newTestManager(&stubLauncher{})
	defer m.Close()

	err := m.WithSession(context.Background(), provider.Kimi, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNoAdapter)
	assert.ErrorIs(t, m.Restart(context.Background(), provider.Kimi), ErrNoAdapter)
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	l := &stubLauncher{}
	m := newTestManager(l)

	require.NoError(t, m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	}))
	require.NoError(t, m.Close())
	require.Len(t, l.drivers, 1)
	assert.True(t, l.drivers[0].closed.Load())

	err := m.WithSession(context.Background(), provider.Grok, func(context.Context, automation.Driver, provider.Adapter) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
