// Package queue funnels jobs into per-provider FIFO lanes. Each lane has a
// bounded depth, a rate limiter, and a single worker, so jobs for one
// provider run strictly in arrival order and never concurrently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/provider"
)

var (
	// ErrOverloaded is returned when a provider's lane is full.
	ErrOverloaded = errors.New("queue overloaded")
	// ErrTimedOutInQueue is returned when a job's deadline passed before it
	// reached the front of its lane. The session was never touched.
	ErrTimedOutInQueue = errors.New("timed out waiting in queue")
	// ErrClosed is returned after the dispatcher has shut down.
	ErrClosed = errors.New("queue closed")
)

// Settings tunes one provider lane.
type Settings struct {
	// Depth is the number of jobs that may wait; one more may be running.
	Depth int
	// RequestsPerMin caps job starts. Zero disables rate limiting.
	RequestsPerMin int
	// JobTimeout bounds the running time of a single job.
	JobTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Depth <= 0 {
		s.Depth = 16
	}
	if s.JobTimeout <= 0 {
		s.JobTimeout = 120 * time.Second
	}
	return s
}

// Fn is one unit of work. The context carries both the caller's deadline
// and the lane's job timeout.
type Fn func(ctx context.Context, jobID string) error

type job struct {
	id       string
	ctx      context.Context
	fn       Fn
	done     chan error
	enqueued time.Time
	// started flips once the worker has dequeued the job. A caller whose
	// deadline expires before that may abandon the job; the worker discards
	// it without touching the session.
	started atomic.Bool
}

type lane struct {
	ch      chan *job
	limiter *rate.Limiter
	timeout time.Duration
}

// Dispatcher owns all provider lanes.
type Dispatcher struct {
	settings func(p provider.Provider) Settings
	logger   *logging.Logger

	mu     sync.Mutex
	lanes  map[provider.Provider]*lane
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a Dispatcher. settings resolves per-provider
// tunables; nil means defaults everywhere.
func NewDispatcher(settings func(p provider.Provider) Settings, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		settings: settings,
		logger:   logger,
		lanes:    make(map[provider.Provider]*lane),
	}
}

func (d *Dispatcher) settingsFor(p provider.Provider) Settings {
	if d.settings == nil {
		return Settings{}.withDefaults()
	}
	return d.settings(p).withDefaults()
}

// enqueue places j on the provider's lane, creating the lane on first use.
// Holding d.mu across the send keeps Close from closing the channel between
// the closed check and the send.
func (d *Dispatcher) enqueue(p provider.Provider, j *job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	l, ok := d.lanes[p]
	if !ok {
		s := d.settingsFor(p)
		l = &lane{
			ch:      make(chan *job, s.Depth),
			timeout: s.JobTimeout,
		}
		if s.RequestsPerMin > 0 {
			l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.RequestsPerMin)), 1)
		}
		d.lanes[p] = l
		d.wg.Add(1)
		go d.run(p, l)
	}

	select {
	case l.ch <- j:
		metricQueueDepth.WithLabelValues(string(p)).Inc()
		return nil
	default:
		metricJobs.WithLabelValues(string(p), "overloaded").Inc()
		return fmt.Errorf("%w: %s lane full", ErrOverloaded, p)
	}
}

// Do enqueues fn on the provider's lane and blocks until it finishes.
// Returns ErrOverloaded immediately when the lane is full, and
// ErrTimedOutInQueue as soon as ctx expires while the job is still waiting.
func (d *Dispatcher) Do(ctx context.Context, p provider.Provider, fn Fn) error {
	j := &job{
		id:       ulid.Make().String(),
		ctx:      ctx,
		fn:       fn,
		done:     make(chan error, 1),
		enqueued: time.Now(),
	}
	if err := d.enqueue(p, j); err != nil {
		return err
	}

	d.logger.Debug(logging.CategoryQueue, "job_enqueued", "", map[string]any{
		"provider": string(p),
		"job_id":   j.id,
	})

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// Once dequeued the worker resolves the job promptly, either by
		// discarding it or by running fn under the expired context.
		if j.started.Load() {
			return <-j.done
		}
		// The worker counts the expired job when it discards it.
		return fmt.Errorf("%w: %s job %s abandoned after %s", ErrTimedOutInQueue, p, j.id, time.Since(j.enqueued).Round(time.Millisecond))
	}
}

// run is the single worker for one lane.
func (d *Dispatcher) run(p provider.Provider, l *lane) {
	defer d.wg.Done()
	for j := range l.ch {
		metricQueueDepth.WithLabelValues(string(p)).Dec()
		j.started.Store(true)
		j.done <- d.execute(p, l, j)
	}
}

func (d *Dispatcher) execute(p provider.Provider, l *lane, j *job) error {
	if err := j.ctx.Err(); err != nil {
		metricJobs.WithLabelValues(string(p), "expired").Inc()
		return fmt.Errorf("%w: %s job %s waited %s", ErrTimedOutInQueue, p, j.id, time.Since(j.enqueued).Round(time.Millisecond))
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(j.ctx); err != nil {
			metricJobs.WithLabelValues(string(p), "expired").Inc()
			return fmt.Errorf("%w: %s job %s rate limited past deadline", ErrTimedOutInQueue, p, j.id)
		}
	}

	ctx, cancel := context.WithTimeout(j.ctx, l.timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(ctx, j.id)
	d.logger.Debug(logging.CategoryQueue, "job_finished", "", map[string]any{
		"provider":    string(p),
		"job_id":      j.id,
		"waited_ms":   start.Sub(j.enqueued).Milliseconds(),
		"duration_ms": time.Since(start).Milliseconds(),
		"ok":          err == nil,
	})
	if err != nil {
		metricJobs.WithLabelValues(string(p), "error").Inc()
		return err
	}
	metricJobs.WithLabelValues(string(p), "ok").Inc()
	return nil
}

// Close stops accepting jobs and waits for in-flight ones to finish.
// Jobs still waiting in a lane complete normally before the worker exits.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, l := range d.lanes {
		close(l.ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
