package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hazz-dev/availmon/internal/endpoint"
	"github.com/hazz-dev/availmon/internal/probe"
)

const (
	// DefaultInterval is the tick period and the delay between two probes
	// of the same endpoint.
	DefaultInterval = 15 * time.Second
	// DefaultMaxConcurrent bounds probes in flight across all endpoints.
	DefaultMaxConcurrent = 32
)

// Prober runs one probe. Implementations must not fail outward.
type Prober interface {
	Probe(ctx context.Context, ep endpoint.Endpoint) probe.Outcome
}

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	Interval      time.Duration
	MaxConcurrent int
}

type entry struct {
	ep       endpoint.Endpoint
	nextDue  time.Time
	inFlight bool
}

// Scheduler dispatches probes for due endpoints, never running two probes
// of the same endpoint at once.
type Scheduler struct {
	prober   Prober
	interval time.Duration
	slots    *semaphore.Weighted
	onResult func(endpoint.Endpoint, probe.Outcome)
	logger   *zap.Logger

	mu       sync.Mutex
	entries  []*entry
	inFlight int
	draining bool
	wg       sync.WaitGroup
}

// New creates a Scheduler. Pass nil logger to discard logs.
func New(prober Prober, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		prober:   prober,
		interval: opts.Interval,
		slots:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:   logger,
	}
}

// SetOnResult sets the callback invoked after each probe completes. It runs
// on the probe's goroutine and must be safe for concurrent use.
func (s *Scheduler) SetOnResult(fn func(endpoint.Endpoint, probe.Outcome)) {
	s.onResult = fn
}

// Register adds ep to the schedule. It is due immediately.
func (s *Scheduler) Register(ep endpoint.Endpoint) {
	s.mu.Lock()
	s.entries = append(s.entries, &entry{ep: ep})
	s.mu.Unlock()
}

// Len returns the number of registered endpoints.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// InFlight returns the number of probes currently running.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Tick dispatches a probe for every idle entry whose next-due time is at or
// before now, and returns how many were dispatched. It does not wait for the
// probes. A dispatched entry is next due one interval after now, so an
// endpoint whose probe finishes within the interval is probed on every tick.
// Entries that find no free slot stay due for the next tick.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return 0
	}

	dispatched := 0
	for _, e := range s.entries {
		if e.inFlight || e.nextDue.After(now) {
			continue
		}
		if !s.slots.TryAcquire(1) {
			s.logger.Warn("probe pool saturated, deferring to next tick",
				zap.String("endpoint", e.ep.Name()),
				zap.Int("in_flight", s.inFlight),
			)
			break
		}
		e.inFlight = true
		e.nextDue = now.Add(s.interval)
		s.inFlight++
		s.wg.Add(1)
		go s.run(e)
		dispatched++
	}
	return dispatched
}

func (s *Scheduler) run(e *entry) {
	defer s.wg.Done()

	out := s.prober.Probe(context.Background(), e.ep)

	s.logger.Debug("probe result",
		zap.String("endpoint", e.ep.Name()),
		zap.String("host", out.Host),
		zap.String("status", out.Status()),
		zap.Int("status_code", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS()),
		zap.Error(out.Err),
	)

	if s.onResult != nil {
		s.onResult(e.ep, out)
	}

	s.mu.Lock()
	e.inFlight = false
	s.inFlight--
	s.slots.Release(1)
	s.mu.Unlock()
}

// Drain stops all further dispatching and blocks until every in-flight
// probe has completed, or ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	pending := s.inFlight
	s.mu.Unlock()

	if pending > 0 {
		s.logger.Info("waiting for in-flight probes", zap.Int("in_flight", pending))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
