// Package lifecycle drives the monitor from startup through graceful
// shutdown: STARTING, RUNNING, DRAINING, STOPPED.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hazz-dev/availmon/internal/endpoint"
	"github.com/hazz-dev/availmon/internal/health"
)

// State is a step of the controller lifecycle.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Log lines emitted by the controller.
const (
	MsgIdle     = "No endpoints to probe. Waiting for new endpoints..."
	MsgShutdown = "Received shutdown signal. Gracefully shutting down ..."
)

// ErrState is returned when Start or Run is called out of order.
var ErrState = errors.New("lifecycle: invalid state")

// Scheduler is the subset of the probe scheduler the controller drives.
type Scheduler interface {
	Register(ep endpoint.Endpoint)
	Tick(now time.Time) int
	Drain(ctx context.Context) error
	Len() int
}

// Snapshotter exposes the current per-host availability.
type Snapshotter interface {
	Snapshot() []health.HostHealth
}

// Reporter renders a snapshot.
type Reporter interface {
	Availability(hosts []health.HostHealth)
}

// Options tunes a Controller.
type Options struct {
	// Interval between ticks. Defaults to 15s.
	Interval time.Duration
	// DrainTimeout bounds the wait for in-flight probes. Zero waits until
	// every probe has returned, which the probe timeout already bounds.
	DrainTimeout time.Duration
}

// Controller owns the run loop.
type Controller struct {
	sched    Scheduler
	health   Snapshotter
	reporter Reporter
	logger   *zap.Logger

	interval     time.Duration
	drainTimeout time.Duration

	state atomic.Int32
}

// New creates a Controller in StateStarting. Pass nil logger to discard logs.
func New(sched Scheduler, snap Snapshotter, rep Reporter, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	return &Controller{
		sched:        sched,
		health:       snap,
		reporter:     rep,
		logger:       logger,
		interval:     opts.Interval,
		drainTimeout: opts.DrainTimeout,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start loads every endpoint and registers it with the scheduler. Nothing is
// registered unless the whole set loads; on error the controller stays in
// StateStarting and must not be run.
func (c *Controller) Start(load func() ([]endpoint.Endpoint, error)) error {
	if c.State() != StateStarting {
		return fmt.Errorf("%w: start from %s", ErrState, c.State())
	}
	eps, err := load()
	if err != nil {
		return fmt.Errorf("loading endpoints: %w", err)
	}
	for _, ep := range eps {
		c.sched.Register(ep)
		c.logger.Debug("registered endpoint", zap.Stringer("endpoint", ep))
	}
	c.state.Store(int32(StateRunning))
	return nil
}

// Run ticks until ctx is cancelled, then drains in-flight probes, emits the
// final report, and returns. The error is non-nil only when draining was cut
// short by DrainTimeout.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() != StateRunning {
		return fmt.Errorf("%w: run from %s", ErrState, c.State())
	}

	c.tick(time.Now())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case now := <-ticker.C:
			// Cancellation wins over a simultaneously ready tick.
			if ctx.Err() != nil {
				return c.shutdown()
			}
			c.tick(now)
		}
	}
}

func (c *Controller) tick(now time.Time) {
	if c.sched.Len() == 0 {
		c.logger.Info(MsgIdle)
		return
	}
	n := c.sched.Tick(now)
	c.logger.Debug("tick", zap.Int("dispatched", n))
	c.reporter.Availability(c.health.Snapshot())
}

func (c *Controller) shutdown() error {
	c.logger.Info(MsgShutdown)
	c.state.Store(int32(StateDraining))

	drainCtx := context.Background()
	if c.drainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, c.drainTimeout)
		defer cancel()
	}
	err := c.sched.Drain(drainCtx)
	if err != nil {
		c.logger.Warn("in-flight probes did not finish before drain timeout", zap.Error(err))
		err = fmt.Errorf("draining scheduler: %w", err)
	}

	c.state.Store(int32(StateStopped))
	c.reporter.Availability(c.health.Snapshot())
	return err
}
