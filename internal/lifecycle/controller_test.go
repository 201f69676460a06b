package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hazz-dev/availmon/internal/config"
	"github.com/hazz-dev/availmon/internal/endpoint"
	"github.com/hazz-dev/availmon/internal/health"
	"github.com/hazz-dev/availmon/internal/lifecycle"
	"github.com/hazz-dev/availmon/internal/probe"
	"github.com/hazz-dev/availmon/internal/scheduler"
)

// gatedProber blocks every probe until release is closed.
type gatedProber struct {
	agg     *health.Aggregator
	release chan struct{}
	started atomic.Int32
	done    atomic.Int32
}

func newGatedProber(agg *health.Aggregator) *gatedProber {
	return &gatedProber{agg: agg, release: make(chan struct{})}
}

func (p *gatedProber) Probe(_ context.Context, ep endpoint.Endpoint) probe.Outcome {
	p.started.Add(1)
	<-p.release
	p.agg.Record(ep.Host(), true)
	p.done.Add(1)
	return probe.Outcome{Endpoint: ep.Name(), Host: ep.Host(), Success: true, StatusCode: 200}
}

type recordingReporter struct {
	mu      sync.Mutex
	reports [][]health.HostHealth
}

func (r *recordingReporter) Availability(hosts []health.HostHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, hosts)
}

func (r *recordingReporter) last() []health.HostHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return nil
	}
	return r.reports[len(r.reports)-1]
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func mustEndpoint(name, url string) endpoint.Endpoint {
	ep, err := endpoint.New(endpoint.Spec{Name: name, URL: url})
	Expect(err).NotTo(HaveOccurred())
	return ep
}

var _ = Describe("Controller", func() {
	var (
		agg      *health.Aggregator
		prober   *gatedProber
		sched    *scheduler.Scheduler
		reporter *recordingReporter
		logs     *observer.ObservedLogs
		ctrl     *lifecycle.Controller
	)

	BeforeEach(func() {
		agg = health.NewAggregator()
		prober = newGatedProber(agg)
		sched = scheduler.New(prober, scheduler.Options{Interval: 20 * time.Millisecond}, nil)
		reporter = &recordingReporter{}
		core, observed := observer.New(zap.InfoLevel)
		logs = observed
		ctrl = lifecycle.New(sched, agg, reporter, lifecycle.Options{Interval: 20 * time.Millisecond}, zap.New(core))
	})

	AfterEach(func() {
		select {
		case <-prober.release:
		default:
			close(prober.release)
		}
	})

	run := func(ctx context.Context) <-chan error {
		errc := make(chan error, 1)
		go func() { errc <- ctrl.Run(ctx) }()
		return errc
	}

	Describe("New", func() {
		It("should start in STARTING", func() {
			Expect(ctrl.State()).To(Equal(lifecycle.StateStarting))
			Expect(ctrl.State().String()).To(Equal("STARTING"))
		})
	})

	Describe("Start", func() {
		It("should register every endpoint and move to RUNNING", func() {
			err := ctrl.Start(func() ([]endpoint.Endpoint, error) {
				return []endpoint.Endpoint{
					mustEndpoint("a", "https://a.example/"),
					mustEndpoint("b", "https://b.example/"),
				}, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(sched.Len()).To(Equal(2))
			Expect(ctrl.State()).To(Equal(lifecycle.StateRunning))
		})

		It("should reject a second start", func() {
			load := func() ([]endpoint.Endpoint, error) { return nil, nil }
			Expect(ctrl.Start(load)).To(Succeed())
			Expect(ctrl.Start(load)).To(MatchError(lifecycle.ErrState))
		})

		Context("when an entry is missing its url", func() {
			It("should fail with a ValidationError and dispatch no probes", func() {
				err := ctrl.Start(func() ([]endpoint.Endpoint, error) {
					return config.ParseEndpoints("endpoints.yml", []byte(`
- name: good
  url: https://good.example/
- name: broken
`))
				})
				Expect(err).To(HaveOccurred())

				var verr *endpoint.ValidationError
				Expect(errors.As(err, &verr)).To(BeTrue())
				Expect(verr.Field).To(Equal("url"))

				Expect(ctrl.State()).To(Equal(lifecycle.StateStarting))
				Expect(sched.Len()).To(BeZero())
				Expect(ctrl.Run(context.Background())).To(MatchError(lifecycle.ErrState))
				Expect(prober.started.Load()).To(BeZero())
			})
		})
	})

	Describe("Run", func() {
		It("should refuse to run before Start", func() {
			Expect(ctrl.Run(context.Background())).To(MatchError(lifecycle.ErrState))
		})

		Context("with no endpoints", func() {
			It("should idle and stop cleanly", func() {
				Expect(ctrl.Start(func() ([]endpoint.Endpoint, error) { return nil, nil })).To(Succeed())

				ctx, cancel := context.WithCancel(context.Background())
				errc := run(ctx)

				Eventually(func() int {
					return logs.FilterMessage(lifecycle.MsgIdle).Len()
				}).Should(BeNumerically(">=", 2))

				cancel()
				Eventually(errc).Should(Receive(BeNil()))
				Expect(ctrl.State()).To(Equal(lifecycle.StateStopped))
				Expect(prober.started.Load()).To(BeZero())
			})
		})

		Context("when a shutdown arrives with probes in flight", func() {
			const n = 3

			BeforeEach(func() {
				Expect(ctrl.Start(func() ([]endpoint.Endpoint, error) {
					return []endpoint.Endpoint{
						mustEndpoint("a", "https://a.example/"),
						mustEndpoint("b", "https://b.example/"),
						mustEndpoint("c", "https://c.example/"),
					}, nil
				})).To(Succeed())
			})

			It("should reach STOPPED only after every probe completes", func() {
				ctx, cancel := context.WithCancel(context.Background())
				errc := run(ctx)

				Eventually(prober.started.Load).Should(BeEquivalentTo(n))
				Expect(ctrl.State()).To(Equal(lifecycle.StateRunning))

				cancel()
				Eventually(ctrl.State).Should(Equal(lifecycle.StateDraining))
				Consistently(ctrl.State, 100*time.Millisecond).Should(Equal(lifecycle.StateDraining))
				Expect(logs.FilterMessage(lifecycle.MsgShutdown).Len()).To(Equal(1))

				close(prober.release)

				Eventually(errc).Should(Receive(BeNil()))
				Expect(ctrl.State()).To(Equal(lifecycle.StateStopped))
				Expect(prober.done.Load()).To(BeEquivalentTo(n))
			})

			It("should dispatch zero new probes after the signal", func() {
				ctx, cancel := context.WithCancel(context.Background())
				errc := run(ctx)

				Eventually(prober.started.Load).Should(BeEquivalentTo(n))
				cancel()
				Eventually(ctrl.State).Should(Equal(lifecycle.StateDraining))

				close(prober.release)
				Eventually(errc).Should(Receive(BeNil()))

				// The interval elapses several times; nothing new is dispatched.
				Consistently(prober.started.Load, 100*time.Millisecond).Should(BeEquivalentTo(n))
				Expect(sched.Tick(time.Now().Add(time.Hour))).To(BeZero())
			})

			It("should emit a final report covering every completed probe", func() {
				ctx, cancel := context.WithCancel(context.Background())
				errc := run(ctx)

				Eventually(prober.started.Load).Should(BeEquivalentTo(n))
				cancel()
				close(prober.release)
				Eventually(errc).Should(Receive(BeNil()))

				final := reporter.last()
				Expect(final).To(HaveLen(n))
				for _, h := range final {
					Expect(h.Total).To(BeEquivalentTo(1))
					Expect(h.Availability()).To(Equal(100))
				}
			})
		})

		Context("with a drain timeout", func() {
			It("should stop and report the abandoned drain", func() {
				sched = scheduler.New(prober, scheduler.Options{Interval: 20 * time.Millisecond}, nil)
				ctrl = lifecycle.New(sched, agg, reporter, lifecycle.Options{
					Interval:     20 * time.Millisecond,
					DrainTimeout: 50 * time.Millisecond,
				}, nil)
				Expect(ctrl.Start(func() ([]endpoint.Endpoint, error) {
					return []endpoint.Endpoint{mustEndpoint("slow", "https://slow.example/")}, nil
				})).To(Succeed())

				ctx, cancel := context.WithCancel(context.Background())
				errc := run(ctx)
				Eventually(prober.started.Load).Should(BeEquivalentTo(1))
				cancel()

				var err error
				Eventually(errc).Should(Receive(&err))
				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
				Expect(ctrl.State()).To(Equal(lifecycle.StateStopped))
			})
		})

		It("should report a snapshot on every tick", func() {
			close(prober.release)
			Expect(ctrl.Start(func() ([]endpoint.Endpoint, error) {
				return []endpoint.Endpoint{mustEndpoint("a", "https://a.example/")}, nil
			})).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			errc := run(ctx)

			Eventually(reporter.count).Should(BeNumerically(">=", 3))
			cancel()
			Eventually(errc).Should(Receive(BeNil()))

			final := reporter.last()
			Expect(final).To(HaveLen(1))
			Expect(final[0].Host).To(Equal("a.example"))
			Expect(final[0].Total).To(BeNumerically(">=", 1))
		})

		It("should dispatch each endpoint on every tick, not every other one", func() {
			close(prober.release)
			Expect(ctrl.Start(func() ([]endpoint.Endpoint, error) {
				return []endpoint.Endpoint{mustEndpoint("a", "https://a.example/")}, nil
			})).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			errc := run(ctx)

			Eventually(reporter.count).Should(BeNumerically(">=", 12))
			cancel()
			Eventually(errc).Should(Receive(BeNil()))

			// One report per tick plus the final one; each tick dispatched.
			ticks := reporter.count() - 1
			Expect(int(prober.done.Load())).To(BeNumerically(">=", ticks-2))
		})
	})
})
