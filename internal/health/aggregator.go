// Package health aggregates probe outcomes into per-host availability.
//
// Counters are monotonic for the life of the process: there is no eviction,
// decay or windowing.
package health

import "sync"

// HostHealth is a point-in-time view of one host's counters.
type HostHealth struct {
	Host      string
	Total     uint64
	Successes uint64
}

// Availability returns floor(100 * Successes / Total), or 0 when no probe
// has been recorded for the host.
func (h HostHealth) Availability() int {
	if h.Total == 0 {
		return 0
	}
	return int(100 * h.Successes / h.Total)
}

type counter struct {
	mu        sync.Mutex
	total     uint64
	successes uint64
}

// Aggregator tracks HostHealth for every host it has seen.
// It is safe for concurrent use.
type Aggregator struct {
	mu    sync.RWMutex
	hosts map[string]*counter
	order []string // first-observed order
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		hosts: make(map[string]*counter),
		order: make([]string, 0),
	}
}

// Record counts one probe against host. The total is always incremented;
// successes only when success is true. Unseen hosts are created lazily.
func (a *Aggregator) Record(host string, success bool) {
	c := a.counterFor(host)

	c.mu.Lock()
	c.total++
	if success {
		c.successes++
	}
	c.mu.Unlock()
}

func (a *Aggregator) counterFor(host string) *counter {
	a.mu.RLock()
	c, ok := a.hosts[host]
	a.mu.RUnlock()
	if ok {
		return c
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.hosts[host]; ok {
		return c
	}
	c = &counter{}
	a.hosts[host] = c
	a.order = append(a.order, host)
	return c
}

// Snapshot returns every host's counters in first-observed order. Each
// host's pair is read atomically; different hosts may be read at slightly
// different moments.
func (a *Aggregator) Snapshot() []HostHealth {
	a.mu.RLock()
	order := make([]string, len(a.order))
	copy(order, a.order)
	counters := make([]*counter, len(order))
	for i, host := range order {
		counters[i] = a.hosts[host]
	}
	a.mu.RUnlock()

	out := make([]HostHealth, len(order))
	for i, c := range counters {
		c.mu.Lock()
		out[i] = HostHealth{Host: order[i], Total: c.total, Successes: c.successes}
		c.mu.Unlock()
	}
	return out
}
