// Package report renders availability snapshots and run summaries as log
// lines.
package report

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hazz-dev/availmon/internal/health"
	"github.com/hazz-dev/availmon/internal/journal"
)

// Separator closes every availability block.
const Separator = "---------------------------"

// Reporter writes report lines to a logger.
type Reporter struct {
	logger *zap.Logger
}

// New creates a Reporter. Pass nil logger to discard output.
func New(logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{logger: logger}
}

// Availability writes one "<host> has <pct>% availability" line per host,
// followed by the separator. An empty snapshot writes nothing.
func (r *Reporter) Availability(hosts []health.HostHealth) {
	if len(hosts) == 0 {
		return
	}
	for _, h := range hosts {
		r.logger.Info(AvailabilityLine(h))
	}
	r.logger.Info(Separator)
}

// AvailabilityLine formats a single host.
func AvailabilityLine(h health.HostHealth) string {
	return fmt.Sprintf("%s has %d%% availability", h.Host, h.Availability())
}

// Summary writes one line per endpoint describing the whole run, ending
// with the last error of endpoints that were failing at shutdown.
func (r *Reporter) Summary(stats []journal.EndpointStats) {
	if len(stats) == 0 {
		return
	}
	r.logger.Info("Run summary:")
	for _, s := range stats {
		line := fmt.Sprintf("%s (%s): %d probes, %d healthy, avg %.1fms",
			s.Endpoint, s.Host, s.Probes, s.Healthy, s.AvgLatencyMS)
		if s.LastError != "" {
			line += ", last error: " + s.LastError
		}
		r.logger.Info(line)
	}
	r.logger.Info(Separator)
}
