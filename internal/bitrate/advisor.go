// Package bitrate implements a reference orchestrator.BitrateAdvisor:
// it watches host CPU load and suggests a lower video target bitrate
// when the machine is under pressure, grounded on the teacher's
// gopsutil-based StatsCollector.
package bitrate

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Advisor tracks CPU percent over time and proposes a new target bitrate
// whenever load crosses one of its configured thresholds. The separate
// high and low thresholds give the decision hysteresis; the caller's
// polling interval adds further damping.
type Advisor struct {
	logger *slog.Logger

	baseBps int64
	minBps  int64

	// HighLoadPercent is the CPU percent above which the suggested
	// bitrate is halved; LowLoadPercent is the percent below which it's
	// restored to baseBps.
	HighLoadPercent float64
	LowLoadPercent  float64

	degraded bool
}

// New returns an Advisor targeting baseBps under normal load, never
// suggesting below minBps.
func New(baseBps, minBps int64, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{
		logger:          logger,
		baseBps:         baseBps,
		minBps:          minBps,
		HighLoadPercent: 85,
		LowLoadPercent:  60,
	}
}

// Advise samples host-wide CPU percent and returns (bps, true) when the
// degraded/normal state changed since the last call, (0, false) otherwise
// — matching orchestrator.BitrateAdvisor's signature so Advise can be
// passed directly as the advisor callback.
func (a *Advisor) Advise(ctx context.Context) (int64, bool) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		a.logger.Warn("bitrate advisor: cpu sample failed", "error", err)
		return 0, false
	}
	load := percents[0]

	switch {
	case !a.degraded && load >= a.HighLoadPercent:
		a.degraded = true
		target := a.baseBps / 2
		if target < a.minBps {
			target = a.minBps
		}
		a.logger.Info("bitrate advisor: degrading", "cpu_percent", load, "target_bps", target)
		return target, true

	case a.degraded && load <= a.LowLoadPercent:
		a.degraded = false
		a.logger.Info("bitrate advisor: restoring", "cpu_percent", load, "target_bps", a.baseBps)
		return a.baseBps, true

	default:
		return 0, false
	}
}
