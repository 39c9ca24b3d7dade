package coordination

import (
	"context"
	"fmt"
	"time"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// =============================================================================
// EVALUATION COLLECTOR
// =============================================================================

// Collector aggregates confidence reports out of one coordination thread by
// polling the adapter. It blocks the calling goroutine for up to the
// configured timeout; callers run it on a worker, never on the adapter's
// delivery loop.
type Collector struct {
	adapter       channel.Adapter
	channelID     string
	timeout       time.Duration
	initialDelay  time.Duration
	maxRetryAfter time.Duration
	clock         Clock
}

// NewCollector builds a collector for the given coordination channel.
func NewCollector(adapter channel.Adapter, channelID string, cfg config.CoordinationConfig) *Collector {
	return &Collector{
		adapter:       adapter,
		channelID:     channelID,
		timeout:       cfg.GetEvaluationTimeout(),
		initialDelay:  cfg.GetInitialDelay(),
		maxRetryAfter: cfg.GetMaxRetryAfter(),
		clock:         realClock{},
	}
}

// Collect polls threadTS until every expected specialist has reported or the
// deadline passes. The thread is re-scanned in full on every poll because
// the adapter only promises that re-fetches return supersets, not that
// messages surface in order. The first report seen for a name wins; repeats
// are ignored. Rate-limit waits extend the deadline instead of eating into
// it, capped so one bad header cannot park the pass for minutes.
//
// The returned map holds whatever was collected when the pass ended; empty
// is a valid result. Any error other than rate limiting ends the pass and is
// returned with the partial map; the caller owes the thread a visible
// outcome either way.
func (c *Collector) Collect(ctx context.Context, threadTS string, expected []string) (map[string]int, error) {
	rl := logging.WithRequestID(logging.CategoryCollector, threadTS)
	rl.Info("collecting evaluations, expecting %d specialists", len(expected))

	want := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		want[name] = struct{}{}
	}

	evaluations := make(map[string]int)
	start := c.clock.Now()
	deadline := start.Add(c.timeout)

	c.clock.Sleep(ctx, c.initialDelay)

	for {
		if err := ctx.Err(); err != nil {
			return evaluations, err
		}

		msgs, err := c.adapter.ListReplies(ctx, c.channelID, threadTS)
		if err != nil {
			if limit, ok := channel.AsRateLimit(err); ok {
				wait := limit.RetryAfter
				if wait > c.maxRetryAfter {
					wait = c.maxRetryAfter
				}
				deadline = deadline.Add(wait)
				rl.Warn("rate limited; waiting %v and extending the deadline", wait)
				c.clock.Sleep(ctx, wait)
				continue
			}
			return evaluations, fmt.Errorf("fetching thread %s: %w", threadTS, err)
		}

		for _, msg := range msgs {
			report, ok := protocol.ParseConfidenceReport(msg.Text)
			if !ok {
				continue
			}
			if _, seen := evaluations[report.Specialist]; seen {
				continue
			}
			evaluations[report.Specialist] = report.Confidence
			rl.Info("%s reported %d%%", report.Specialist, report.Confidence)
		}

		if collectedAll(evaluations, want) {
			rl.Info("all %d expected reports in; ending pass early", len(want))
			return evaluations, nil
		}

		now := c.clock.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			rl.Info("deadline reached with %d/%d reports", len(evaluations), len(want))
			return evaluations, nil
		}
		interval := pollInterval(now.Sub(start))
		if interval > remaining {
			interval = remaining
		}
		c.clock.Sleep(ctx, interval)
	}
}

func collectedAll(evaluations map[string]int, want map[string]struct{}) bool {
	for name := range want {
		if _, ok := evaluations[name]; !ok {
			return false
		}
	}
	return true
}

// pollInterval densifies polling as a pass ages: generous early waits keep
// clear of transport rate limits, short late waits trim tail latency.
func pollInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 2*time.Second:
		return 500 * time.Millisecond
	case elapsed < 5*time.Second:
		return 300 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}
