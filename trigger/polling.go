package trigger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PollingTrigger fires once on start and then once per interval
type PollingTrigger struct {
	stateHolder
	interval time.Duration
	logger   zerolog.Logger
}

func NewPollingTrigger(interval time.Duration, logger zerolog.Logger) *PollingTrigger {
	return &PollingTrigger{
		interval: interval,
		logger:   logger.With().Str("trigger", "polling").Logger(),
	}
}

// Run blocks until ctx is cancelled. The first Fire is unconditional, later
// ones only ask for a pass when the torrent set changed.
func (p *PollingTrigger) Run(ctx context.Context, q *Queue) error {
	p.setState(StateIdle)
	p.logger.Info().Dur("interval", p.interval).Msg("Polling for changes")
	return p.poll(ctx, q, Fire{Source: SourceStartup, Reason: "initial reconciliation"})
}

func (p *PollingTrigger) poll(ctx context.Context, q *Queue, first Fire) error {
	if ctx.Err() != nil {
		return nil
	}
	q.Fire(first)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Trace().Msg("Poll interval elapsed")
			q.Fire(Fire{Source: SourcePoll, Reason: "poll interval elapsed", OnChange: true})
		}
	}
}
