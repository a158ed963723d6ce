package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/qbit-dedup/qbittorrent"
	"github.com/s0up4200/qbit-dedup/trigger"
)

// Outcome summarizes a reconciliation run
type Outcome string

const (
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeNoDuplicates Outcome = "no_duplicates"
	OutcomeDryRun       Outcome = "dry_run"
	OutcomeDeleted      Outcome = "deleted"
	OutcomePartial      Outcome = "partial"
	OutcomeFailed       Outcome = "failed"
	OutcomeAborted      Outcome = "aborted"
)

type Result struct {
	RunID       string
	Fire        trigger.Fire
	Outcome     Outcome
	Fingerprint string
	Duration    time.Duration

	Torrents  int
	Groups    int
	Victims   int
	Protected int
	DryRun    int
	Deleted   int
	Rejected  int
	Failed    int
	Skipped   int

	Err error
}

func (r Result) log(logger zerolog.Logger, dryRun bool) {
	var ev *zerolog.Event
	switch r.Outcome {
	case OutcomeUnchanged:
		ev = logger.Debug()
	case OutcomeAborted, OutcomeFailed:
		if r.cancelled() {
			ev = logger.Warn()
			break
		}
		ev = logger.Error().Err(r.Err)
	case OutcomePartial:
		ev = logger.Warn().Err(r.Err)
	default:
		ev = logger.Info()
	}

	ev = ev.
		Str("outcome", string(r.Outcome)).
		Bool("dry_run", dryRun).
		Dur("duration", r.Duration)

	switch r.Outcome {
	case OutcomeUnchanged:
		ev.Str("fingerprint", r.Fingerprint).Msg("Torrent set unchanged, skipping")
	case OutcomeNoDuplicates:
		ev.Int("torrents", r.Torrents).
			Int("protected", r.Protected).
			Int("skipped", r.Skipped).
			Msg("No duplicates to remove")
	case OutcomeDryRun:
		ev.Int("torrents", r.Torrents).
			Int("groups", r.Groups).
			Int("would_delete", r.DryRun).
			Int("protected", r.Protected).
			Msg("[DRY RUN] Reconciliation complete, nothing deleted")
	case OutcomeAborted:
		if r.cancelled() {
			ev.Int("deleted", r.Deleted).
				Int("skipped", r.Skipped).
				Msg("Reconciliation cancelled by shutdown")
			return
		}
		ev.Int("deleted", r.Deleted).
			Int("skipped", r.Skipped).
			Bool("auth", isAuthError(r.Err)).
			Msg("Reconciliation aborted")
	default:
		ev.Int("torrents", r.Torrents).
			Int("groups", r.Groups).
			Int("deleted", r.Deleted).
			Int("rejected", r.Rejected).
			Int("failed", r.Failed).
			Int("skipped", r.Skipped).
			Int("protected", r.Protected).
			Msg("Reconciliation complete")
	}
}

// cancelled reports whether the run stopped because its context ended rather
// than because qBittorrent failed.
func (r Result) cancelled() bool {
	if r.Outcome != OutcomeAborted {
		return false
	}
	return r.Err == nil || errors.Is(r.Err, context.Canceled)
}

func isAuthError(err error) bool {
	var authErr *qbittorrent.AuthError
	return errors.As(err, &authErr)
}
