// Package orchestrator owns the reconciliation loop: it receives Fires,
// lists torrents, plans which duplicates to remove and removes them.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/s0up4200/qbit-dedup/dedup"
	"github.com/s0up4200/qbit-dedup/filter"
	"github.com/s0up4200/qbit-dedup/metrics"
	"github.com/s0up4200/qbit-dedup/qbittorrent"
	"github.com/s0up4200/qbit-dedup/trigger"
)

// Remote is the subset of the qBittorrent client the orchestrator needs
type Remote interface {
	ListEntries(ctx context.Context) ([]qbittorrent.Entry, error)
	DeleteEntry(ctx context.Context, hash string, deleteFiles bool) (bool, error)
}

type Options struct {
	DryRun      bool
	DeleteFiles bool
	Policy      dedup.KeyPolicy
	// Protect keeps matching victims. Nil disables it.
	Protect *filter.ExprFilter
	// DeleteRate caps deletions per second. Zero means unlimited.
	DeleteRate float64
}

type Orchestrator struct {
	remote  Remote
	opts    Options
	tracker *dedup.FingerprintTracker
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func New(remote Remote, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = dedup.FolderPolicy
	}

	var limiter *rate.Limiter
	if opts.DeleteRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.DeleteRate), 1)
	}

	return &Orchestrator{
		remote:  remote,
		opts:    opts,
		tracker: &dedup.FingerprintTracker{},
		limiter: limiter,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one reconciliation per received Fire until ctx is cancelled.
// Runs never overlap.
func (o *Orchestrator) Run(ctx context.Context, fires <-chan trigger.Fire) error {
	o.logger.Info().
		Bool("dry_run", o.opts.DryRun).
		Bool("delete_files", o.opts.DeleteFiles).
		Str("group_by", o.opts.Policy.Name()).
		Msg("Orchestrator started")

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Orchestrator stopped")
			return nil
		case fire := <-fires:
			if ctx.Err() != nil {
				return nil
			}
			o.Reconcile(ctx, fire)
		}
	}
}

// Reconcile performs a single pass. Errors are logged and reported in the
// Result, never returned.
func (o *Orchestrator) Reconcile(ctx context.Context, fire trigger.Fire) Result {
	start := time.Now()
	res := Result{
		RunID: uuid.NewString(),
		Fire:  fire,
	}
	log := o.logger.With().
		Str("run_id", res.RunID).
		Str("source", string(fire.Source)).
		Logger()

	log.Debug().Str("reason", fire.Reason).Bool("on_change", fire.OnChange).Msg("Reconciliation started")

	o.reconcile(ctx, fire, &res, log)

	res.Duration = time.Since(start)
	metrics.RunsTotal.WithLabelValues(string(res.Outcome)).Inc()
	metrics.RunDuration.Observe(res.Duration.Seconds())
	res.log(log, o.opts.DryRun)
	return res
}

func (o *Orchestrator) reconcile(ctx context.Context, fire trigger.Fire, res *Result, log zerolog.Logger) {
	entries, err := o.remote.ListEntries(ctx)
	if err != nil {
		res.Outcome = OutcomeAborted
		res.Err = err
		return
	}
	res.Torrents = len(entries)
	metrics.TorrentsSeen.Set(float64(len(entries)))

	res.Fingerprint = dedup.Fingerprint(qbittorrent.IDs(entries))
	changed := o.tracker.Observe(res.Fingerprint)
	if fire.OnChange && !changed {
		res.Outcome = OutcomeUnchanged
		return
	}

	plan := dedup.NewPlan(entries, o.opts.Policy)
	duplicates := plan.Duplicates()
	res.Groups = len(duplicates)
	metrics.DuplicateGroups.Set(float64(len(duplicates)))

	candidates := o.selectVictims(duplicates, res, log)
	if len(candidates) == 0 {
		res.Outcome = OutcomeNoDuplicates
		return
	}

	if o.opts.DryRun {
		for _, v := range candidates {
			log.Info().
				Bool("dry_run", true).
				Str("hash", v.entry.Hash).
				Str("name", v.entry.Name).
				Str("group", v.group.String()).
				Time("added_on", v.entry.AddedOn).
				Msg("[DRY RUN] Would delete duplicate torrent")
			metrics.DeletionsTotal.WithLabelValues("dry_run").Inc()
		}
		res.DryRun = len(candidates)
		res.Outcome = OutcomeDryRun
		return
	}

	deleted, aborted := o.deleteVictims(ctx, candidates, res, log)
	res.Outcome = outcomeFor(len(candidates), res, aborted)

	if res.Outcome == OutcomeDeleted {
		o.tracker.Record(survivorFingerprint(entries, deleted))
		return
	}
	// duplicates are still there, the next poll has to run again
	o.tracker.Reset()
}

type victim struct {
	entry qbittorrent.Entry
	group dedup.GroupKey
}

// selectVictims flattens the plan in group-then-time order and drops
// protected entries.
func (o *Orchestrator) selectVictims(groups []dedup.Group, res *Result, log zerolog.Logger) []victim {
	var out []victim
	for _, g := range groups {
		survivor := g.Survivor()
		log.Info().
			Str("group", g.Key.String()).
			Int("size", len(g.Entries)).
			Str("keep_hash", survivor.Hash).
			Str("keep_name", survivor.Name).
			Msg("Duplicate group found")

		for _, e := range g.Victims() {
			res.Victims++
			metrics.VictimsTotal.Inc()

			if o.opts.Protect != nil {
				protected, err := o.opts.Protect.Match(e)
				if err != nil {
					res.Skipped++
					metrics.DeletionsTotal.WithLabelValues("skipped").Inc()
					log.Error().Err(err).
						Str("hash", e.Hash).
						Str("name", e.Name).
						Str("group", g.Key.String()).
						Msg("Protect filter failed, keeping torrent")
					continue
				}
				if protected {
					res.Protected++
					metrics.DeletionsTotal.WithLabelValues("protected").Inc()
					log.Info().
						Str("hash", e.Hash).
						Str("name", e.Name).
						Str("group", g.Key.String()).
						Str("filter", o.opts.Protect.String()).
						Msg("Keeping protected torrent")
					continue
				}
			}

			out = append(out, victim{entry: e, group: g.Key})
		}
	}
	return out
}

// deleteVictims removes victims in order. An in-flight request is allowed to
// finish after cancellation but no new one starts. It returns the hashes that
// were removed and whether the run stopped early.
func (o *Orchestrator) deleteVictims(ctx context.Context, victims []victim, res *Result, log zerolog.Logger) (map[string]struct{}, bool) {
	deleted := make(map[string]struct{})

	for i, v := range victims {
		entryLog := log.With().
			Str("hash", v.entry.Hash).
			Str("name", v.entry.Name).
			Str("group", v.group.String()).
			Logger()

		if err := o.wait(ctx); err != nil {
			o.skipRemaining(victims[i:], res, log, "Run cancelled, skipping remaining deletions")
			return deleted, true
		}

		_, err := o.remote.DeleteEntry(context.WithoutCancel(ctx), v.entry.Hash, o.opts.DeleteFiles)
		if err == nil {
			res.Deleted++
			deleted[v.entry.Hash] = struct{}{}
			metrics.DeletionsTotal.WithLabelValues("deleted").Inc()
			entryLog.Info().
				Bool("dry_run", false).
				Bool("delete_files", o.opts.DeleteFiles).
				Msg("Deleted duplicate torrent")
			continue
		}

		var rejected *qbittorrent.DeletionRejectedError
		if errors.As(err, &rejected) {
			res.Rejected++
			metrics.DeletionsTotal.WithLabelValues("rejected").Inc()
			entryLog.Warn().Err(err).Int("status", rejected.StatusCode).Msg("qBittorrent rejected deletion")
			continue
		}

		res.Failed++
		res.Err = err
		metrics.DeletionsTotal.WithLabelValues("failed").Inc()
		entryLog.Error().Err(err).Msg("Failed to delete torrent")
		o.skipRemaining(victims[i+1:], res, log, "Aborting run after delete failure")
		return deleted, true
	}
	return deleted, false
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

func (o *Orchestrator) skipRemaining(rest []victim, res *Result, log zerolog.Logger, msg string) {
	if len(rest) == 0 {
		return
	}
	res.Skipped += len(rest)
	metrics.DeletionsTotal.WithLabelValues("skipped").Add(float64(len(rest)))
	for _, v := range rest {
		log.Warn().
			Str("hash", v.entry.Hash).
			Str("name", v.entry.Name).
			Str("group", v.group.String()).
			Msg(msg)
	}
}

func outcomeFor(candidates int, res *Result, aborted bool) Outcome {
	switch {
	case res.Deleted == candidates:
		return OutcomeDeleted
	case res.Deleted > 0:
		return OutcomePartial
	case aborted:
		return OutcomeAborted
	default:
		return OutcomeFailed
	}
}

// survivorFingerprint is the fingerprint of the listing minus what was removed
func survivorFingerprint(entries []qbittorrent.Entry, deleted map[string]struct{}) string {
	ids := make([]string, 0, len(entries)-len(deleted))
	for _, e := range entries {
		if _, gone := deleted[e.Hash]; !gone {
			ids = append(ids, e.Hash)
		}
	}
	return dedup.Fingerprint(ids)
}

// Fingerprint returns the fingerprint recorded after the last run
func (o *Orchestrator) Fingerprint() (string, bool) {
	return o.tracker.Last()
}
