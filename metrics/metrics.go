package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qbitdedup"

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Total reconciliation runs by outcome.",
	}, []string{"outcome"})

	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	TorrentsSeen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "torrents",
		Help:      "Number of torrents in the last successful listing.",
	})

	DuplicateGroups = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duplicate_groups",
		Help:      "Number of groups with more than one torrent in the last listing.",
	})

	VictimsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "victims_total",
		Help:      "Total torrents selected for removal.",
	})

	DeletionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletions_total",
		Help:      "Total deletion decisions by result (deleted, rejected, failed, dry_run, protected, skipped).",
	}, []string{"result"})

	FiresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fires_total",
		Help:      "Total reconciliation signals by source.",
	}, []string{"source"})

	FiresCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fires_coalesced_total",
		Help:      "Signals merged into an already pending signal.",
	})

	TriggerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trigger_state",
		Help:      "Current trigger state (0 idle, 1 connecting, 2 connected, 3 reconnecting, 4 fallback).",
	})

	ChannelErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_errors_total",
		Help:      "Total push channel connection failures and drops.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RunsTotal,
		RunDuration,
		TorrentsSeen,
		DuplicateGroups,
		VictimsTotal,
		DeletionsTotal,
		FiresTotal,
		FiresCoalesced,
		TriggerState,
		ChannelErrorsTotal,
	)
}
