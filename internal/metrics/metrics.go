package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnknownEntityType labels operations that failed before the entity type was
// resolved, keeping caller input out of label values.
const UnknownEntityType = "unknown"

// Trash holds the trash engine's collectors. A nil *Trash is valid and
// records nothing.
type Trash struct {
	softDeletesTotal *prometheus.CounterVec
	restoresTotal    *prometheus.CounterVec
	hardDeletesTotal *prometheus.CounterVec
	purgeRunsTotal   *prometheus.CounterVec
	purgedTotal      prometheus.Counter
	purgeLastDeleted prometheus.Gauge
	purgeLastRunUnix prometheus.Gauge
	purgeDuration    prometheus.Histogram
}

// NewTrash registers the collectors with reg. A nil reg uses the default
// registerer.
func NewTrash(reg prometheus.Registerer) *Trash {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Trash{
		softDeletesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "soft_deletes_total",
				Help:      "Soft deletes partitioned by entity type and result.",
			},
			[]string{"entity_type", "result"},
		),
		restoresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "restores_total",
				Help:      "Restores partitioned by entity type and result.",
			},
			[]string{"entity_type", "result"},
		),
		hardDeletesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "hard_deletes_total",
				Help:      "Explicit permanent deletions partitioned by result.",
			},
			[]string{"result"},
		),
		purgeRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "purge_runs_total",
				Help:      "Purge sweeps partitioned by result.",
			},
			[]string{"result"},
		),
		purgedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "purged_total",
				Help:      "Total trash entries removed by purge sweeps.",
			},
		),
		purgeLastDeleted: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "purge_last_deleted",
				Help:      "Entries removed by the most recent purge sweep.",
			},
		),
		purgeLastRunUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "purge_last_run_unix",
				Help:      "Unix time of the most recent purge sweep.",
			},
		),
		purgeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "clinic",
				Subsystem: "trash",
				Name:      "purge_duration_seconds",
				Help:      "Duration of purge sweeps.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (m *Trash) ObserveSoftDelete(entityType string, err error) {
	if m == nil {
		return
	}
	m.softDeletesTotal.WithLabelValues(entityType, result(err)).Inc()
}

func (m *Trash) ObserveRestore(entityType string, err error) {
	if m == nil {
		return
	}
	m.restoresTotal.WithLabelValues(entityType, result(err)).Inc()
}

func (m *Trash) ObserveHardDelete(err error) {
	if m == nil {
		return
	}
	m.hardDeletesTotal.WithLabelValues(result(err)).Inc()
}

func (m *Trash) ObservePurge(deleted int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.purgeLastRunUnix.Set(float64(time.Now().UTC().Unix()))
	m.purgeLastDeleted.Set(float64(deleted))
	m.purgeDuration.Observe(elapsed.Seconds())
	if deleted > 0 {
		m.purgedTotal.Add(float64(deleted))
	}
	m.purgeRunsTotal.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
