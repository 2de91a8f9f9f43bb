// Package prometheus implements pkg/metrics's IndexMetrics interface with
// client_golang collectors registered against the active metrics registry.
package prometheus

import (
	"time"

	"github.com/marmos91/mailidx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterIndexMetricsConstructor(func() metrics.IndexMetrics {
		return newIndexMetrics()
	})
}

type indexMetrics struct {
	messagesCount        *prometheus.GaugeVec
	seenMessagesCount    *prometheus.GaugeVec
	deletedMessagesCount *prometheus.GaugeVec
	lockWaitSeconds      *prometheus.HistogramVec
	recoveryStepsTotal   *prometheus.CounterVec
	corruptionTotal      *prometheus.CounterVec
}

func newIndexMetrics() *indexMetrics {
	reg := metrics.GetRegistry()

	return &indexMetrics{
		messagesCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailidx_messages_count",
				Help: "Number of live records in the index",
			},
			[]string{"mailbox"},
		),
		seenMessagesCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailidx_seen_messages_count",
				Help: "Number of live records with the SEEN flag set",
			},
			[]string{"mailbox"},
		),
		deletedMessagesCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailidx_deleted_messages_count",
				Help: "Number of live records with the DELETED flag set",
			},
			[]string{"mailbox"},
		),
		lockWaitSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mailidx_lock_wait_seconds",
				Help: "Time spent blocked acquiring the index lock, by target state",
				Buckets: []float64{
					0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
				},
			},
			[]string{"mailbox", "state"},
		),
		recoveryStepsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailidx_recovery_steps_total",
				Help: "Recovery driver steps run on open, by step name",
			},
			[]string{"mailbox", "step"},
		),
		corruptionTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailidx_corruption_events_total",
				Help: "Corruption events detected, by kind",
			},
			[]string{"mailbox", "kind"},
		),
	}
}

func (m *indexMetrics) SetMessageCounts(mailbox string, messages, seen, deleted uint32) {
	if m == nil {
		return
	}
	m.messagesCount.WithLabelValues(mailbox).Set(float64(messages))
	m.seenMessagesCount.WithLabelValues(mailbox).Set(float64(seen))
	m.deletedMessagesCount.WithLabelValues(mailbox).Set(float64(deleted))
}

func (m *indexMetrics) ObserveLockWait(mailbox string, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.WithLabelValues(mailbox, state).Observe(d.Seconds())
}

func (m *indexMetrics) IncRecoveryStep(mailbox string, step string) {
	if m == nil {
		return
	}
	m.recoveryStepsTotal.WithLabelValues(mailbox, step).Inc()
}

func (m *indexMetrics) IncCorruption(mailbox string, kind string) {
	if m == nil {
		return
	}
	m.corruptionTotal.WithLabelValues(mailbox, kind).Inc()
}

// Ensure indexMetrics implements metrics.IndexMetrics.
var _ metrics.IndexMetrics = (*indexMetrics)(nil)
