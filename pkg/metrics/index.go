package metrics

import "time"

// IndexMetrics is the instrumentation surface a *pkg/mailindex.Index reports
// through. NewIndexMetrics returns nil when metrics are disabled; callers
// check for nil before reporting, so they pay no overhead.
type IndexMetrics interface {
	// SetMessageCounts reports the header's live/seen/deleted message counts.
	SetMessageCounts(mailbox string, messages, seen, deleted uint32)

	// ObserveLockWait records time spent blocked acquiring a lock.
	ObserveLockWait(mailbox string, state string, d time.Duration)

	// IncRecoveryStep counts one run of a named recovery step
	// (rebuild, fsck, compress, rebuild_hash, cache_fields, compress_data).
	IncRecoveryStep(mailbox string, step string)

	// IncCorruption counts a detected corruption event by kind
	// (hole_metadata, truncated_tail, missing_field).
	IncCorruption(mailbox string, kind string)
}

// NewIndexMetrics returns the Prometheus-backed IndexMetrics if metrics are
// enabled, or nil otherwise. The concrete constructor lives in
// pkg/metrics/prometheus and registers itself here to avoid an import cycle.
func NewIndexMetrics() IndexMetrics {
	if !IsEnabled() || newIndexMetrics == nil {
		return nil
	}
	return newIndexMetrics()
}

var newIndexMetrics func() IndexMetrics

// RegisterIndexMetricsConstructor installs the concrete IndexMetrics
// constructor. Called from pkg/metrics/prometheus's package init.
func RegisterIndexMetricsConstructor(constructor func() IndexMetrics) {
	newIndexMetrics = constructor
}
