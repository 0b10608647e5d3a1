// Package metrics exposes Prometheus instrumentation for the ledger core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainledger_appends_total",
		Help: "Total ledger entries appended.",
	})

	ledgerAppendConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainledger_append_conflicts_total",
		Help: "Total compare-and-set conflicts during appends, including retried ones.",
	})

	chainVerifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainledger_chain_verify_failures_total",
		Help: "Total chain verification failures (indicates tampering).",
	})

	anchorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainledger_anchors_total",
		Help: "Total Merkle anchors persisted.",
	})

	anchoredEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainledger_anchored_entries",
		Help: "Entry count covered by the most recent anchor.",
	})

	policyRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainledger_policy_rejections_total",
		Help: "Total policy registry rejections by reason.",
	}, []string{"reason"})
)

// RecordAppend records a successful ledger append.
func RecordAppend() {
	ledgerAppendsTotal.Inc()
}

// RecordAppendConflict records a lost compare-and-set race.
func RecordAppendConflict() {
	ledgerAppendConflictsTotal.Inc()
}

// RecordVerifyFailure records a chain verification failure.
func RecordVerifyFailure() {
	chainVerifyFailuresTotal.Inc()
}

// RecordAnchor records a persisted anchor and the entry count it covers.
func RecordAnchor(entryCount int) {
	anchorsTotal.Inc()
	anchoredEntries.Set(float64(entryCount))
}

// RecordPolicyRejection records a policy registry rejection by reason.
func RecordPolicyRejection(reason string) {
	policyRejectionsTotal.WithLabelValues(reason).Inc()
}
