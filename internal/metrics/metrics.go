// Package metrics exposes Prometheus counters for the vault gate.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GateRecorder is the metrics surface used by the vault gate and item service
type GateRecorder interface {
	RecordVerification(outcome string, operational bool)
	RecordVerifyLatency(duration time.Duration)
	RecordLockout()
	RecordLedgerWriteFailure()
	RecordItemAccess(action string)
	RecordRetentionPruned(rows int64)
}

// Collector is the Prometheus implementation of GateRecorder
type Collector struct {
	verifications  *prometheus.CounterVec
	verifyLatency  prometheus.Histogram
	lockouts       prometheus.Counter
	ledgerFailures prometheus.Counter
	itemAccess     *prometheus.CounterVec
	retentionRows  prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultgate_verifications_total",
			Help: "Vault verifications by outcome; kind=operational marks service-side failures",
		}, []string{"outcome", "kind"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultgate_verify_duration_seconds",
			Help:    "Vault verification latency including the failure delay",
			Buckets: prometheus.DefBuckets,
		}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultgate_lockouts_total",
			Help: "Times a failed comparison brought a user to the lockout threshold",
		}),
		ledgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultgate_ledger_write_failures_total",
			Help: "Attempt records that could not be written after a comparison",
		}),
		itemAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultgate_item_access_total",
			Help: "Vault item operations served behind a valid grant",
		}, []string{"action"}),
		retentionRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vaultgate_retention_pruned_rows_total",
			Help: "Ledger rows removed by the retention job",
		}),
	}

	reg.MustRegister(
		c.verifications,
		c.verifyLatency,
		c.lockouts,
		c.ledgerFailures,
		c.itemAccess,
		c.retentionRows,
	)

	return c
}

func (c *Collector) RecordVerification(outcome string, operational bool) {
	kind := "caller"
	if operational {
		kind = "operational"
	}
	c.verifications.WithLabelValues(outcome, kind).Inc()
}

func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordLockout() {
	c.lockouts.Inc()
}

func (c *Collector) RecordLedgerWriteFailure() {
	c.ledgerFailures.Inc()
}

func (c *Collector) RecordItemAccess(action string) {
	c.itemAccess.WithLabelValues(action).Inc()
}

func (c *Collector) RecordRetentionPruned(rows int64) {
	c.retentionRows.Add(float64(rows))
}

// Nop discards all measurements
type Nop struct{}

func (Nop) RecordVerification(string, bool)   {}
func (Nop) RecordVerifyLatency(time.Duration) {}
func (Nop) RecordLockout()                    {}
func (Nop) RecordLedgerWriteFailure()         {}
func (Nop) RecordItemAccess(string)           {}
func (Nop) RecordRetentionPruned(int64)       {}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
