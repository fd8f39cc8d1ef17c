// Package metrics exposes Prometheus collectors for a posture run.
//
// Metrics:
//   - posture_policy_decisions_total: admission decisions by category, decision and rule
//   - posture_ledger_entries_total: ledger entries by category and success
//   - posture_ledger_bytes_total: bytes recorded in the ledger by category and direction
//   - posture_http_attempt_duration_seconds: duration of HTTP attempts that reached the transport
//
// A run has no long-lived listener, so collectors are dumped once at the end of the run in
// the Prometheus text format (node_exporter textfile collector compatible).
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
)

const namespace = "posture"

// Metrics implements netpolicy.Observer, ledger.Observer and httpclient.AttemptObserver.
type Metrics struct {
	decisions    *prometheus.CounterVec
	entries      *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_decisions_total",
				Help:      "Network policy admission decisions.",
			},
			[]string{"category", "decision", "rule"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_entries_total",
				Help:      "Ledger entries recorded.",
			},
			[]string{"category", "success"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_bytes_total",
				Help:      "Bytes recorded in the ledger.",
			},
			[]string{"category", "direction"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_attempt_duration_seconds",
				Help:      "Duration of HTTP attempts that reached the transport.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"category"},
		),
	}
	for _, c := range []prometheus.Collector{m.decisions, m.entries, m.bytes, m.httpDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveDecision implements netpolicy.Observer.
func (m *Metrics) ObserveDecision(category netpolicy.Category, allowed bool, rule netpolicy.Rule) {
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	m.decisions.WithLabelValues(string(category), decision, string(rule)).Inc()
}

// ObserveEntry implements ledger.Observer.
func (m *Metrics) ObserveEntry(e ledger.Entry) {
	cat := string(e.Category)
	m.entries.WithLabelValues(cat, strconv.FormatBool(e.Success)).Inc()
	if e.BytesOut > 0 {
		m.bytes.WithLabelValues(cat, "out").Add(float64(e.BytesOut))
	}
	if e.BytesIn > 0 {
		m.bytes.WithLabelValues(cat, "in").Add(float64(e.BytesIn))
	}
}

// ObserveAttempt implements httpclient.AttemptObserver.
func (m *Metrics) ObserveAttempt(category netpolicy.Category, d time.Duration) {
	m.httpDuration.WithLabelValues(string(category)).Observe(d.Seconds())
}

// WriteTextFile writes every metric gathered from g to path in the Prometheus text format.
func WriteTextFile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}
