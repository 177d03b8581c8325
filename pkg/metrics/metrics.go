// Package metrics holds the Prometheus instruments of the settlement engine.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Match modes
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
	ModeMulti  = "multi"
)

// Match results
const (
	ResultSettled  = "settled"
	ResultRejected = "rejected"
	ResultReverted = "reverted"
)

var matchModes = map[string]struct{}{
	ModeSingle: {},
	ModeBatch:  {},
	ModeMulti:  {},
}

var matchResults = map[string]struct{}{
	ResultSettled:  {},
	ResultRejected: {},
	ResultReverted: {},
}

// Metrics holds Prometheus metrics for the settlement engine.
type Metrics struct {
	Matches           *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	Cancels           prometheus.Counter
	Transfers         *prometheus.CounterVec
	SettlementLatency prometheus.Histogram
	gatherer          prometheus.Gatherer
}

// New registers metrics with the provided registry. If registry is nil, a new
// isolated registry is created.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matches_total",
			Help: "Total match calls by mode and result.",
		}, []string{"mode", "result"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "match_state_transitions_total",
			Help: "Total match state transitions by target state.",
		}, []string{"state"}),
		Cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cancels_total",
			Help: "Total cancelled orders.",
		}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Total committed asset transfers by asset class.",
		}, []string{"class"}),
		SettlementLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_latency_seconds",
			Help:    "Settlement latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		gatherer: registry,
	}

	registry.MustRegister(
		m.Matches,
		m.StateTransitions,
		m.Cancels,
		m.Transfers,
		m.SettlementLatency,
	)
	return m
}

// IncMatch counts one match call
func (m *Metrics) IncMatch(mode, result string) error {
	if _, ok := matchModes[mode]; !ok {
		return fmt.Errorf("unknown match mode: %s", mode)
	}
	if _, ok := matchResults[result]; !ok {
		return fmt.Errorf("unknown match result: %s", result)
	}
	m.Matches.WithLabelValues(mode, result).Inc()
	return nil
}

// IncStateTransition counts a move into state
func (m *Metrics) IncStateTransition(state string) {
	m.StateTransitions.WithLabelValues(state).Inc()
}

// IncCancels counts cancelled orders
func (m *Metrics) IncCancels(n int) {
	m.Cancels.Add(float64(n))
}

// IncTransfer counts a committed transfer of an asset class
func (m *Metrics) IncTransfer(class string) {
	m.Transfers.WithLabelValues(class).Inc()
}

// ObserveSettlementLatency records settlement latency.
func (m *Metrics) ObserveSettlementLatency(d time.Duration) {
	m.SettlementLatency.Observe(d.Seconds())
}

// WriteTextfile dumps every metric to path in the text exposition format,
// for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.gatherer)
}
