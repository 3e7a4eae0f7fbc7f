package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "groupsync"

// Pass results.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultAborted   = "aborted"
)

// Host call results.
const (
	CallTrue           = "true"
	CallFalse          = "false"
	CallTransportError = "transport_error"
)

// Compensation results.
const (
	CompensationUndone     = "undone"
	CompensationUnresolved = "unresolved"
)

// CoordinatorMetrics counts what passes did to the cluster.
// A nil *CoordinatorMetrics is valid and records nothing.
type CoordinatorMetrics struct {
	Passes        *prometheus.CounterVec
	HostCalls     *prometheus.CounterVec
	Compensations *prometheus.CounterVec
}

// NewCoordinatorMetrics registers the coordinator counters with reg.
func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	f := promauto.With(reg)

	return &CoordinatorMetrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Cluster passes by phase and result.",
		}, []string{"phase", "result"}),
		HostCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_calls_total",
			Help:      "Node adapter calls by operation and result.",
		}, []string{"op", "result"}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensating calls by the phase being undone and result.",
		}, []string{"phase", "result"}),
	}
}

// ObservePass counts a finished pass. A nil receiver does nothing.
func (m *CoordinatorMetrics) ObservePass(phase, result string) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(phase, result).Inc()
}

// ObserveHostCall counts one node call by operation and result.
func (m *CoordinatorMetrics) ObserveHostCall(op, result string) {
	if m == nil {
		return
	}
	m.HostCalls.WithLabelValues(op, result).Inc()
}

// ObserveCompensation counts one compensating call by result.
func (m *CoordinatorMetrics) ObserveCompensation(phase, result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(phase, result).Inc()
}

// NodeMetrics counts requests served by a node.
// A nil *NodeMetrics is valid and records nothing.
type NodeMetrics struct {
	Requests *prometheus.CounterVec
	Groups   prometheus.Gauge
}

// NewNodeMetrics registers the node counters with reg.
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	f := promauto.With(reg)

	return &NodeMetrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "requests_total",
			Help:      "Group requests served by operation and status code.",
		}, []string{"op", "code"}),
		Groups: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "groups",
			Help:      "Groups currently stored on this node.",
		}),
	}
}

// ObserveRequest counts a node request by operation and status code.
func (m *NodeMetrics) ObserveRequest(op, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, code).Inc()
}

// SetGroups records how many groups the node holds.
func (m *NodeMetrics) SetGroups(n int) {
	if m == nil {
		return
	}
	m.Groups.Set(float64(n))
}
