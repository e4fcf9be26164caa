package server

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

const decisionBadRequest = "bad_request"

// Metrics counts requests and redirect decisions for Prometheus export.
type Metrics struct {
	requestsTotal  atomic.Int64
	decisionsTotal map[string]*atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		decisionsTotal: map[string]*atomic.Int64{
			"redirect":         {},
			"canonical":        {},
			"nomatch":          {},
			"out_of_scope":     {},
			decisionBadRequest: {},
		},
	}
}

func (m *Metrics) IncrementRequests() {
	m.requestsTotal.Add(1)
}

// IncrementDecision counts one decision. Unknown names are ignored, the set
// of counters is fixed at construction.
func (m *Metrics) IncrementDecision(decision string) {
	if counter, ok := m.decisionsTotal[decision]; ok {
		counter.Add(1)
	}
}

func (m *Metrics) RequestsTotal() int64 {
	return m.requestsTotal.Load()
}

func (m *Metrics) DecisionsTotal() map[string]int64 {
	result := make(map[string]int64, len(m.decisionsTotal))
	for k, v := range m.decisionsTotal {
		result[k] = v.Load()
	}
	return result
}

// Prometheus returns metrics in Prometheus text format.
func (m *Metrics) Prometheus() string {
	var sb strings.Builder

	sb.WriteString("# HELP asinshort_requests_total Total number of redirect requests\n")
	sb.WriteString("# TYPE asinshort_requests_total counter\n")
	fmt.Fprintf(&sb, "asinshort_requests_total %d\n", m.requestsTotal.Load())
	sb.WriteString("\n")

	sb.WriteString("# HELP asinshort_decisions_total Total decisions by outcome\n")
	sb.WriteString("# TYPE asinshort_decisions_total counter\n")
	names := make([]string, 0, len(m.decisionsTotal))
	for k := range m.decisionsTotal {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, decision := range names {
		fmt.Fprintf(&sb, "asinshort_decisions_total{decision=%q} %d\n", decision, m.decisionsTotal[decision].Load())
	}
	return sb.String()
}
