package observability

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
)

// SessionCountsProvider exposes session activity for the gauge metrics.
type SessionCountsProvider interface {
	SessionCounts() (running, total int)
}

// PrometheusExporter renders daemon metrics in Prometheus text format.
type PrometheusExporter struct {
	bus      *eventbus.Bus
	counter  *EventCounter
	sessions SessionCountsProvider
}

// NewPrometheusExporter constructs an exporter backed by the provided bus
// and event counter.
func NewPrometheusExporter(bus *eventbus.Bus, counter *EventCounter) *PrometheusExporter {
	return &PrometheusExporter{bus: bus, counter: counter}
}

// WithSessions enables exporting session gauges.
func (e *PrometheusExporter) WithSessions(provider SessionCountsProvider) {
	e.sessions = provider
}

// Export produces the metrics payload in Prometheus' text exposition format.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer

	e.writeEventCounters(&buf)
	e.writeBusMetrics(&buf)
	e.writeDecisionMetrics(&buf)
	e.writeSessionMetrics(&buf)

	return buf.Bytes()
}

func (e *PrometheusExporter) writeEventCounters(buf *bytes.Buffer) {
	if e.counter == nil {
		return
	}

	counts := e.counter.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("# HELP refunda_eventbus_events_total Total number of published events per topic.\n")
	buf.WriteString("# TYPE refunda_eventbus_events_total counter\n")

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, string(topic))
	}
	sort.Strings(topics)
	for _, topicName := range topics {
		value := counts[eventbus.Topic(topicName)]
		buf.WriteString(fmt.Sprintf("refunda_eventbus_events_total{topic=%q} %d\n", topicName, value))
	}
}

func (e *PrometheusExporter) writeBusMetrics(buf *bytes.Buffer) {
	if e.bus == nil {
		return
	}

	metrics := e.bus.Metrics()

	buf.WriteString("# HELP refunda_eventbus_publish_total Total number of events published on the bus.\n")
	buf.WriteString("# TYPE refunda_eventbus_publish_total counter\n")
	buf.WriteString(fmt.Sprintf("refunda_eventbus_publish_total %d\n", metrics.PublishTotal))

	buf.WriteString("# HELP refunda_eventbus_dropped_total Total number of events dropped by the bus.\n")
	buf.WriteString("# TYPE refunda_eventbus_dropped_total counter\n")
	buf.WriteString(fmt.Sprintf("refunda_eventbus_dropped_total %d\n", metrics.DroppedTotal))
}

func (e *PrometheusExporter) writeDecisionMetrics(buf *bytes.Buffer) {
	if e.counter == nil {
		return
	}

	decisions := e.counter.Decisions()

	buf.WriteString("# HELP refunda_decisions_total Total number of refund decisions per status.\n")
	buf.WriteString("# TYPE refunda_decisions_total counter\n")
	for _, status := range []eligibility.Status{eligibility.StatusApproved, eligibility.StatusDenied, eligibility.StatusError} {
		buf.WriteString(fmt.Sprintf("refunda_decisions_total{status=%q} %d\n", string(status), decisions[status]))
	}
}

func (e *PrometheusExporter) writeSessionMetrics(buf *bytes.Buffer) {
	if e.sessions == nil {
		return
	}

	running, total := e.sessions.SessionCounts()

	buf.WriteString("# HELP refunda_sessions_running Number of sessions currently collecting slots.\n")
	buf.WriteString("# TYPE refunda_sessions_running gauge\n")
	buf.WriteString(fmt.Sprintf("refunda_sessions_running %d\n", running))

	buf.WriteString("# HELP refunda_sessions_total Number of sessions known to the daemon.\n")
	buf.WriteString("# TYPE refunda_sessions_total gauge\n")
	buf.WriteString(fmt.Sprintf("refunda_sessions_total %d\n", total))
}
