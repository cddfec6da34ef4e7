package observability

import (
	"strings"
	"testing"

	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
)

func TestEventCounterCountsTopicsAndDecisions(t *testing.T) {
	counter := NewEventCounter()

	counter.OnPublish(eventbus.Envelope{Topic: eventbus.TopicConversationUtterance})
	counter.OnPublish(eventbus.Envelope{Topic: eventbus.TopicConversationUtterance})
	counter.OnPublish(eventbus.Envelope{
		Topic: eventbus.TopicRefundDecision,
		Payload: eventbus.DecisionEvent{
			Decision: eligibility.Decision{Status: eligibility.StatusApproved},
		},
	})
	counter.OnPublish(eventbus.Envelope{
		Topic: eventbus.TopicRefundDecision,
		Payload: eventbus.DecisionEvent{
			Decision: eligibility.Decision{Status: eligibility.StatusError},
		},
	})
	counter.OnPublish(eventbus.Envelope{Topic: ""}) // ignored

	counts := counter.Snapshot()
	if counts[eventbus.TopicConversationUtterance] != 2 {
		t.Fatalf("utterance count = %d, want 2", counts[eventbus.TopicConversationUtterance])
	}
	if counts[eventbus.TopicRefundDecision] != 2 {
		t.Fatalf("decision count = %d, want 2", counts[eventbus.TopicRefundDecision])
	}

	decisions := counter.Decisions()
	if decisions[eligibility.StatusApproved] != 1 || decisions[eligibility.StatusDenied] != 0 || decisions[eligibility.StatusError] != 1 {
		t.Fatalf("decisions = %v", decisions)
	}
}

type fakeSessionCounts struct{ running, total int }

func (f fakeSessionCounts) SessionCounts() (int, int) { return f.running, f.total }

func TestPrometheusExport(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	counter := NewEventCounter()
	counter.OnPublish(eventbus.Envelope{Topic: eventbus.TopicConversationReply})
	counter.OnPublish(eventbus.Envelope{
		Topic: eventbus.TopicRefundDecision,
		Payload: eventbus.DecisionEvent{
			Decision: eligibility.Decision{Status: eligibility.StatusDenied},
		},
	})

	exporter := NewPrometheusExporter(bus, counter)
	exporter.WithSessions(fakeSessionCounts{running: 1, total: 3})

	output := string(exporter.Export())

	for _, line := range []string{
		`refunda_eventbus_events_total{topic="conversation.reply"} 1`,
		`refunda_eventbus_publish_total 0`,
		`refunda_eventbus_dropped_total 0`,
		`refunda_decisions_total{status="denied"} 1`,
		`refunda_decisions_total{status="approved"} 0`,
		`refunda_sessions_running 1`,
		`refunda_sessions_total 3`,
	} {
		if !strings.Contains(output, line) {
			t.Fatalf("export missing %q:\n%s", line, output)
		}
	}
}

func TestPrometheusExportEmpty(t *testing.T) {
	exporter := NewPrometheusExporter(nil, nil)
	if output := exporter.Export(); len(output) != 0 {
		t.Fatalf("expected empty export, got %q", output)
	}
}
