// Package observability exposes daemon metrics: event bus counters, refund
// decision outcomes and session activity, rendered in Prometheus text
// exposition format by the HTTP API.
package observability

import (
	"sync"
	"sync/atomic"

	"github.com/refunda-ai/refunda/internal/eligibility"
	"github.com/refunda-ai/refunda/internal/eventbus"
)

// EventCounter counts published events grouped by topic and refund
// decisions grouped by status. Register it as a bus observer.
type EventCounter struct {
	counts sync.Map // map[eventbus.Topic]*atomic.Uint64

	decisionsApproved atomic.Uint64
	decisionsDenied   atomic.Uint64
	decisionsError    atomic.Uint64
}

// NewEventCounter creates a counter that can be registered as an event bus observer.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// OnPublish implements eventbus.Observer.
func (c *EventCounter) OnPublish(env eventbus.Envelope) {
	if env.Topic == "" {
		return
	}
	c.counterFor(env.Topic).Add(1)

	if evt, ok := env.Payload.(eventbus.DecisionEvent); ok {
		switch evt.Decision.Status {
		case eligibility.StatusApproved:
			c.decisionsApproved.Add(1)
		case eligibility.StatusDenied:
			c.decisionsDenied.Add(1)
		case eligibility.StatusError:
			c.decisionsError.Add(1)
		}
	}
}

// Snapshot exposes a stable copy of the current topic counts.
func (c *EventCounter) Snapshot() map[eventbus.Topic]uint64 {
	out := make(map[eventbus.Topic]uint64)
	c.counts.Range(func(key, value any) bool {
		topic, ok := key.(eventbus.Topic)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Uint64)
		if !ok || counter == nil {
			return true
		}
		out[topic] = counter.Load()
		return true
	})
	return out
}

// Decisions returns decision totals keyed by status.
func (c *EventCounter) Decisions() map[eligibility.Status]uint64 {
	return map[eligibility.Status]uint64{
		eligibility.StatusApproved: c.decisionsApproved.Load(),
		eligibility.StatusDenied:   c.decisionsDenied.Load(),
		eligibility.StatusError:    c.decisionsError.Load(),
	}
}

func (c *EventCounter) counterFor(topic eventbus.Topic) *atomic.Uint64 {
	if counter, ok := c.counts.Load(topic); ok {
		if typed, ok := counter.(*atomic.Uint64); ok && typed != nil {
			return typed
		}
	}
	newCounter := &atomic.Uint64{}
	actual, _ := c.counts.LoadOrStore(topic, newCounter)
	if typed, ok := actual.(*atomic.Uint64); ok && typed != nil {
		return typed
	}
	return newCounter
}
