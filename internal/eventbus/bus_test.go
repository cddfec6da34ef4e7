package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := bus.Subscribe(TopicConversationUtterance)
	defer sub.Close()

	Publish(context.Background(), bus, Conversation.Utterance, SourceServer, UtteranceEvent{
		SessionID: "s1",
		Text:      "hello",
	})

	select {
	case env := <-sub.C():
		if env.Topic != TopicConversationUtterance {
			t.Fatalf("unexpected topic: %s", env.Topic)
		}
		if env.Source != SourceServer {
			t.Fatalf("unexpected source: %s", env.Source)
		}
		if env.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
		payload, ok := env.Payload.(UtteranceEvent)
		if !ok || payload.Text != "hello" {
			t.Fatalf("unexpected payload: %+v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestTypedSubscriptionSkipsMismatchedPayloads(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := SubscribeTo(bus, Conversation.Reply)
	defer sub.Close()

	// Raw publish with the wrong payload type must be skipped by the bridge.
	bus.publish(context.Background(), Envelope{
		Topic:   TopicConversationReply,
		Source:  SourceConversation,
		Payload: "not a reply",
	})
	Publish(context.Background(), bus, Conversation.Reply, SourceConversation, ReplyEvent{
		SessionID: "s1",
		Text:      "what is your email?",
	})

	select {
	case env := <-sub.C():
		if env.Payload.Text != "what is your email?" {
			t.Fatalf("unexpected payload: %+v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for typed event")
	}
}

func TestNilBusIsNoOp(t *testing.T) {
	var bus *Bus

	Publish(context.Background(), bus, Sessions.Lifecycle, SourceSessionManager, SessionLifecycleEvent{})

	sub := bus.Subscribe(TopicSessionsLifecycle)
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel from nil bus")
	}
	sub.Close()

	typed := SubscribeTo(bus, Sessions.Lifecycle)
	if _, ok := <-typed.C(); ok {
		t.Fatal("expected closed typed channel from nil bus")
	}
	typed.Close()
}

func TestDropOldestKeepsNewestEvents(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := bus.Subscribe(TopicConversationUtterance, WithSubscriptionBuffer(1), WithSubscriptionName("slow_consumer"))
	defer sub.Close()

	for i := 0; i < 3; i++ {
		Publish(context.Background(), bus, Conversation.Utterance, SourceServer, UtteranceEvent{Sequence: uint64(i)})
	}

	env := <-sub.C()
	payload := env.Payload.(UtteranceEvent)
	if payload.Sequence != 2 {
		t.Fatalf("expected newest event to survive, got sequence %d", payload.Sequence)
	}
	if sub.Dropped() == 0 {
		t.Fatal("expected drops to be recorded")
	}
}

func TestDropNewestKeepsOldestEvents(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	sub := bus.Subscribe(TopicArtifactsSaved, WithSubscriptionBuffer(1))
	defer sub.Close()

	for i := 0; i < 3; i++ {
		Publish(context.Background(), bus, Artifacts.Saved, SourceArtifacts, ArtifactSavedEvent{Kind: "decision", Path: string(rune('a' + i))})
	}

	env := <-sub.C()
	payload := env.Payload.(ArtifactSavedEvent)
	if payload.Path != "a" {
		t.Fatalf("expected oldest event to survive, got %s", payload.Path)
	}
}

type countingObserver struct {
	seen []Topic
}

func (o *countingObserver) OnPublish(env Envelope) {
	o.seen = append(o.seen, env.Topic)
}

func TestObserverSeesEveryPublish(t *testing.T) {
	obs := &countingObserver{}
	bus := New(WithObserver(obs))
	defer bus.Shutdown()

	Publish(context.Background(), bus, Sessions.Lifecycle, SourceSessionManager, SessionLifecycleEvent{SessionID: "s"})
	Publish(context.Background(), bus, Refund.Decision, SourceConversation, DecisionEvent{SessionID: "s"})

	if len(obs.seen) != 2 {
		t.Fatalf("expected 2 observed events, got %d", len(obs.seen))
	}
	if obs.seen[0] != TopicSessionsLifecycle || obs.seen[1] != TopicRefundDecision {
		t.Fatalf("unexpected observed topics: %v", obs.seen)
	}
}

func TestShutdownClosesSubscriptions(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicRefundDecision)

	bus.Shutdown()

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected channel closed after shutdown")
	}
}

func TestSerializeTranscript(t *testing.T) {
	lines := []TranscriptLine{
		{Speaker: SpeakerAgent, Text: "What's the email on your account?"},
		{Speaker: SpeakerUser, Text: "a@b.com"},
	}
	got := SerializeTranscript(lines)
	want := "Agent: What's the email on your account?\nUser: a@b.com"
	if got != want {
		t.Fatalf("unexpected transcript:\n%s", got)
	}
}
