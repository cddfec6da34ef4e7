package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLifecycleStopClosesSubscriptions(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	a := bus.Subscribe(TopicConversationUtterance)
	b := SubscribeTo(bus, Sessions.Lifecycle)

	var lifecycle ServiceLifecycle
	lifecycle.Start(context.Background())
	lifecycle.AddSubscriptions(a, b, nil)
	var nilTyped *TypedSubscription[SessionLifecycleEvent]
	lifecycle.AddSubscriptions(nilTyped)

	lifecycle.Stop()

	if _, ok := <-a.C(); ok {
		t.Fatal("expected raw subscription closed")
	}
	if _, ok := <-b.C(); ok {
		t.Fatal("expected typed subscription closed")
	}
}

func TestServiceLifecycleRunsAndStopsWorkers(t *testing.T) {
	bus := New()
	defer bus.Shutdown()

	var lifecycle ServiceLifecycle
	lifecycle.Start(context.Background())

	sub := SubscribeTo(bus, Conversation.Utterance)
	lifecycle.AddSubscriptions(sub)

	var handled atomic.Int64
	lifecycle.Go(func(ctx context.Context) {
		Consume(ctx, sub, func(UtteranceEvent) {
			handled.Add(1)
		})
	})

	Publish(context.Background(), bus, Conversation.Utterance, SourceServer, UtteranceEvent{Text: "hi"})

	deadline := time.Now().Add(time.Second)
	for handled.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for consumer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestLifecycleWaitHonoursContext(t *testing.T) {
	var lifecycle ServiceLifecycle
	lifecycle.Start(context.Background())

	block := make(chan struct{})
	lifecycle.Go(func(ctx context.Context) {
		<-block
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := lifecycle.Wait(ctx); err == nil {
		t.Fatal("expected context deadline error while worker blocked")
	}

	close(block)
	if err := lifecycle.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown after unblock: %v", err)
	}
}
