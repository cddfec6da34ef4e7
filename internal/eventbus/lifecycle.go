package eventbus

import (
	"context"
	"reflect"
	"sync"
)

// SubscriptionCloser is the minimal contract required to close a subscription.
type SubscriptionCloser interface {
	Close()
}

// ServiceLifecycle bundles the plumbing shared by bus-driven services like
// the artifact sink: a cancelable service context, the subscriptions the
// service holds, and the worker goroutines draining them. Stop closes the
// subscriptions so Consume loops fall out of their channel reads, then Wait
// gives the workers a bounded window to finish.
type ServiceLifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closers []SubscriptionCloser

	wg sync.WaitGroup
}

// Start derives the service context from the parent context.
func (l *ServiceLifecycle) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
}

// Context returns the active service context.
func (l *ServiceLifecycle) Context() context.Context {
	return l.ctx
}

// AddSubscriptions registers subscriptions to close on Stop. Nil values,
// including typed nil pointers, are ignored.
func (l *ServiceLifecycle) AddSubscriptions(subs ...SubscriptionCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range subs {
		if closeable(sub) {
			l.closers = append(l.closers, sub)
		}
	}
}

func closeable(sub SubscriptionCloser) bool {
	if sub == nil {
		return false
	}
	v := reflect.ValueOf(sub)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return !v.IsNil()
	default:
		return true
	}
}

// Go runs a worker goroutine on the service context, tracked for Wait.
func (l *ServiceLifecycle) Go(worker func(ctx context.Context)) {
	if worker == nil {
		return
	}
	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()
		worker(ctx)
	}(l.ctx)
}

// Stop cancels the service context and closes registered subscriptions.
func (l *ServiceLifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}

	l.mu.Lock()
	closers := l.closers
	l.closers = nil
	l.mu.Unlock()

	for _, sub := range closers {
		sub.Close()
	}
}

// Wait blocks until every worker returned, or until ctx expires.
func (l *ServiceLifecycle) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the lifecycle and waits for its workers.
func (l *ServiceLifecycle) Shutdown(ctx context.Context) error {
	l.Stop()
	return l.Wait(ctx)
}

// Consume drains typed events from sub into handler until the context ends
// or the subscription closes. Meant to run inside a lifecycle worker so a
// Stop unblocks it through either path.
func Consume[T any](ctx context.Context, sub *TypedSubscription[T], handler func(T)) {
	if sub == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			handler(env.Payload)
		}
	}
}
