package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DeliveryStrategy determines behaviour when a subscriber's channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest removes the oldest queued event and enqueues the new one.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event when the channel is full.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
)

// topicDefaults sizes and polices the known topics. Decision and lifecycle
// events must not be lost, so they get deep buffers; the rest tolerate
// occasional drops under backpressure.
var topicDefaults = map[Topic]struct {
	buffer   int
	strategy DeliveryStrategy
}{
	TopicSessionsLifecycle:     {256, StrategyDropOldest},
	TopicConversationUtterance: {512, StrategyDropOldest},
	TopicConversationReply:     {256, StrategyDropOldest},
	TopicConversationSlot:      {128, StrategyDropOldest},
	TopicRefundDecision:        {512, StrategyDropOldest},
	TopicArtifactsSaved:        {64, StrategyDropNewest},
}

// Observer is notified of every published envelope. Implementations must be
// fast and non-blocking; they run on the publisher's goroutine.
type Observer interface {
	OnPublish(env Envelope)
}

// Bus orchestrates topic-based publish/subscribe messaging between the
// session manager, conversation engine, artifact sink and API server.
type Bus struct {
	logger    *log.Logger
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]*Subscription
	observers []Observer
	nextID    uint64

	publishTotal atomic.Uint64
	droppedTotal atomic.Uint64
}

// Metrics is a point-in-time snapshot of bus-level counters.
type Metrics struct {
	PublishTotal uint64
	DroppedTotal uint64
}

// Metrics returns the bus counters.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	return Metrics{
		PublishTotal: b.publishTotal.Load(),
		DroppedTotal: b.droppedTotal.Load(),
	}
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver registers an observer invoked on every publish.
func WithObserver(obs Observer) BusOption {
	return func(b *Bus) {
		if obs != nil {
			b.observers = append(b.observers, obs)
		}
	}
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	bus := &Bus{
		logger: log.Default(),
		subs:   make(map[Topic]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// publish sends the envelope to all subscribers of the topic.
func (b *Bus) publish(ctx context.Context, env Envelope) {
	if env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}
	b.publishTotal.Add(1)

	b.mu.RLock()
	observers := b.observers
	subs := b.subs[env.Topic]
	for _, sub := range subs {
		sub.deliver(ctx, env, b.logger)
	}
	b.mu.RUnlock()

	for _, obs := range observers {
		obs.OnPublish(env)
	}
}

// Subscribe registers a subscriber for the given topic. If b is nil the
// returned Subscription has a closed channel and Close is a no-op.
func (b *Bus) Subscribe(topic Topic, opts ...SubscriptionOption) *Subscription {
	if b == nil {
		ch := make(chan Envelope)
		close(ch)
		done := make(chan struct{})
		close(done)
		sub := &Subscription{ch: ch, done: done}
		sub.closed.Store(true)
		return sub
	}

	defaults := topicDefaults[topic]
	cfg := subscriptionConfig{
		bufferSize: defaults.buffer,
		strategy:   defaults.strategy,
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = 1
	}
	if cfg.strategy == "" {
		cfg.strategy = StrategyDropOldest
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := atomic.AddUint64(&b.nextID, 1)
	sub := &Subscription{
		topic:    topic,
		id:       id,
		name:     cfg.name,
		ch:       make(chan Envelope, cfg.bufferSize),
		done:     make(chan struct{}),
		bus:      b,
		strategy: cfg.strategy,
	}

	b.mu.Lock()
	if _, exists := b.subs[topic]; !exists {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][id] = sub
	b.mu.Unlock()

	return sub
}

// Shutdown closes all subscriptions and empties routing tables.
// If b is nil the call is a no-op.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subs {
		for id, sub := range subs {
			sub.closeLocked()
			delete(subs, id)
		}
		delete(b.subs, topic)
	}
}

// SubscriptionOption customises individual subscriptions.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	bufferSize int
	strategy   DeliveryStrategy
	name       string
}

// WithSubscriptionBuffer overrides the channel buffer for a subscription.
func WithSubscriptionBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSubscriptionName records a human friendly identifier used in logs.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// Subscription represents a consumer listening to a topic.
type Subscription struct {
	topic Topic
	id    uint64
	name  string
	ch    chan Envelope
	done  chan struct{} // closed when the subscription is closed

	bus      *Bus
	closed   atomic.Bool
	dropped  atomic.Uint64
	strategy DeliveryStrategy
}

// C exposes the event channel.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Dropped returns the number of events discarded for this subscription.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription and closes the channel.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	if s.bus == nil {
		close(s.ch)
		return
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subs[s.topic]; ok {
		delete(subs, s.id)
	}
	close(s.ch)
}

func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	close(s.ch)
}

func (s *Subscription) deliver(ctx context.Context, env Envelope, logger *log.Logger) {
	if s.closed.Load() {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	// Fast path: non-blocking send.
	select {
	case s.ch <- env:
		return
	default:
	}

	// Channel full, apply the subscription's strategy.
	if s.strategy == StrategyDropNewest {
		s.recordDrop(logger, "drop-newest")
		return
	}

	select {
	case <-s.ch:
		s.recordDrop(logger, "drop-oldest")
	default:
	}

	select {
	case s.ch <- env:
	default:
		s.recordDrop(logger, "drop-current")
	}
}

func (s *Subscription) recordDrop(logger *log.Logger, reason string) {
	count := s.dropped.Add(1)
	if s.bus != nil {
		s.bus.droppedTotal.Add(1)
	}
	if logger != nil {
		name := s.name
		if name == "" {
			name = "subscription"
		}
		logger.Printf("[EventBus] dropped event #%d for %s on topic %s (%s)", count, name, s.topic, reason)
	}
}
