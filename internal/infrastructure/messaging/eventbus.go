// Package messaging implements the domain event bus: an in-memory bus for one
// process and a Redis Pub/Sub bridge that fans events out to other instances.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ErrEventBusClosed is returned when publishing to a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	log         *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent async handlers.
	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 8,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 8
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		log:        config.Logger.With(logger.Component("eventbus")),
		metrics:    NewEventBusMetrics(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. Handler errors are
// logged, never returned to the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	if b.asyncMode {
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	for _, handler := range handlers {
		if b.asyncMode {
			go b.executeAsync(event, handler)
			continue
		}
		b.execute(event, handler)
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.workerPool <- struct{}{}:
		defer func() { <-b.workerPool }()
	case <-b.closeCh:
		return
	}
	b.execute(event, handler)
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := safeCall(handler, event)
	duration := time.Since(start)

	b.metrics.RecordHandlerExecution(event.EventType(), duration, err == nil)
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.Duration("duration", duration),
			logger.Err(err),
		)
	}
}

func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}

// Close stops accepting events and waits for running handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns the bus metrics.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the Pub/Sub surface the bridge needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan RedisMessage, error)
}

// RedisMessage is a message received from Redis Pub/Sub.
type RedisMessage struct {
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName is the Redis channel (default "lesson-hub:events").
	ChannelName string

	// InstanceID filters out self-published events.
	InstanceID string

	// Forward limits which remote event types are replayed locally.
	// Empty forwards everything.
	Forward []shared.EventType

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger
}

// RedisEventBus publishes locally and to Redis; events from other instances
// are replayed on the local bus as RemoteEvent values.
type RedisEventBus struct {
	client      RedisClient
	local       *InMemoryEventBus
	channelName string
	instanceID  string
	forward     map[shared.EventType]bool
	log         *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewRedisEventBus creates the bridge and starts listening.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "lesson-hub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisEventBus{
		client:      config.Client,
		local:       NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		log:         config.Logger.With(logger.Component("redis_eventbus")),
		ctx:         ctx,
		cancel:      cancel,
	}
	if len(config.Forward) > 0 {
		b.forward = make(map[shared.EventType]bool, len(config.Forward))
		for _, t := range config.Forward {
			b.forward[t] = true
		}
	}

	messages, err := b.client.Subscribe(ctx, b.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", b.channelName, err)
	}
	b.wg.Add(1)
	go b.listen(messages)

	return b, nil
}

// Subscribe registers a local handler.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a local handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

type wireEvent struct {
	InstanceID string               `json:"instance_id"`
	Envelope   shared.EventEnvelope `json:"envelope"`
}

// Publish delivers locally and forwards to Redis. A Redis failure is logged;
// local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := json.Marshal(wireEvent{InstanceID: b.instanceID, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channelName, data); err != nil {
		b.log.Warn("redis publish failed", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
	return b.local.Publish(event)
}

func (b *RedisEventBus) listen(messages <-chan RedisMessage) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.log.Warn("redis subscription error", logger.Err(msg.Err))
				continue
			}
			b.replay(msg.Payload)
		}
	}
}

func (b *RedisEventBus) replay(payload string) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		b.log.Warn("dropping malformed remote event", logger.Err(err))
		return
	}
	if w.InstanceID == b.instanceID {
		return
	}
	if b.forward != nil && !b.forward[w.Envelope.Type] {
		return
	}
	if err := b.local.Publish(NewRemoteEvent(w.Envelope)); err != nil {
		b.log.Warn("remote event not delivered", logger.Err(err))
	}
}

// Close stops the listener and the local bus.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.local.Close()
}

// Metrics returns the local bus metrics.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.local.Metrics()
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOTE EVENT
// ══════════════════════════════════════════════════════════════════════════════

// RemoteEvent is an event replayed from another instance.
type RemoteEvent struct {
	env     shared.EventEnvelope
	payload map[string]interface{}
}

// NewRemoteEvent rebuilds an event from its envelope.
func NewRemoteEvent(env shared.EventEnvelope) RemoteEvent {
	payload := map[string]interface{}{}
	_ = json.Unmarshal(env.Payload, &payload)
	return RemoteEvent{env: env, payload: payload}
}

func (e RemoteEvent) EventType() shared.EventType     { return e.env.Type }
func (e RemoteEvent) AggregateID() string             { return e.env.AggregateID }
func (e RemoteEvent) OccurredAt() time.Time           { return e.env.Timestamp }
func (e RemoteEvent) Payload() map[string]interface{} { return e.payload }
func (e RemoteEvent) Correlation() string             { return e.env.CorrelationID }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts published events and handler outcomes.
type EventBusMetrics struct {
	mu        sync.Mutex
	published map[shared.EventType]int64
	succeeded int64
	failed    int64
	totalTime time.Duration
}

// NewEventBusMetrics creates empty metrics.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{published: make(map[shared.EventType]int64)}
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(t shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[t]++
}

// RecordHandlerExecution counts one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(_ shared.EventType, d time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.succeeded++
	} else {
		m.failed++
	}
	m.totalTime += d
}

// EventBusMetricsSnapshot is a point-in-time copy.
type EventBusMetricsSnapshot struct {
	Published      int64         `json:"published"`
	HandlersOK     int64         `json:"handlers_ok"`
	HandlersFailed int64         `json:"handlers_failed"`
	AvgHandlerTime time.Duration `json:"avg_handler_time"`
}

// Snapshot returns a copy of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var published int64
	for _, n := range m.published {
		published += n
	}
	s := EventBusMetricsSnapshot{Published: published, HandlersOK: m.succeeded, HandlersFailed: m.failed}
	if runs := m.succeeded + m.failed; runs > 0 {
		s.AvgHandlerTime = m.totalTime / time.Duration(runs)
	}
	return s
}
