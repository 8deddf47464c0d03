package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventContentGenerated, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewContentRequestedEvent("lesson/a", "NST-1001", "NOTES")))
	require.NoError(t, bus.Publish(shared.NewContentGeneratedEvent("lesson/a", "NST-1001", "NOTES", time.Second, true)))

	assert.Equal(t, []shared.EventType{shared.EventContentGenerated}, typed)
	assert.Equal(t, []shared.EventType{shared.EventContentRequested, shared.EventContentGenerated}, all)
}

func TestInMemoryEventBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	assert.NoError(t, bus.Publish(shared.NewContentCacheHitEvent("lesson/a", "NST-1001")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Published)
	assert.Equal(t, int64(2), snap.HandlersFailed)
}

func TestInMemoryEventBus_AsyncCloseWaits(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewContentCacheHitEvent("lesson/a", "NST-1001")))
	}

	require.NoError(t, bus.Close())
	assert.Equal(t, int32(5), handled.Load())

	assert.ErrorIs(t, bus.Publish(shared.NewContentCacheHitEvent("lesson/a", "NST-1001")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventContentGenerated, nil))
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS BRIDGE
// ══════════════════════════════════════════════════════════════════════════════

// fakeBroker fans published messages out to every subscriber.
type fakeBroker struct {
	mu   sync.Mutex
	subs []chan RedisMessage
	fail bool
}

func (b *fakeBroker) Publish(_ context.Context, _ string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("connection refused")
	}
	for _, ch := range b.subs {
		ch <- RedisMessage{Payload: string(message)}
	}
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, _ string) (<-chan RedisMessage, error) {
	ch := make(chan RedisMessage, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, nil
}

func newBridge(t *testing.T, broker *fakeBroker, instance string) *RedisEventBus {
	t.Helper()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         broker,
		InstanceID:     instance,
		Forward:        []shared.EventType{shared.EventContentOverwritten},
		LocalBusConfig: InMemoryEventBusConfig{AsyncMode: false},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisEventBus_ForwardsToOtherInstances(t *testing.T) {
	broker := &fakeBroker{}
	a := newBridge(t, broker, "a")
	b := newBridge(t, broker, "b")

	var mu sync.Mutex
	var seenA, seenB []shared.Event
	require.NoError(t, a.SubscribeAll(func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seenA = append(seenA, e)
		return nil
	}))
	require.NoError(t, b.Subscribe(shared.EventContentOverwritten, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seenB = append(seenB, e)
		return nil
	}))

	ev := shared.WithCorrelation(shared.NewContentOverwrittenEvent("lesson/abc", "ADMIN", "Light"), "req-7")
	require.NoError(t, a.Publish(ev))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seenB) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// a sees its own event once, locally; the echo from redis is filtered.
	require.Len(t, seenA, 1)

	remote, ok := seenB[0].(RemoteEvent)
	require.True(t, ok)
	assert.Equal(t, "lesson/abc", remote.AggregateID())
	assert.Equal(t, "ADMIN", remote.Payload()["operator_id"])
	assert.Equal(t, "req-7", remote.Correlation())
}

func TestRedisEventBus_FiltersUnforwardedTypes(t *testing.T) {
	broker := &fakeBroker{}
	a := newBridge(t, broker, "a")
	b := newBridge(t, broker, "b")

	var got atomic.Int32
	require.NoError(t, b.SubscribeAll(func(shared.Event) error {
		got.Add(1)
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewContentCacheHitEvent("lesson/abc", "NST-1001")))
	require.NoError(t, a.Publish(shared.NewContentOverwrittenEvent("lesson/abc", "ADMIN", "Light")))

	require.Eventually(t, func() bool { return got.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), got.Load())
}

func TestRedisEventBus_PublishFailureStillDeliversLocally(t *testing.T) {
	broker := &fakeBroker{fail: true}
	a := newBridge(t, broker, "a")

	var got atomic.Int32
	require.NoError(t, a.SubscribeAll(func(shared.Event) error {
		got.Add(1)
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewContentCacheHitEvent("lesson/abc", "NST-1001")))
	assert.Equal(t, int32(1), got.Load())
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
