package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/logger"
)

var testStation = domain.Station{ID: "primal-radio", Name: "Primal Radio", Medium: domain.MediumAudioStream}

func newBus() *SyncEventBus {
	return NewSyncEventBus(logger.NewTestLogger())
}

func TestNewSyncEventBus(t *testing.T) {
	bus := newBus()
	require.NotNil(t, bus)
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.False(t, bus.closed)
}

func TestPublishSubscribe(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var received []domain.Event
	subID := bus.Subscribe(domain.EventStationChanged, func(event domain.Event) {
		received = append(received, event)
	})
	require.NotEmpty(t, subID)

	bus.Publish(domain.NewStationChangedEvent(testStation))
	bus.Publish(domain.NewVolumeChangedEvent(40))

	require.Len(t, received, 1)
	changed, ok := received[0].(domain.StationChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "primal-radio", changed.Station.ID)
}

func TestPublishOrder(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var order []string
	record := func(name string) domain.EventHandler {
		return func(domain.Event) { order = append(order, name) }
	}

	bus.SubscribeAll(record("all"))
	bus.Subscribe(domain.EventMuteToggled, record("first"))
	second := bus.Subscribe(domain.EventMuteToggled, record("second"))
	bus.Subscribe(domain.EventMuteToggled, record("third"))

	bus.Publish(domain.NewMuteToggledEvent(true))
	assert.Equal(t, []string{"first", "second", "third", "all"}, order)

	order = nil
	bus.Unsubscribe(second)
	bus.Publish(domain.NewMuteToggledEvent(false))
	assert.Equal(t, []string{"first", "third", "all"}, order, "unsubscribe keeps the remaining order")
}

func TestUnsubscribe(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var calls int32
	id := bus.Subscribe(domain.EventPlaybackStarted, func(domain.Event) { atomic.AddInt32(&calls, 1) })

	bus.Publish(domain.NewPlaybackStartedEvent(testStation, "http://x"))
	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	bus.Publish(domain.NewPlaybackStartedEvent(testStation, "http://x"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnsubscribeAll(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var calls int32
	id := bus.SubscribeAll(func(domain.Event) { atomic.AddInt32(&calls, 1) })
	bus.Unsubscribe(id)
	bus.Publish(domain.NewMuteToggledEvent(true))

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestUnsubscribeInvalidID(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	assert.NotPanics(t, func() {
		bus.Unsubscribe("invalid-id")
		bus.Unsubscribe("")
	})
}

func TestHasSubscribers(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	assert.False(t, bus.HasSubscribers(domain.EventOutputError))

	bus.Subscribe(domain.EventOutputError, func(domain.Event) {})
	assert.True(t, bus.HasSubscribers(domain.EventOutputError))
	assert.False(t, bus.HasSubscribers(domain.EventPlaybackPaused))

	bus.SubscribeAll(func(domain.Event) {})
	assert.True(t, bus.HasSubscribers(domain.EventPlaybackPaused))
}

func TestHandlerPanic(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var calls int32
	bus.Subscribe(domain.EventVolumeChanged, func(domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventVolumeChanged, func(domain.Event) { atomic.AddInt32(&calls, 1) })

	assert.NotPanics(t, func() { bus.Publish(domain.NewVolumeChangedEvent(10)) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHandlerMayPublish(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var muted int32
	bus.Subscribe(domain.EventVolumeChanged, func(domain.Event) {
		bus.Publish(domain.NewMuteToggledEvent(true))
	})
	bus.Subscribe(domain.EventMuteToggled, func(domain.Event) { atomic.AddInt32(&muted, 1) })

	bus.Publish(domain.NewVolumeChangedEvent(0))
	assert.Equal(t, int32(1), atomic.LoadInt32(&muted))
}

func TestNilLogger(t *testing.T) {
	bus := NewSyncEventBus(nil)
	defer bus.Close()

	bus.Subscribe(domain.EventVolumeChanged, func(domain.Event) { panic("boom") })
	assert.NotPanics(t, func() { bus.Publish(domain.NewVolumeChangedEvent(10)) })
}

func TestClose(t *testing.T) {
	bus := newBus()
	var calls int32
	bus.Subscribe(domain.EventStationChanged, func(domain.Event) { atomic.AddInt32(&calls, 1) })
	bus.SubscribeAll(func(domain.Event) {})

	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(domain.NewStationChangedEvent(testStation))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	assert.Error(t, bus.Close())
	assert.Panics(t, func() { bus.Subscribe(domain.EventStationChanged, func(domain.Event) {}) })
}

func TestSubscribeNilHandler(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	assert.Panics(t, func() { bus.Subscribe(domain.EventStationChanged, nil) })
	assert.Panics(t, func() { bus.SubscribeAll(nil) })
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var count int32
	bus.Subscribe(domain.EventNowPlayingUpdated, func(domain.Event) { atomic.AddInt32(&count, 1) })

	const publishers = 8
	const perPublisher = 100

	var wg sync.WaitGroup
	wg.Add(publishers * 2)
	for i := 0; i < publishers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				bus.Publish(domain.NewNowPlayingUpdatedEvent(domain.MetadataResult{}))
			}
		}()
		go func() {
			defer wg.Done()
			id := bus.Subscribe(domain.EventMuteToggled, func(domain.Event) {})
			bus.Unsubscribe(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(publishers*perPublisher), atomic.LoadInt32(&count))
	assert.Equal(t, 1, bus.SubscriberCount())
}
