package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var first, second []Event
	bus.Subscribe(TopicError, func(ev Event) { first = append(first, ev) })
	bus.Subscribe(TopicError, func(ev Event) { second = append(second, ev) })
	bus.Subscribe(TopicConnection, func(ev Event) { t.Error("wrong topic delivered") })

	bus.Publish(Event{Topic: TopicError, Error: &ErrorEvent{Code: "CONNECTION_ERROR"}})

	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
	assert.Equal(t, "CONNECTION_ERROR", first[0].Error.Code)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []Event
	unsubscribe := bus.Subscribe(TopicAdminMessage, func(ev Event) { got = append(got, ev) })

	bus.Publish(Event{Topic: TopicAdminMessage})
	unsubscribe()
	bus.Publish(Event{Topic: TopicAdminMessage})

	assert.Len(t, got, 1)
}

func TestBusHandlerPanicIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var delivered int
	bus.Subscribe(TopicError, func(Event) { panic("boom") })
	bus.Subscribe(TopicError, func(Event) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Publish(Event{Topic: TopicError})
	})
	assert.Equal(t, 1, delivered)
}
