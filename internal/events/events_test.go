package events

import (
	"encoding/json"
	"errors"
	"testing"

	"servicenest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int
	bus.Subscribe(EventBookingAccepted, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	b := models.Booking{ID: 7, Customer: models.Customer{Email: "asha@example.com"}, Worker: "alice", Status: models.StatusAccepted}
	err := bus.PublishJSON(EventBookingAccepted, NewBookingPayload(b, models.StatusPending, models.WorkerActor("alice")))
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventBookingAccepted, received.Type)
	assert.NotEmpty(t, received.ID)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, int64(7), decoded.BookingID)
	assert.Equal(t, models.StatusPending, decoded.From)
	assert.Equal(t, models.StatusAccepted, decoded.Status)
	assert.Equal(t, "worker:alice", decoded.ChangedBy)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2, countAll int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.Subscribe(AllEvents, func(_ *Event) error { countAll++; return nil })

	require.NoError(t, bus.Publish(&Event{Type: "event"}))
	require.NoError(t, bus.Publish(&Event{Type: "other"}))

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
	assert.Equal(t, 2, countAll)
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")
	called := false

	bus.Subscribe("event", func(_ *Event) error { return boom })
	bus.Subscribe("event", func(_ *Event) error { called = true; return nil })

	err := bus.Publish(&Event{Type: "event"})
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later handlers still run")
}

func TestEventBusNilAndNoSubscribers(t *testing.T) {
	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON("x", map[string]string{}))

	bus := NewEventBus()
	assert.NoError(t, bus.PublishJSON("nobody_listens", map[string]int{"a": 1}))

	_, err := NewJSONEvent("bad", make(chan int))
	assert.Error(t, err)
}

func TestTypeForStatus(t *testing.T) {
	for _, s := range models.AllStatuses {
		assert.NotEmpty(t, TypeForStatus(s), s)
	}
	assert.Empty(t, TypeForStatus("unknown"))
}
