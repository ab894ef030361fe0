package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"servicenest/internal/models"

	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingAccepted  = "booking_accepted"
	EventBookingDeclined  = "booking_declined"
	EventBookingStarted   = "booking_started"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// TypeForStatus maps the status a booking entered to its event type.
func TypeForStatus(s models.Status) string {
	switch s {
	case models.StatusPending:
		return EventBookingCreated
	case models.StatusAccepted:
		return EventBookingAccepted
	case models.StatusDeclined:
		return EventBookingDeclined
	case models.StatusInProgress:
		return EventBookingStarted
	case models.StatusCompleted:
		return EventBookingCompleted
	case models.StatusCancelled:
		return EventBookingCancelled
	}
	return ""
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64         `json:"booking_id"`
	CustomerEmail string        `json:"customer_email"`
	Worker        string        `json:"worker,omitempty"`
	ServiceType   string        `json:"service_type"`
	ServiceDate   models.Date   `json:"service_date"`
	From          models.Status `json:"from,omitempty"`
	Status        models.Status `json:"status"`
	ChangedBy     string        `json:"changed_by,omitempty"`
}

// NewBookingPayload builds a payload for a booking that moved from the given status.
func NewBookingPayload(b models.Booking, from models.Status, actor models.Actor) BookingEventPayload {
	p := BookingEventPayload{
		BookingID:     b.ID,
		CustomerEmail: b.Customer.Email,
		Worker:        b.Worker,
		ServiceType:   b.ServiceType,
		ServiceDate:   b.ServiceDate,
		From:          from,
		Status:        b.Status,
	}
	if actor.ID != "" {
		p.ChangedBy = actor.String()
	}
	return p
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns their joined errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&ev)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
