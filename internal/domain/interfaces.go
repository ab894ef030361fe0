package domain

import (
	"context"
	"time"

	"servicenest/internal/models"
)

// BookingRepository is the persistence contract of the booking API.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetCustomerBookings(ctx context.Context, email string) ([]models.Booking, error)
	GetWorkerBookings(ctx context.Context, worker string) ([]models.Booking, error)
	GetPendingBookings(ctx context.Context) ([]models.Booking, error)
	AssignWorker(ctx context.Context, id int64, worker string, at time.Time) error
	UpdateStatusWithVersion(ctx context.Context, id int64, from models.Status, fromVersion int64, to models.Status, at time.Time) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
