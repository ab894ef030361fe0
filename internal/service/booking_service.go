package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicenest/internal/database"
	"servicenest/internal/domain"
	"servicenest/internal/events"
	"servicenest/internal/lifecycle"
	"servicenest/internal/metrics"
	"servicenest/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrValidation wraps rejected create requests.
var ErrValidation = errors.New("validation failed")

type BookingService struct {
	repo     domain.BookingRepository
	eventBus domain.EventPublisher
	validate *validator.Validate
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.BookingRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		logger:   logger,
	}
}

// CreateBooking validates the request and stores a new pending booking.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req models.BookingRequest) (*models.Booking, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !actor.IsCustomer() || actor.ID != req.Customer.Email {
		return nil, fmt.Errorf("%w: bookings are created by the customer themselves", lifecycle.ErrUnauthorized)
	}

	date, err := models.ParseDate(string(req.ServiceDate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, _, err := req.ServiceTime.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	booking := &models.Booking{
		Customer:       req.Customer,
		ServiceType:    req.ServiceType,
		ServiceDate:    date,
		ServiceTime:    req.ServiceTime,
		ServiceAddress: req.ServiceAddress,
		Status:         models.StatusPending,
		Price:          req.Price,
		CreatedAt:      s.now(),
	}
	// Цена фиксируется на момент создания заявки
	if !booking.Price.Valid {
		booking.Price.Decimal = models.PriceFor(req.ServiceType)
		booking.Price.Valid = true
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	metrics.IncCreated()
	s.publishEvent(events.EventBookingCreated, *booking, "", actor)
	s.logger.Info().Int64("booking_id", booking.ID).Str("service_type", booking.ServiceType).Msg("Booking created")
	return booking, nil
}

// GetBooking returns a booking visible to the actor. Customers see only their
// own bookings; workers see any booking, since the open pool is shared.
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsCustomer() && b.Customer.Email != actor.ID {
		return nil, fmt.Errorf("%w: booking belongs to another customer", lifecycle.ErrUnauthorized)
	}
	return b, nil
}

func (s *BookingService) CustomerBookings(ctx context.Context, actor models.Actor, email string) ([]models.Booking, error) {
	if !actor.IsCustomer() || actor.ID != email {
		return nil, fmt.Errorf("%w: customers may list only their own bookings", lifecycle.ErrUnauthorized)
	}
	return s.repo.GetCustomerBookings(ctx, email)
}

func (s *BookingService) WorkerBookings(ctx context.Context, actor models.Actor, workerID string) ([]models.Booking, error) {
	if !actor.IsWorker() || actor.ID != workerID {
		return nil, fmt.Errorf("%w: workers may list only their own jobs", lifecycle.ErrUnauthorized)
	}
	return s.repo.GetWorkerBookings(ctx, workerID)
}

// PendingBookings returns the open job pool.
func (s *BookingService) PendingBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if !actor.IsWorker() {
		return nil, fmt.Errorf("%w: only workers see the job pool", lifecycle.ErrUnauthorized)
	}
	return s.repo.GetPendingBookings(ctx)
}

// AssignWorker claims a pending booking for workerID, who must be the caller.
func (s *BookingService) AssignWorker(ctx context.Context, actor models.Actor, id int64, workerID string) (*models.Booking, error) {
	if workerID == "" || actor.ID != workerID {
		return nil, fmt.Errorf("%w: workers may only assign themselves", lifecycle.ErrUnauthorized)
	}
	return s.UpdateStatus(ctx, actor, id, models.StatusAccepted)
}

// UpdateStatus applies a lifecycle transition and persists it conditionally.
// Accepting goes through the worker assignment compare-and-swap; every other
// edge requires the status and version read before the change.
func (s *BookingService) UpdateStatus(ctx context.Context, actor models.Actor, id int64, to models.Status) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := lifecycle.Apply(*current, actor, to, s.now())
	if err != nil {
		s.countRejected(err)
		s.logger.Warn().Err(err).Int64("booking_id", id).Str("actor", actor.String()).
			Str("from", string(current.Status)).Str("to", string(to)).Msg("Transition refused")
		return nil, err
	}

	if to == models.StatusAccepted {
		err = s.repo.AssignWorker(ctx, id, actor.ID, updated.UpdatedAt)
	} else {
		err = s.repo.UpdateStatusWithVersion(ctx, id, current.Status, current.Version, to, updated.UpdatedAt)
	}
	if err != nil {
		s.countRejected(err)
		return nil, err
	}

	metrics.IncTransition(string(current.Status), string(to))

	fresh, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to reload booking after transition")
		fresh = &updated
	}
	s.publishEvent(events.TypeForStatus(to), *fresh, current.Status, actor)
	return fresh, nil
}

func (s *BookingService) countRejected(err error) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		metrics.IncRejected("invalid_transition")
	case errors.Is(err, lifecycle.ErrUnauthorized):
		metrics.IncRejected("unauthorized")
	case errors.Is(err, database.ErrConflict):
		metrics.IncRejected("conflict")
	}
}

func (s *BookingService) publishEvent(eventType string, booking models.Booking, from models.Status, actor models.Actor) {
	if s.eventBus == nil || eventType == "" {
		return
	}
	payload := events.NewBookingPayload(booking, from, actor)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("booking_id", booking.ID).Msg("Failed to publish event")
	}
}
