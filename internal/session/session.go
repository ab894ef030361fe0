// Package session wires the booking store, the lifecycle controller and the
// projections together for a single actor talking to the booking API.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"servicenest/internal/client"
	"servicenest/internal/earnings"
	"servicenest/internal/lifecycle"
	"servicenest/internal/models"
	"servicenest/internal/schedule"
	"servicenest/internal/store"

	"github.com/rs/zerolog"
)

// ErrJobTaken means another worker accepted the booking first.
var ErrJobTaken = errors.New("job already taken by another worker")

// API is the subset of the booking API a session uses.
type API interface {
	store.Fetcher
	Booking(ctx context.Context, id int64) (models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) error
	AssignWorker(ctx context.Context, id int64, workerID string) error
	CreateBooking(ctx context.Context, req models.BookingRequest) (int64, error)
}

type Session struct {
	actor        models.Actor
	api          API
	store        *store.BookingStore
	controller   *lifecycle.Controller
	availability schedule.Availability
	now          func() time.Time
	logger       zerolog.Logger
}

func New(actor models.Actor, api API, cache store.SnapshotCache, logger *zerolog.Logger) *Session {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "session").Str("actor", actor.String()).Logger()
	}

	st := store.New(actor, api, cache, logger)
	return &Session{
		actor:        actor,
		api:          api,
		store:        st,
		controller:   lifecycle.NewController(st),
		availability: schedule.DefaultAvailability(),
		now:          time.Now,
		logger:       base,
	}
}

// WithClock overrides the time source for transitions and date-based views.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	s.controller.WithClock(now)
	return s
}

func (s *Session) WithAvailability(a schedule.Availability) *Session {
	s.availability = a
	return s
}

func (s *Session) Actor() models.Actor { return s.actor }

func (s *Session) Store() *store.BookingStore { return s.store }

// Refresh reloads the actor's bookings. On failure the store keeps serving
// its previous snapshot and the *store.FetchError is returned.
func (s *Session) Refresh(ctx context.Context) error {
	bookings, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Int("kept", len(bookings)).Msg("refresh failed, serving previous snapshot")
		return err
	}
	s.logger.Debug().Int("count", len(bookings)).Msg("bookings refreshed")
	return nil
}

// Accept claims a pending job for the session's worker.
func (s *Session) Accept(ctx context.Context, id int64) (models.Booking, error) {
	return s.transition(ctx, id, models.StatusAccepted)
}

func (s *Session) Decline(ctx context.Context, id int64) (models.Booking, error) {
	return s.transition(ctx, id, models.StatusDeclined)
}

func (s *Session) Start(ctx context.Context, id int64) (models.Booking, error) {
	return s.transition(ctx, id, models.StatusInProgress)
}

func (s *Session) Complete(ctx context.Context, id int64) (models.Booking, error) {
	return s.transition(ctx, id, models.StatusCompleted)
}

func (s *Session) Cancel(ctx context.Context, id int64) (models.Booking, error) {
	return s.transition(ctx, id, models.StatusCancelled)
}

func (s *Session) transition(ctx context.Context, id int64, to models.Status) (models.Booking, error) {
	updated, err := s.controller.Transition(ctx, id, s.actor, to)
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) || errors.Is(err, lifecycle.ErrUnauthorized) {
			s.logger.Warn().Err(err).Bool("ui_violation", true).
				Int64("booking_id", id).Str("to", string(to)).Msg("action not allowed")
		}
		return models.Booking{}, err
	}

	if to == models.StatusAccepted {
		err = s.api.AssignWorker(ctx, id, s.actor.ID)
	} else {
		err = s.api.UpdateStatus(ctx, id, to)
	}
	if err != nil {
		var rejected *client.ServerRejected
		if to == models.StatusAccepted && errors.As(err, &rejected) {
			if rerr := s.Refresh(ctx); rerr != nil {
				s.logger.Warn().Err(rerr).Msg("refresh after rejected accept failed")
			}
			// Только 409 означает, что заявку уже забрал другой исполнитель
			if rejected.StatusCode == http.StatusConflict {
				s.logger.Info().Int64("booking_id", id).Str("reason", rejected.Message).Msg("job taken by another worker")
				return models.Booking{}, fmt.Errorf("booking %d: %w", id, ErrJobTaken)
			}
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("accept rejected by server")
			return models.Booking{}, err
		}
		s.logger.Error().Err(err).Int64("booking_id", id).Str("to", string(to)).Msg("failed to persist transition")
		return models.Booking{}, err
	}

	fresh, err := s.api.Booking(ctx, id)
	if err != nil {
		// Сервер принял изменение, но перечитать не удалось: держим локальную копию
		s.logger.Warn().Err(err).Int64("booking_id", id).Msg("re-read after transition failed")
		s.store.Upsert(updated)
		return updated, nil
	}
	s.store.Upsert(fresh)
	return fresh, nil
}

// Book creates a booking for the session's customer.
func (s *Session) Book(ctx context.Context, req models.BookingRequest) (models.Booking, error) {
	if !s.actor.IsCustomer() {
		return models.Booking{}, fmt.Errorf("%w: only customers book services", lifecycle.ErrUnauthorized)
	}
	if req.Customer.Email == "" {
		req.Customer.Email = s.actor.ID
	}

	id, err := s.api.CreateBooking(ctx, req)
	if err != nil {
		return models.Booking{}, err
	}

	b, err := s.api.Booking(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", id).Msg("re-read after create failed")
		_ = s.Refresh(ctx)
		if held, ok := s.store.Get(id); ok {
			return held, nil
		}
		return models.Booking{}, err
	}
	s.store.Upsert(b)
	s.logger.Info().Int64("booking_id", id).Msg("booking created")
	return b, nil
}

// Allowed lists the actions the UI may offer for a booking.
func (s *Session) Allowed(id int64) []models.Status {
	b, ok := s.store.Get(id)
	if !ok {
		return nil
	}
	return lifecycle.Allowed(b, s.actor)
}

func (s *Session) today() models.Date {
	return models.DateOf(s.now())
}

// Today returns today's active jobs.
func (s *Session) Today() []models.Booking {
	return schedule.Today(s.store.All(), s.today())
}

func (s *Session) Upcoming() []models.Booking {
	return schedule.Upcoming(s.store.All(), s.today())
}

// Week returns the calendar of the week that contains day; an empty day means today.
func (s *Session) Week(day models.Date) schedule.Grid {
	if day == "" {
		day = s.today()
	}
	return schedule.WeekGrid(schedule.WeekStart(day), s.store.All())
}

// FreeSlots returns working hours of the week with no job placed.
func (s *Session) FreeSlots(day models.Date) []schedule.Cell {
	return s.Week(day).FreeSlots(s.availability)
}

// OpenJobs is the pending pool visible to a worker.
func (s *Session) OpenJobs() []models.Booking {
	return s.store.Pending()
}

// own returns bookings the actor is responsible for; the open pool is excluded for workers.
func (s *Session) own() []models.Booking {
	if !s.actor.IsWorker() {
		return s.store.All()
	}
	return s.store.Filter(func(b models.Booking) bool { return b.Worker == s.actor.ID })
}

func (s *Session) Earnings() earnings.Summary {
	return earnings.Summarize(s.own(), s.today())
}

func (s *Session) Transactions() []earnings.Transaction {
	return earnings.Transactions(s.own())
}

// ExportEarnings writes the earnings report to an xlsx file.
func (s *Session) ExportEarnings(path string) error {
	return earnings.WriteReport(path, s.Earnings(), s.Transactions())
}
