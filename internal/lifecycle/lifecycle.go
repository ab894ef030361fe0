// Package lifecycle holds the booking state machine: which status edges exist
// and which actor may walk each of them.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicenest/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor is not allowed to perform this transition")
)

type edge struct {
	from models.Status
	to   models.Status
}

// rule describes who may walk an edge.
type rule struct {
	role models.Role
	// assignedOnly restricts worker edges to the booking's assigned worker.
	assignedOnly bool
}

var transitions = map[edge]rule{
	{models.StatusPending, models.StatusAccepted}:     {role: models.RoleWorker},
	{models.StatusPending, models.StatusDeclined}:     {role: models.RoleWorker},
	{models.StatusPending, models.StatusCancelled}:    {role: models.RoleCustomer},
	{models.StatusAccepted, models.StatusInProgress}:  {role: models.RoleWorker, assignedOnly: true},
	{models.StatusAccepted, models.StatusCancelled}:   {role: models.RoleCustomer},
	{models.StatusInProgress, models.StatusCompleted}: {role: models.RoleWorker, assignedOnly: true},
}

// CanTransition reports whether the edge exists, regardless of actor.
func CanTransition(from, to models.Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// Lookup resolves a booking snapshot by id.
type Lookup interface {
	Get(id int64) (models.Booking, bool)
}

// Controller validates and applies transitions on booking snapshots.
type Controller struct {
	bookings Lookup
	now      func() time.Time
}

func NewController(bookings Lookup) *Controller {
	return &Controller{bookings: bookings, now: time.Now}
}

// WithClock overrides the time source used for updated_at.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Transition looks the booking up and applies the requested status.
func (c *Controller) Transition(_ context.Context, id int64, actor models.Actor, requested models.Status) (models.Booking, error) {
	if c.bookings == nil {
		return models.Booking{}, fmt.Errorf("booking %d: %w", id, models.ErrNotFound)
	}
	b, ok := c.bookings.Get(id)
	if !ok {
		return models.Booking{}, fmt.Errorf("booking %d: %w", id, models.ErrNotFound)
	}
	return Apply(b, actor, requested, c.now())
}

// Apply validates the edge and the actor, and returns the updated copy.
// The input booking is never modified.
func Apply(b models.Booking, actor models.Actor, requested models.Status, at time.Time) (models.Booking, error) {
	r, ok := transitions[edge{b.Status, requested}]
	if !ok {
		return b, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, requested)
	}
	if err := authorize(b, actor, r); err != nil {
		return b, err
	}

	out := b
	out.Status = requested
	if requested == models.StatusAccepted {
		out.Worker = actor.ID
	}
	if at.Before(out.CreatedAt) {
		at = out.CreatedAt
	}
	if at.Before(out.UpdatedAt) {
		at = out.UpdatedAt
	}
	out.UpdatedAt = at
	return out, nil
}

func authorize(b models.Booking, actor models.Actor, r rule) error {
	if actor.Role != r.role || actor.ID == "" {
		return fmt.Errorf("%w: %s may not move %s booking", ErrUnauthorized, actor.Role, b.Status)
	}
	switch actor.Role {
	case models.RoleCustomer:
		if b.Customer.Email != actor.ID {
			return fmt.Errorf("%w: booking belongs to another customer", ErrUnauthorized)
		}
	case models.RoleWorker:
		if r.assignedOnly && b.Worker != actor.ID {
			return fmt.Errorf("%w: worker %s is not assigned", ErrUnauthorized, actor.ID)
		}
	}
	return nil
}

// Allowed lists the statuses the actor may move the booking to, in lifecycle order.
func Allowed(b models.Booking, actor models.Actor) []models.Status {
	var out []models.Status
	for _, to := range models.AllStatuses {
		r, ok := transitions[edge{b.Status, to}]
		if !ok {
			continue
		}
		if authorize(b, actor, r) == nil {
			out = append(out, to)
		}
	}
	return out
}
