package repository

import (
	"context"
	"sync"
	"time"

	"servicenest/internal/models"
)

// SnapshotRepository stores the last known booking set per actor.
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, actor models.Actor) ([]models.Booking, error)
	SetSnapshot(ctx context.Context, actor models.Actor, bookings []models.Booking) error
	ClearSnapshot(ctx context.Context, actor models.Actor) error
}

type memorySnapshot struct {
	bookings  []models.Booking
	expiresAt time.Time
}

type MemorySnapshotRepository struct {
	snapshots sync.Map
	ttl       time.Duration
	now       func() time.Time
}

func NewMemorySnapshotRepository(ttl time.Duration) *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemorySnapshotRepository) GetSnapshot(_ context.Context, actor models.Actor) ([]models.Booking, error) {
	val, ok := r.snapshots.Load(actor.String())
	if !ok {
		return nil, nil
	}
	snap := val.(memorySnapshot)
	if !snap.expiresAt.IsZero() && r.now().After(snap.expiresAt) {
		r.snapshots.Delete(actor.String())
		return nil, nil
	}
	return append([]models.Booking(nil), snap.bookings...), nil
}

func (r *MemorySnapshotRepository) SetSnapshot(_ context.Context, actor models.Actor, bookings []models.Booking) error {
	snap := memorySnapshot{bookings: append([]models.Booking(nil), bookings...)}
	if r.ttl > 0 {
		snap.expiresAt = r.now().Add(r.ttl)
	}
	r.snapshots.Store(actor.String(), snap)
	return nil
}

func (r *MemorySnapshotRepository) ClearSnapshot(_ context.Context, actor models.Actor) error {
	r.snapshots.Delete(actor.String())
	return nil
}
