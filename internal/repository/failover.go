package repository

import (
	"context"
	"sync/atomic"
	"time"

	"servicenest/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSnapshotRepository uses primary until it fails, then serves from
// fallback and probes primary again once a minute.
type FailoverSnapshotRepository struct {
	primary   SnapshotRepository
	fallback  SnapshotRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSnapshotRepository(primary, fallback SnapshotRepository, logger *zerolog.Logger) *FailoverSnapshotRepository {
	return &FailoverSnapshotRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverSnapshotRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary snapshot repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSnapshotRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSnapshotRepository) GetSnapshot(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if r.usePrimary() {
		bookings, err := r.primary.GetSnapshot(ctx, actor)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary snapshot repository recovered")
			}
			return bookings, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSnapshot(ctx, actor)
}

func (r *FailoverSnapshotRepository) SetSnapshot(ctx context.Context, actor models.Actor, bookings []models.Booking) error {
	if r.usePrimary() {
		err := r.primary.SetSnapshot(ctx, actor, bookings)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSnapshot(ctx, actor, bookings)
}

func (r *FailoverSnapshotRepository) ClearSnapshot(ctx context.Context, actor models.Actor) error {
	if r.usePrimary() {
		err := r.primary.ClearSnapshot(ctx, actor)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearSnapshot(ctx, actor)
}
