package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"servicenest/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetSnapshot(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockRepo) SetSnapshot(ctx context.Context, actor models.Actor, bookings []models.Booking) error {
	args := m.Called(ctx, actor, bookings)
	return args.Error(0)
}

func (m *mockRepo) ClearSnapshot(ctx context.Context, actor models.Actor) error {
	args := m.Called(ctx, actor)
	return args.Error(0)
}

func TestFailoverSnapshotRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSnapshotRepository(primary, fallback, &logger)
	ctx := context.Background()
	alice := models.WorkerActor("alice")
	bookings := sampleBookings()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("GetSnapshot", ctx, alice).Return(bookings, nil).Once()

		got, err := repo.GetSnapshot(ctx, alice)
		assert.NoError(t, err)
		assert.Equal(t, bookings, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("GetSnapshot", ctx, alice).Return(nil, errors.New("fail")).Once()
		fallback.On("GetSnapshot", ctx, alice).Return(bookings, nil).Once()

		got, err := repo.GetSnapshot(ctx, alice)
		assert.NoError(t, err)
		assert.Equal(t, bookings, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDownSkipsPrimary", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().UnixNano())
		fallback.On("SetSnapshot", ctx, alice, bookings).Return(nil).Once()
		fallback.On("ClearSnapshot", ctx, alice).Return(nil).Once()

		assert.NoError(t, repo.SetSnapshot(ctx, alice, bookings))
		assert.NoError(t, repo.ClearSnapshot(ctx, alice))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SetSnapshot", ctx, alice, bookings)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("GetSnapshot", ctx, alice).Return(bookings, nil).Once()

		got, err := repo.GetSnapshot(ctx, alice)
		assert.NoError(t, err)
		assert.Equal(t, bookings, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		bob := models.WorkerActor("bob")
		primary.On("GetSnapshot", ctx, bob).Return(nil, errors.New("still fail")).Once()
		fallback.On("GetSnapshot", ctx, bob).Return(nil, nil).Once()

		_, err := repo.GetSnapshot(ctx, bob)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetSnapshotFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		carol := models.WorkerActor("carol")
		primary.On("SetSnapshot", ctx, carol, bookings).Return(errors.New("fail")).Once()
		fallback.On("SetSnapshot", ctx, carol, bookings).Return(nil).Once()

		assert.NoError(t, repo.SetSnapshot(ctx, carol, bookings))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearSnapshotFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		dave := models.WorkerActor("dave")
		primary.On("ClearSnapshot", ctx, dave).Return(errors.New("fail")).Once()
		fallback.On("ClearSnapshot", ctx, dave).Return(nil).Once()

		assert.NoError(t, repo.ClearSnapshot(ctx, dave))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
