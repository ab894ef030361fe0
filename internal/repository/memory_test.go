package repository

import (
	"context"
	"testing"
	"time"

	"servicenest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySnapshotRepository(t *testing.T) {
	repo := NewMemorySnapshotRepository(time.Hour)
	ctx := context.Background()
	actor := models.CustomerActor("asha@example.com")

	t.Run("SetAndGetSnapshot", func(t *testing.T) {
		want := sampleBookings()
		require.NoError(t, repo.SetSnapshot(ctx, actor, want))

		got, err := repo.GetSnapshot(ctx, actor)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		got[0].Status = models.StatusCompleted
		again, _ := repo.GetSnapshot(ctx, actor)
		assert.Equal(t, models.StatusAccepted, again[0].Status, "callers get a copy")
	})

	t.Run("Expiry", func(t *testing.T) {
		now := time.Now()
		repo.now = func() time.Time { return now }
		require.NoError(t, repo.SetSnapshot(ctx, actor, sampleBookings()))

		repo.now = func() time.Time { return now.Add(2 * time.Hour) }
		got, err := repo.GetSnapshot(ctx, actor)
		require.NoError(t, err)
		assert.Nil(t, got)
		repo.now = time.Now
	})

	t.Run("ClearSnapshot", func(t *testing.T) {
		require.NoError(t, repo.SetSnapshot(ctx, actor, sampleBookings()))
		require.NoError(t, repo.ClearSnapshot(ctx, actor))
		got, _ := repo.GetSnapshot(ctx, actor)
		assert.Nil(t, got)
	})
}
