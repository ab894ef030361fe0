package repository

import (
	"context"
	"encoding/json"
	"time"

	"servicenest/internal/events"
	"servicenest/internal/models"

	"github.com/rs/zerolog"
)

// SubscribeInvalidation drops the cached snapshots of the customer and the
// worker involved in every booking event, so their next load cannot be served
// from an outdated copy.
func SubscribeInvalidation(bus *events.EventBus, repo SnapshotRepository, logger *zerolog.Logger) {
	if bus == nil || repo == nil {
		return
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	bus.Subscribe(events.AllEvents, func(ev *events.Event) error {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("snapshot invalidation: decode payload")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var affected []models.Actor
		if payload.CustomerEmail != "" {
			affected = append(affected, models.CustomerActor(payload.CustomerEmail))
		}
		if payload.Worker != "" {
			affected = append(affected, models.WorkerActor(payload.Worker))
		}
		for _, actor := range affected {
			if err := repo.ClearSnapshot(ctx, actor); err != nil {
				logger.Warn().Err(err).Str("actor", actor.String()).Msg("snapshot invalidation failed")
			}
		}
		return nil
	})
}
