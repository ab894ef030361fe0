package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Refreshable is anything that can reload its state from the server.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher periodically reconciles a session with the booking API.
// Failed refreshes are retried with exponential backoff; once the policy
// is exhausted the refresher falls back to the regular interval.
type Refresher struct {
	target      Refreshable
	interval    time.Duration
	retryPolicy RetryPolicy
	trigger     chan struct{}
	onRefresh   func(err error)
	logger      zerolog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

func NewRefresher(target Refreshable, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	def := DefaultRetryPolicy()
	if retry.MaxRetries == 0 {
		retry.MaxRetries = def.MaxRetries
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = def.InitialDelay
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = def.MaxDelay
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = def.BackoffFactor
	}

	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "refresher").Logger()
	}

	return &Refresher{
		target:      target,
		interval:    interval,
		retryPolicy: retry,
		trigger:     make(chan struct{}, 1),
		logger:      base,
	}
}

// Trigger asks for an immediate refresh. Extra triggers while one is queued are dropped.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// OnRefresh registers fn to run after every attempt with its result.
// Must be called before Start.
func (r *Refresher) OnRefresh(fn func(err error)) {
	r.onRefresh = fn
}

// Runs returns the number of refresh attempts so far.
func (r *Refresher) Runs() int64 { return r.runs.Load() }

// Failures returns the number of failed refresh attempts so far.
func (r *Refresher) Failures() int64 { return r.failures.Load() }

// Start runs the loop until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("refresher started")
	defer r.logger.Info().Msg("refresher stopped")

	attempt := 0
	for {
		delay := r.interval
		if err := r.runOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			attempt++
			if r.retryPolicy.Exhausted(attempt) {
				r.logger.Error().Err(err).Int("attempt", attempt).Msg("refresh keeps failing, back to regular interval")
				attempt = 0
			} else {
				delay = r.retryPolicy.NextDelay(attempt)
				r.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("refresh failed")
			}
		} else {
			attempt = 0
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) error {
	r.runs.Add(1)
	err := r.target.Refresh(ctx)
	if err != nil {
		r.failures.Add(1)
	}
	if r.onRefresh != nil && ctx.Err() == nil {
		r.onRefresh(err)
	}
	return err
}
