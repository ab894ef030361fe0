// Package store keeps the per-session booking set for one actor and
// reconciles it with server responses that may arrive out of order.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"servicenest/internal/models"

	"github.com/rs/zerolog"
)

// Fetcher reads bookings from the backend.
type Fetcher interface {
	CustomerBookings(ctx context.Context, email string) ([]models.Booking, error)
	WorkerBookings(ctx context.Context, workerID string) ([]models.Booking, error)
	PendingBookings(ctx context.Context) ([]models.Booking, error)
}

// SnapshotCache persists the last good booking set of an actor.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, actor models.Actor) ([]models.Booking, error)
	SetSnapshot(ctx context.Context, actor models.Actor, bookings []models.Booking) error
}

// FetchError reports a failed load. The store keeps serving its previous snapshot.
type FetchError struct {
	Actor models.Actor
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load bookings for %s: %v", e.Actor, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type entry struct {
	booking models.Booking
	// seq is the sequence number of the request that produced this entry.
	seq uint64
}

// BookingStore is the single mutable source of truth of a session.
type BookingStore struct {
	actor   models.Actor
	fetcher Fetcher
	cache   SnapshotCache
	logger  *zerolog.Logger

	mu       sync.RWMutex
	entries  map[int64]entry
	seq      uint64
	lastLoad uint64
	loaded   bool
}

func New(actor models.Actor, fetcher Fetcher, cache SnapshotCache, logger *zerolog.Logger) *BookingStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking-store").Str("actor", actor.String()).Logger()
	return &BookingStore{
		actor:   actor,
		fetcher: fetcher,
		cache:   cache,
		logger:  &l,
		entries: make(map[int64]entry),
	}
}

func (s *BookingStore) Actor() models.Actor { return s.actor }

// Load fetches the actor's bookings and merges them into the store. On failure
// it returns the previous snapshot (or the cached one, or nothing) together
// with a *FetchError.
func (s *BookingStore) Load(ctx context.Context) ([]models.Booking, error) {
	issued := s.nextSeq()

	fetched, err := s.fetch(ctx)
	if err != nil {
		s.restoreFromCache(ctx)
		return s.All(), &FetchError{Actor: s.actor, Err: err}
	}

	if s.apply(issued, fetched) {
		s.saveToCache(ctx)
	} else {
		s.logger.Debug().Uint64("seq", issued).Msg("discarded stale load response")
	}
	return s.All(), nil
}

func (s *BookingStore) fetch(ctx context.Context) ([]models.Booking, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	switch s.actor.Role {
	case models.RoleCustomer:
		return s.fetcher.CustomerBookings(ctx, s.actor.ID)
	case models.RoleWorker:
		own, err := s.fetcher.WorkerBookings(ctx, s.actor.ID)
		if err != nil {
			return nil, err
		}
		open, err := s.fetcher.PendingBookings(ctx)
		if err != nil {
			return nil, err
		}
		return mergeByID(own, open), nil
	}
	return nil, fmt.Errorf("unsupported actor role %q", s.actor.Role)
}

func mergeByID(lists ...[]models.Booking) []models.Booking {
	seen := make(map[int64]int)
	var out []models.Booking
	for _, list := range lists {
		for _, b := range list {
			if i, ok := seen[b.ID]; ok {
				if b.IsNewerThan(&out[i]) {
					out[i] = b
				}
				continue
			}
			seen[b.ID] = len(out)
			out = append(out, b)
		}
	}
	return out
}

func (s *BookingStore) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// apply merges a load issued at sequence number issued. It returns false when
// a newer load has already been applied.
func (s *BookingStore) apply(issued uint64, fetched []models.Booking) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if issued < s.lastLoad {
		return false
	}
	s.lastLoad = issued
	s.loaded = true

	next := make(map[int64]entry, len(fetched))
	for _, b := range fetched {
		cur, ok := s.entries[b.ID]
		if ok && (cur.seq > issued || cur.booking.IsNewerThan(&b)) && !b.IsNewerThan(&cur.booking) {
			next[b.ID] = cur
			continue
		}
		next[b.ID] = entry{booking: b, seq: issued}
	}
	// Entries written after this load was issued survive even if the server
	// did not list them yet.
	for id, cur := range s.entries {
		if _, ok := next[id]; !ok && cur.seq > issued {
			next[id] = cur
		}
	}
	s.entries = next
	return true
}

// Upsert replaces the booking with the same id or inserts it. A record older
// than the one already held is ignored.
func (s *BookingStore) Upsert(b models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	if cur, ok := s.entries[b.ID]; ok && cur.booking.IsNewerThan(&b) {
		s.logger.Debug().Int64("booking_id", b.ID).Msg("ignored upsert older than held state")
		return
	}
	s.entries[b.ID] = entry{booking: b, seq: s.seq}
}

// Get implements lifecycle.Lookup.
func (s *BookingStore) Get(id int64) (models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e.booking, ok
}

// All returns every booking, newest created first.
func (s *BookingStore) All() []models.Booking {
	return s.Filter(nil)
}

// Filter returns the bookings matching pred, newest created first. A nil
// predicate matches everything.
func (s *BookingStore) Filter(pred func(models.Booking) bool) []models.Booking {
	s.mu.RLock()
	out := make([]models.Booking, 0, len(s.entries))
	for _, e := range s.entries {
		if pred == nil || pred(e.booking) {
			out = append(out, e.booking)
		}
	}
	s.mu.RUnlock()

	SortByCreatedDesc(out)
	return out
}

// ByStatus returns bookings in any of the given statuses; no statuses means all.
func (s *BookingStore) ByStatus(statuses ...models.Status) []models.Booking {
	if len(statuses) == 0 {
		return s.All()
	}
	return s.Filter(func(b models.Booking) bool {
		for _, st := range statuses {
			if b.Status == st {
				return true
			}
		}
		return false
	})
}

// Pending returns the open job pool: pending bookings without a worker.
func (s *BookingStore) Pending() []models.Booking {
	return s.Filter(func(b models.Booking) bool {
		return b.Status == models.StatusPending && !b.HasWorker()
	})
}

// Counts summarises the store for dashboards.
type Counts struct {
	Total    int                   `json:"total"`
	ByStatus map[models.Status]int `json:"by_status"`
}

func (s *BookingStore) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{Total: len(s.entries), ByStatus: make(map[models.Status]int)}
	for _, e := range s.entries {
		c.ByStatus[e.booking.Status]++
	}
	return c
}

func (s *BookingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *BookingStore) restoreFromCache(ctx context.Context) {
	s.mu.RLock()
	skip := s.loaded || len(s.entries) > 0 || s.cache == nil
	s.mu.RUnlock()
	if skip {
		return
	}

	cached, err := s.cache.GetSnapshot(ctx, s.actor)
	if err != nil {
		s.logger.Warn().Err(err).Msg("snapshot cache read failed")
		return
	}
	if len(cached) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded || len(s.entries) > 0 {
		return
	}
	for _, b := range cached {
		s.entries[b.ID] = entry{booking: b}
	}
	s.logger.Info().Int("count", len(cached)).Msg("restored bookings from snapshot cache")
}

func (s *BookingStore) saveToCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSnapshot(ctx, s.actor, s.All()); err != nil {
		s.logger.Warn().Err(err).Msg("snapshot cache write failed")
	}
}

// SortByCreatedDesc orders bookings newest first, ties broken by id.
func SortByCreatedDesc(bookings []models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
		}
		return bookings[i].ID > bookings[j].ID
	})
}
