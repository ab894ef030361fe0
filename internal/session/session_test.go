package session

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"servicenest/internal/client"
	"servicenest/internal/lifecycle"
	"servicenest/internal/models"
	"servicenest/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

// fakeAPI is an in-memory booking backend with the same accept semantics as the server.
type fakeAPI struct {
	mu       sync.Mutex
	bookings map[int64]models.Booking
	nextID   int64
	down     bool
	noReread bool
	// rejectAssign, when set, is the HTTP status every assignment fails with.
	rejectAssign int
	lists        int
	calls        []string
}

func newFakeAPI(seed ...models.Booking) *fakeAPI {
	f := &fakeAPI{bookings: make(map[int64]models.Booking), nextID: 100}
	for _, b := range seed {
		if b.Version == 0 {
			b.Version = 1
		}
		f.bookings[b.ID] = b
	}
	return f
}

func (f *fakeAPI) list(pred func(models.Booking) bool) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.down {
		return nil, &client.NetworkError{Op: "list", Err: errors.New("connection refused")}
	}
	var out []models.Booking
	for _, b := range f.bookings {
		if pred(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeAPI) CustomerBookings(_ context.Context, email string) ([]models.Booking, error) {
	return f.list(func(b models.Booking) bool { return b.Customer.Email == email })
}

func (f *fakeAPI) WorkerBookings(_ context.Context, id string) ([]models.Booking, error) {
	return f.list(func(b models.Booking) bool { return b.Worker == id })
}

func (f *fakeAPI) PendingBookings(context.Context) ([]models.Booking, error) {
	return f.list(func(b models.Booking) bool { return b.Status == models.StatusPending && b.Worker == "" })
}

func (f *fakeAPI) Booking(_ context.Context, id int64) (models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noReread {
		return models.Booking{}, &client.NetworkError{Op: "get booking", Err: errors.New("timeout")}
	}
	b, ok := f.bookings[id]
	if !ok {
		return models.Booking{}, &client.ServerRejected{Op: "get booking", StatusCode: http.StatusNotFound}
	}
	return b, nil
}

func (f *fakeAPI) bump(b *models.Booking) {
	b.Version++
	b.UpdatedAt = b.UpdatedAt.Add(time.Minute)
	if b.UpdatedAt.Before(monday) {
		b.UpdatedAt = monday
	}
}

func (f *fakeAPI) UpdateStatus(_ context.Context, id int64, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "status:"+string(status))
	b, ok := f.bookings[id]
	if !ok {
		return &client.ServerRejected{Op: "update status", StatusCode: http.StatusNotFound}
	}
	b.Status = status
	f.bump(&b)
	f.bookings[id] = b
	return nil
}

func (f *fakeAPI) AssignWorker(_ context.Context, id int64, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "assign:"+workerID)
	if f.rejectAssign != 0 {
		return &client.ServerRejected{Op: "assign worker", StatusCode: f.rejectAssign, Message: http.StatusText(f.rejectAssign)}
	}
	b, ok := f.bookings[id]
	if !ok || b.Status != models.StatusPending || b.Worker != "" {
		return &client.ServerRejected{Op: "assign worker", StatusCode: http.StatusConflict, Message: "booking was taken"}
	}
	b.Status = models.StatusAccepted
	b.Worker = workerID
	f.bump(&b)
	f.bookings[id] = b
	return nil
}

func (f *fakeAPI) CreateBooking(_ context.Context, req models.BookingRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.bookings[f.nextID] = models.Booking{
		ID:             f.nextID,
		Customer:       req.Customer,
		ServiceType:    req.ServiceType,
		ServiceDate:    req.ServiceDate,
		ServiceTime:    req.ServiceTime,
		ServiceAddress: req.ServiceAddress,
		Status:         models.StatusPending,
		CreatedAt:      monday,
		UpdatedAt:      monday,
		Version:        1,
	}
	return f.nextID, nil
}

// takeBy simulates another worker winning the accept race.
func (f *fakeAPI) takeBy(id int64, worker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bookings[id]
	b.Status = models.StatusAccepted
	b.Worker = worker
	f.bump(&b)
	f.bookings[id] = b
}

func (f *fakeAPI) apiCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func job(id int64, status models.Status, worker string, date models.Date, slot models.TimeSlot) models.Booking {
	return models.Booking{
		ID:          id,
		Customer:    models.Customer{Name: "Asha", Email: "asha@example.com", Phone: "555"},
		Worker:      worker,
		ServiceType: "Plumbing",
		ServiceDate: date,
		ServiceTime: slot,
		Status:      status,
		CreatedAt:   monday.Add(-48 * time.Hour).Add(time.Duration(id) * time.Minute),
		UpdatedAt:   monday.Add(-48 * time.Hour).Add(time.Duration(id) * time.Minute),
	}
}

func newWorkerSession(t *testing.T, api *fakeAPI, logs *bytes.Buffer) *Session {
	t.Helper()
	logger := zerolog.New(logs)
	s := New(models.WorkerActor("alice"), api, nil, &logger).WithClock(func() time.Time { return monday })
	require.NoError(t, s.Refresh(context.Background()))
	return s
}

func TestSession_AcceptStartComplete(t *testing.T) {
	api := newFakeAPI(job(1, models.StatusPending, "", "2024-01-15", "9:00-10:00"))
	s := newWorkerSession(t, api, &bytes.Buffer{})
	ctx := context.Background()

	require.Len(t, s.OpenJobs(), 1)
	assert.Equal(t, []models.Status{models.StatusAccepted, models.StatusDeclined}, s.Allowed(1))

	b, err := s.Accept(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, b.Status)
	assert.Equal(t, "alice", b.Worker)
	assert.Empty(t, s.OpenJobs())
	require.Len(t, s.Today(), 1)
	assert.Len(t, s.Week("").At("2024-01-15", 9), 1)

	_, err = s.Start(ctx, 1)
	require.NoError(t, err)
	b, err = s.Complete(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)
	assert.Empty(t, s.Today())

	sum := s.Earnings()
	assert.True(t, sum.Total.Equal(models.PriceFor("Plumbing")), sum.Total.String())
	assert.Equal(t, 1, sum.CompletedJobs)

	assert.Equal(t, []string{"assign:alice", "status:in-progress", "status:completed"}, api.apiCalls())
}

func TestSession_AcceptLostRace(t *testing.T) {
	api := newFakeAPI(job(1, models.StatusPending, "", "2024-01-16", "9:00-10:00"))
	s := newWorkerSession(t, api, &bytes.Buffer{})

	api.takeBy(1, "bob")

	_, err := s.Accept(context.Background(), 1)
	assert.ErrorIs(t, err, ErrJobTaken)

	// После обновления заявка исчезает из пула
	_, ok := s.Store().Get(1)
	assert.False(t, ok)
	assert.Empty(t, s.OpenJobs())
}

func TestSession_AcceptRejectedForOtherReasons(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			api := newFakeAPI(job(1, models.StatusPending, "", "2024-01-16", "9:00-10:00"))
			s := newWorkerSession(t, api, &bytes.Buffer{})
			api.rejectAssign = code

			api.mu.Lock()
			listsBefore := api.lists
			api.mu.Unlock()

			_, err := s.Accept(context.Background(), 1)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrJobTaken))
			var rejected *client.ServerRejected
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, code, rejected.StatusCode)

			api.mu.Lock()
			defer api.mu.Unlock()
			assert.Greater(t, api.lists, listsBefore, "session refreshes after a rejected accept")
		})
	}
}

func TestSession_InvalidActionsNeverReachServer(t *testing.T) {
	api := newFakeAPI(
		job(1, models.StatusPending, "", "2024-01-16", "9:00-10:00"),
		job(2, models.StatusCompleted, "alice", "2024-01-10", "9:00-10:00"),
	)
	var logs bytes.Buffer
	s := newWorkerSession(t, api, &logs)
	ctx := context.Background()

	_, err := s.Complete(ctx, 1)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = s.Start(ctx, 2)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = s.Cancel(ctx, 1)
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	_, err = s.Accept(ctx, 404)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, api.apiCalls())
	assert.Contains(t, logs.String(), `"ui_violation":true`)
}

func TestSession_DeclineIsTerminal(t *testing.T) {
	api := newFakeAPI(job(1, models.StatusPending, "", "2024-01-16", "9:00-10:00"))
	s := newWorkerSession(t, api, &bytes.Buffer{})

	b, err := s.Decline(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, b.Status)
	assert.Empty(t, s.Allowed(1))
}

func TestSession_RereadFailureKeepsLocalCopy(t *testing.T) {
	api := newFakeAPI(job(1, models.StatusAccepted, "alice", "2024-01-15", "9:00-10:00"))
	s := newWorkerSession(t, api, &bytes.Buffer{})
	api.noReread = true

	b, err := s.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, b.Status)

	held, ok := s.Store().Get(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, held.Status)
}

func TestSession_RefreshFailureKeepsSnapshot(t *testing.T) {
	api := newFakeAPI(
		job(1, models.StatusAccepted, "alice", "2024-01-15", "9:00-10:00"),
		job(2, models.StatusPending, "", "2024-01-17", "14:00-15:00"),
	)
	s := newWorkerSession(t, api, &bytes.Buffer{})
	require.Equal(t, 2, s.Store().Len())

	api.down = true
	err := s.Refresh(context.Background())
	var fetchErr *store.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 2, s.Store().Len())
}

func TestSession_CustomerBookAndCancel(t *testing.T) {
	api := newFakeAPI()
	logger := zerolog.Nop()
	s := New(models.CustomerActor("asha@example.com"), api, nil, &logger).WithClock(func() time.Time { return monday })
	ctx := context.Background()

	b, err := s.Book(ctx, models.BookingRequest{
		Customer:       models.Customer{Name: "Asha", Phone: "555"},
		ServiceType:    "Cleaning",
		ServiceDate:    "2024-01-18",
		ServiceTime:    "10:00-11:00",
		ServiceAddress: "1 Main St",
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", b.Customer.Email)
	assert.Equal(t, 1, s.Store().Len())

	b, err = s.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)

	worker := New(models.WorkerActor("alice"), api, nil, &logger)
	_, err = worker.Book(ctx, models.BookingRequest{})
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)
}

func TestSession_Views(t *testing.T) {
	api := newFakeAPI(
		job(1, models.StatusAccepted, "alice", "2024-01-15", "14:00-15:00"),
		job(2, models.StatusAccepted, "alice", "2024-01-15", "9:00-10:00"),
		job(3, models.StatusInProgress, "alice", "2024-01-17", "10:00-11:00"),
		job(4, models.StatusAccepted, "alice", "2024-01-16", "8:00-9:00"),
		job(5, models.StatusPending, "", "2024-01-16", "8:00-9:00"),
	)
	s := newWorkerSession(t, api, &bytes.Buffer{})

	assert.Len(t, s.Today(), 2)

	upcoming := s.Upcoming()
	require.Len(t, upcoming, 2)
	assert.Equal(t, int64(4), upcoming[0].ID)
	assert.Equal(t, int64(3), upcoming[1].ID)

	grid := s.Week("2024-01-17")
	assert.Equal(t, models.Date("2024-01-15"), grid.WeekStart)
	assert.Equal(t, 4, grid.Count())

	free := s.FreeSlots("")
	for _, c := range free {
		assert.Empty(t, grid.At(c.Date, c.Hour))
	}

	assert.True(t, s.Earnings().Pending.IsPositive())
	assert.Len(t, s.Transactions(), 4)
}

func TestSession_ExportEarnings(t *testing.T) {
	api := newFakeAPI(job(1, models.StatusCompleted, "alice", "2024-01-12", "9:00-10:00"))
	s := newWorkerSession(t, api, &bytes.Buffer{})

	path := filepath.Join(t.TempDir(), "reports", "earnings.xlsx")
	require.NoError(t, s.ExportEarnings(path))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
