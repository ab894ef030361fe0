package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"servicenest/internal/models"
	"servicenest/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL, "secret-token", nil)
	c.UseActor(models.CustomerActor("asha@example.com"))
	c.UseRetryPolicy(worker.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	return c
}

func TestClient_CustomerBookings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bookings/user/asha@example.com", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(headerRequestID))
		assert.Empty(t, r.Header.Get(headerActorID), "dev headers are not sent next to a token")
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "SUCCESS",
			"count":  1,
			"bookings": []map[string]any{
				{"id": 4, "status": "accepted", "worker": "alice", "serviceDate": "2024-01-15", "serviceTime": "9:00-10:00"},
			},
		})
	})

	got, err := c.CustomerBookings(context.Background(), "asha@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, models.StatusAccepted, got[0].Status)
	assert.Equal(t, models.Date("2024-01-15"), got[0].ServiceDate)
}

func TestClient_ActorHeadersWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "worker", r.Header.Get(headerActorRole))
		assert.Equal(t, "alice", r.Header.Get(headerActorID))
		writeJSON(w, http.StatusOK, map[string]any{"status": "SUCCESS", "bookings": []any{}})
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "", nil)
	c.UseActor(models.WorkerActor("alice"))
	_, err := c.WorkerBookings(context.Background(), "alice")
	require.NoError(t, err)
}

func TestClient_WorkerAndPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bookings/worker/alice":
			writeJSON(w, http.StatusOK, map[string]any{"status": "SUCCESS", "bookings": []any{map[string]any{"id": 1, "status": "in-progress"}}})
		case "/bookings/pending":
			writeJSON(w, http.StatusOK, map[string]any{"status": "SUCCESS", "bookings": []any{}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	own, err := c.WorkerBookings(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, own, 1)

	open, err := c.PendingBookings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestClient_UpdateStatusSendsBareString(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/bookings/9/status", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `"in-progress"`, string(body))
		writeJSON(w, http.StatusOK, map[string]any{"status": "SUCCESS"})
	})

	require.NoError(t, c.UpdateStatus(context.Background(), 9, models.StatusInProgress))
}

func TestClient_AssignWorkerRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"workerId":"bob"}`, string(body))
		writeJSON(w, http.StatusConflict, map[string]any{"status": "ERROR", "message": "booking already taken"})
	})

	err := c.AssignWorker(context.Background(), 3, "bob")
	var rejected *ServerRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusConflict, rejected.StatusCode)
	assert.Equal(t, "booking already taken", rejected.Message)
}

func TestClient_ErrorEnvelopeWith200IsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ERROR", "message": "nope"})
	})

	err := c.UpdateStatus(context.Background(), 1, models.StatusCompleted)
	var rejected *ServerRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "nope", rejected.Message)
}

func TestClient_BookingNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "ERROR", "message": "booking not found"})
	})

	_, err := c.Booking(context.Background(), 77)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClient_CreateBooking(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req models.BookingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Plumbing", req.ServiceType)
		writeJSON(w, http.StatusCreated, map[string]any{"status": "SUCCESS", "bookingId": 42})
	})

	id, err := c.CreateBooking(context.Background(), models.BookingRequest{
		Customer:    models.Customer{Name: "Asha", Email: "asha@example.com", Phone: "1"},
		ServiceType: "Plumbing",
		ServiceDate: "2024-01-15",
		ServiceTime: "9:00-10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestClient_RetriesServerErrorsOnReads(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "ERROR"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "SUCCESS", "bookings": []any{}})
	})

	_, err := c.PendingBookings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryWrites(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "ERROR"})
	})

	assert.Error(t, c.UpdateStatus(context.Background(), 1, models.StatusCompleted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "", nil)
	c.UseRetryPolicy(worker.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond})

	_, err := c.PendingBookings(context.Background())
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr), "got %v", err)
	assert.Equal(t, "pending bookings", netErr.Op)
}
