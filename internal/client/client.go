// Package client talks to the booking REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"servicenest/internal/models"
	"servicenest/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	statusSuccess = "SUCCESS"

	headerRequestID = "X-Request-ID"
	headerActorRole = "X-Actor-Role"
	headerActorID   = "X-Actor-ID"
)

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network error: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerRejected is any response that is not a SUCCESS envelope.
type ServerRejected struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerRejected) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected with http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: rejected with http %d: %s", e.Op, e.StatusCode, e.Message)
}

// Unwrap lets callers match a 404 with errors.Is(err, models.ErrNotFound).
func (e *ServerRejected) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

// envelope is the common response shape of every endpoint.
type envelope struct {
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Bookings  []models.Booking `json:"bookings,omitempty"`
	Count     int              `json:"count,omitempty"`
	Booking   *models.Booking  `json:"booking,omitempty"`
	BookingID int64            `json:"bookingId,omitempty"`
}

// Client is an HTTP client for the booking API.
type Client struct {
	baseURL    string
	token      string
	actor      models.Actor
	httpClient *http.Client
	retry      worker.RetryPolicy
	logger     *zerolog.Logger
}

// New constructs a client with baseURL and an optional bearer token.
func New(baseURL, token string, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: worker.RetryPolicy{
			MaxRetries:    2,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2,
		},
		logger: logger,
	}
}

// UseHTTPClient replaces the underlying HTTP client.
func (c *Client) UseHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// UseRetryPolicy configures retries of idempotent reads.
func (c *Client) UseRetryPolicy(p worker.RetryPolicy) {
	c.retry = p
}

// UseActor sets the identity sent in the development headers. The headers
// are only sent while no bearer token is configured.
func (c *Client) UseActor(actor models.Actor) {
	c.actor = actor
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) CustomerBookings(ctx context.Context, email string) ([]models.Booking, error) {
	return c.list(ctx, "customer bookings", "/bookings/user/"+url.PathEscape(email))
}

func (c *Client) WorkerBookings(ctx context.Context, workerID string) ([]models.Booking, error) {
	return c.list(ctx, "worker bookings", "/bookings/worker/"+url.PathEscape(workerID))
}

func (c *Client) PendingBookings(ctx context.Context) ([]models.Booking, error) {
	return c.list(ctx, "pending bookings", "/bookings/pending")
}

func (c *Client) list(ctx context.Context, op, path string) ([]models.Booking, error) {
	var env envelope
	if err := c.getWithRetry(ctx, op, path, &env); err != nil {
		return nil, err
	}
	return env.Bookings, nil
}

// Booking fetches a single booking.
func (c *Client) Booking(ctx context.Context, id int64) (models.Booking, error) {
	var env envelope
	if err := c.getWithRetry(ctx, "get booking", fmt.Sprintf("/bookings/%d", id), &env); err != nil {
		return models.Booking{}, err
	}
	if env.Booking == nil {
		return models.Booking{}, fmt.Errorf("get booking %d: empty response", id)
	}
	return *env.Booking, nil
}

// UpdateStatus sends the requested status as a bare JSON string.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	return c.do(ctx, "update status", http.MethodPut, fmt.Sprintf("/bookings/%d/status", id), status, nil)
}

// AssignWorker claims a pending booking for workerID. The server rejects the
// call when another worker got there first.
func (c *Client) AssignWorker(ctx context.Context, id int64, workerID string) error {
	body := struct {
		WorkerID string `json:"workerId"`
	}{WorkerID: workerID}
	return c.do(ctx, "assign worker", http.MethodPut, fmt.Sprintf("/bookings/%d/assign-worker", id), body, nil)
}

// CreateBooking posts a new booking and returns its id.
func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (int64, error) {
	var env envelope
	if err := c.do(ctx, "create booking", http.MethodPost, "/bookings", req, &env); err != nil {
		return 0, err
	}
	return env.BookingID, nil
}

func (c *Client) getWithRetry(ctx context.Context, op, path string, out *envelope) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, op, http.MethodGet, path, nil, out)
		if err == nil || !retryable(err) || attempt >= c.retry.MaxRetries {
			return err
		}

		delay := c.retry.NextDelay(attempt + 1)
		c.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying request")

		if err := worker.Sleep(ctx, delay); err != nil {
			return &NetworkError{Op: op, Err: err}
		}
	}
}

func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rejected *ServerRejected
	return errors.As(err, &rejected) && rejected.StatusCode >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out *envelope) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 300 || decodeErr == nil && env.Status != statusSuccess {
		return &ServerRejected{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: decode response: %w", op, decodeErr)
	}
	if out != nil {
		*out = env
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	if c.actor.ID != "" {
		req.Header.Set(headerActorRole, string(c.actor.Role))
		req.Header.Set(headerActorID, c.actor.ID)
	}
}
