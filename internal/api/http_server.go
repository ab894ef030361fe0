package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"servicenest/internal/auth"
	"servicenest/internal/config"
	"servicenest/internal/metrics"
	"servicenest/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"

	headerRequestID = "X-Request-ID"
)

// BookingService is what the HTTP layer needs from the booking service.
type BookingService interface {
	CreateBooking(ctx context.Context, actor models.Actor, req models.BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error)
	CustomerBookings(ctx context.Context, actor models.Actor, email string) ([]models.Booking, error)
	WorkerBookings(ctx context.Context, actor models.Actor, workerID string) ([]models.Booking, error)
	PendingBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id int64, to models.Status) (*models.Booking, error)
	AssignWorker(ctx context.Context, actor models.Actor, id int64, workerID string) (*models.Booking, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTPServer exposes the booking REST API.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings BookingService
	db       Pinger
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, bookings BookingService, db Pinger, tokens *auth.Tokens, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		db:       db,
		auth:     NewHTTPAuth(cfg, tokens),
		logger:   base,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, envelope{Status: statusSuccess})
	})
	r.Get("/readyz", s.handleReady)

	r.Route("/bookings", func(r chi.Router) {
		r.Use(s.auth.Wrap)

		r.Post("/", s.handleCreate)
		r.Get("/pending", s.handlePending)
		r.Get("/user/{email}", s.handleCustomerBookings)
		r.Get("/worker/{workerID}", s.handleWorkerBookings)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}/status", s.handleUpdateStatus)
		r.Put("/{id}/assign-worker", s.handleAssignWorker)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the root handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.IncHTTP(r.Method+" "+endpoint, recorder.status)

		s.logger.Info().
			Str("request_id", requestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// envelope is the common response shape of every endpoint.
type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Booking   *models.Booking `json:"booking,omitempty"`
	BookingID int64           `json:"bookingId,omitempty"`
}

type listEnvelope struct {
	Status   string           `json:"status"`
	Bookings []models.Booking `json:"bookings"`
	Count    int              `json:"count"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, envelope{Status: statusError, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
