package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"servicenest/internal/database"
	"servicenest/internal/lifecycle"
	"servicenest/internal/models"
	"servicenest/internal/service"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req models.BookingRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.bookings.CreateBooking(r.Context(), actor, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Status: statusSuccess, BookingID: booking.ID, Booking: booking})
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	booking, err := s.bookings.GetBooking(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Booking: booking})
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	list, err := s.bookings.PendingBookings(r.Context(), actor)
	s.writeList(w, r, list, err)
}

func (s *HTTPServer) handleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	email := strings.TrimSpace(chi.URLParam(r, "email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	list, err := s.bookings.CustomerBookings(r.Context(), actor, email)
	s.writeList(w, r, list, err)
}

func (s *HTTPServer) handleWorkerBookings(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	workerID := strings.TrimSpace(chi.URLParam(r, "workerID"))
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "worker id is required")
		return
	}
	list, err := s.bookings.WorkerBookings(r.Context(), actor, workerID)
	s.writeList(w, r, list, err)
}

// handleUpdateStatus accepts the target status as a bare JSON string,
// or as {"status": "..."}.
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	to, err := decodeStatus(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	booking, err := s.bookings.UpdateStatus(r.Context(), actor, id, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Booking: booking})
}

func (s *HTTPServer) handleAssignWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	var body struct {
		WorkerID    string `json:"workerId"`
		WorkerEmail string `json:"workerEmail"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// workerEmail is the older spelling of the same field
	workerID := strings.TrimSpace(body.WorkerID)
	if workerID == "" {
		workerID = strings.TrimSpace(body.WorkerEmail)
	}
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "workerId is required")
		return
	}

	booking, err := s.bookings.AssignWorker(r.Context(), actor, id, workerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: statusSuccess, Booking: booking})
}

func (s *HTTPServer) writeList(w http.ResponseWriter, r *http.Request, list []models.Booking, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, listEnvelope{Status: statusSuccess, Bookings: list, Count: len(list)})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, database.ErrConflict):
		writeError(w, http.StatusConflict, "booking was taken or modified concurrently")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error().Err(err).
			Str("request_id", requestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return 0, false
	}
	return id, true
}

func decodeStatus(body io.Reader) (models.Status, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", errors.New("invalid body")
	}
	raw = bytes.TrimSpace(raw)

	var status models.Status
	if len(raw) > 0 && raw[0] == '{' {
		var obj struct {
			Status models.Status `json:"status"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", err
		}
		status = obj.Status
	} else if err := json.Unmarshal(raw, &status); err != nil {
		return "", err
	}
	if status == "" {
		return "", errors.New("status is required")
	}
	return status, nil
}
