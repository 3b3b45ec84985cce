package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

const (
	defaultBookingListLimit = 50
	maxBookingListLimit     = 500
)

// statusUpdateRequest is the body of POST /bookings/{id}/status.
type statusUpdateRequest struct {
	Status models.BookingStatus `json:"status"`
	Reason string               `json:"reason"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": string(models.APIStatusOK)})
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		Phone:  strings.TrimSpace(q.Get("phone")),
		Status: models.BookingStatus(q.Get("status")),
		Limit:  defaultBookingListLimit,
	}
	if filter.Status != "" && !models.IsValidBookingStatus(filter.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		if limit > maxBookingListLimit {
			limit = maxBookingListLimit
		}
		filter.Limit = limit
	}

	bookings, err := s.store.ListBookings(r.Context(), filter)
	if err != nil {
		slog.Error("Server.listBookingsHandler: failed to list bookings", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list bookings"))
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}

func (s *Server) updateBookingStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := chi.URLParam(r, "id")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.updateBookingStatusHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	switch req.Status {
	case models.BookingStatusConfirmed, models.BookingStatusDeclined, models.BookingStatusCancelled:
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Status must be confirmed, declined or cancelled"))
		return
	}
	if len(req.Reason) > models.MaxCancelReasonLength {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrCancelReasonTooLong.Error()))
		return
	}

	booking, err := s.store.UpdateBookingStatus(r.Context(), id, req.Status, req.Reason)
	switch {
	case errors.Is(err, models.ErrBookingNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Booking not found"))
		return
	case errors.Is(err, models.ErrInvalidTransition):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	case err != nil:
		slog.Error("Server.updateBookingStatusHandler: failed to update booking", "error", err, "bookingID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update booking"))
		return
	}

	s.metrics.ObserveBooking(string(booking.Status))
	slog.Info("Server.updateBookingStatusHandler: booking status updated", "bookingID", id, "status", booking.Status)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Booking updated", booking))
}
