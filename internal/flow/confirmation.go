package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const (
	msgConfirmFailed   = "Error confirming interview. Please contact support."
	msgDeclined        = "Interview request has been declined. Thank you for letting us know."
	candidateDeclineBy = "Maid declined the interview request"
)

// ConfirmationHandler applies a candidate's yes/no to their latest pending booking.
type ConfirmationHandler struct {
	bookings store.BookingRepo
	loc      *time.Location
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewConfirmationHandler creates a ConfirmationHandler. A nil loc means UTC.
// Each store call is limited to DefaultSessionStoreTimeout unless WithTimeout
// says otherwise.
func NewConfirmationHandler(bookings store.BookingRepo, loc *time.Location, m *metrics.Metrics) *ConfirmationHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ConfirmationHandler{bookings: bookings, loc: loc, timeout: DefaultSessionStoreTimeout, metrics: m}
}

// WithTimeout sets the per-call store timeout. Non-positive values are ignored.
func (h *ConfirmationHandler) WithTimeout(d time.Duration) *ConfirmationHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Handle confirms or declines the most recent pending booking whose candidate
// phone is subject. handled is false when there is no such booking, in which
// case the message should be routed onward.
func (h *ConfirmationHandler) Handle(ctx context.Context, subject string, yes bool) (reply string, handled bool, err error) {
	lookupCtx, cancel := context.WithTimeout(ctx, h.timeout)
	booking, err := h.bookings.LatestPendingBookingForCandidate(lookupCtx, subject)
	cancel()
	if err != nil {
		return "", false, fmt.Errorf("failed to look up pending booking: %w", err)
	}
	if booking == nil {
		return "", false, nil
	}

	status, reason := models.BookingStatusDeclined, candidateDeclineBy
	if yes {
		status, reason = models.BookingStatusConfirmed, ""
	}

	updateCtx, cancel := context.WithTimeout(ctx, h.timeout)
	updated, err := h.bookings.UpdateBookingStatus(updateCtx, booking.ID, status, reason)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Another reply or an operator already settled this booking.
			slog.Warn("ConfirmationHandler.Handle: booking no longer pending", "subject", subject, "bookingID", booking.ID)
			return "", false, nil
		}
		slog.Error("ConfirmationHandler.Handle: failed to update booking", "error", err, "subject", subject, "bookingID", booking.ID)
		return msgConfirmFailed, true, fmt.Errorf("failed to update booking status: %w", err)
	}
	h.metrics.ObserveBooking(string(status))
	slog.Info("ConfirmationHandler.Handle: booking answered by candidate", "subject", subject, "bookingID", booking.ID, "status", status)

	if !yes {
		return msgDeclined, true, nil
	}
	at := updated.ScheduledAt.In(h.loc)
	return fmt.Sprintf("✅ Thank you! Your interview has been confirmed.\n\nDate: %s\nTime: %s\n\nYou'll receive reminders before the interview. Good luck! 🎉",
		at.Format("1/2/2006"), at.Format("3:04:05 PM")), true, nil
}
