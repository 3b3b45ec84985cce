package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const (
	msgStartAgain        = "Something went wrong. Please start again."
	msgCandidateNotFound = "Maid not found. Please try again."
	msgBookingFailed     = "Failed to create interview. Please try again."
)

// Finalizer turns a completed booking conversation into a persisted booking.
type Finalizer struct {
	store    store.Store
	sessions *SessionStore
	loc      *time.Location
	notifier adminNotifier
	newID    func() string
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewFinalizer creates a Finalizer. A nil loc means UTC; an empty adminNumber
// disables the WhatsApp admin notification.
func NewFinalizer(st store.Store, sessions *SessionStore, loc *time.Location, adminNumber string, m *metrics.Metrics) *Finalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Finalizer{
		store:    st,
		sessions: sessions,
		loc:      loc,
		notifier: newAdminNotifier(st, adminNumber),
		newID:    uuid.NewString,
		now:      time.Now,
		metrics:  m,
	}
}

// Finalize records the booking described by sc on platform p and returns the
// reply for the requester. The session is cleared on every path.
func (f *Finalizer) Finalize(ctx context.Context, subject string, sc models.SessionContext, p models.PlatformTemplate) string {
	defer f.clearSession(ctx, subject)

	sc.SelectedPlatform = string(p.Type)
	if !sc.Complete() {
		slog.Error("Finalizer.Finalize: incomplete booking context", "error", models.ErrIncompleteContext, "subject", subject,
			"candidateID", sc.CandidateID, "date", sc.SelectedDate, "time", sc.SelectedTime, "platform", sc.SelectedPlatform)
		return msgStartAgain
	}

	scheduledAt, err := ScheduledAt(sc.SelectedDate, sc.SelectedTime, f.loc)
	if err != nil {
		slog.Error("Finalizer.Finalize: invalid schedule", "error", err, "subject", subject)
		return msgStartAgain
	}

	lookupCtx, cancel := f.sessions.bound(ctx)
	candidate, err := f.store.GetCandidate(lookupCtx, sc.CandidateID)
	cancel()
	if err != nil {
		slog.Error("Finalizer.Finalize: candidate lookup failed", "error", err, "subject", subject, "candidateID", sc.CandidateID)
		return msgBookingFailed
	}
	if candidate == nil {
		slog.Warn("Finalizer.Finalize: candidate not found", "error", models.ErrCandidateNotFound, "subject", subject, "candidateID", sc.CandidateID)
		return msgCandidateNotFound
	}
	// The candidate may have been taken between the search and the last reply.
	if candidate.AvailabilityStatus != models.CandidateStatusAvailable {
		slog.Warn("Finalizer.Finalize: candidate no longer available", "error", models.ErrCandidateUnavailable, "subject", subject,
			"candidateID", candidate.ID, "status", candidate.AvailabilityStatus)
		return msgCandidateNotFound
	}

	bookingID := f.newID()
	link := MeetingLink(p.Type, candidate.PhoneNumber, bookingID)
	instructions := BuildInstructions(p, link, candidate.PhoneNumber)

	now := f.now()
	booking := models.Booking{
		ID:              bookingID,
		CandidateID:     candidate.ID,
		CandidateName:   candidate.FullName,
		CandidatePhone:  candidate.PhoneNumber,
		RequesterPhone:  subject,
		ScheduledAt:     scheduledAt,
		DurationMinutes: models.DefaultInterviewDuration,
		Platform:        p.Type,
		MeetingLink:     link,
		LinkType:        linkType(p),
		Status:          models.BookingStatusPendingConfirmation,
		CreatedVia:      models.CreatedViaWhatsApp,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	createCtx, cancel := f.sessions.bound(ctx)
	err = f.store.CreateBooking(createCtx, booking)
	cancel()
	if err != nil {
		slog.Error("Finalizer.Finalize: failed to create booking", "error", err, "subject", subject, "bookingID", bookingID)
		return msgBookingFailed
	}
	f.metrics.ObserveBooking(string(booking.Status))
	slog.Info("Finalizer.Finalize: booking created", "subject", subject, "bookingID", bookingID,
		"candidateID", candidate.ID, "scheduledAt", scheduledAt, "platform", p.Type)

	f.notifier.notify(ctx, booking, f.newID(), f.now(), sc.SelectedDateDisplay, sc.SelectedTimeDisplay)

	return FormatInterviewConfirmation(candidate.FullName, sc.SelectedDateDisplay, sc.SelectedTimeDisplay, p.DisplayName, instructions)
}

func (f *Finalizer) clearSession(ctx context.Context, subject string) {
	if err := f.sessions.Clear(ctx, subject); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("Finalizer.clearSession: failed to clear session", "error", err, "subject", subject)
	}
}
