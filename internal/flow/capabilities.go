package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

// BookingRequest describes a booking created outside the step-by-step flow.
type BookingRequest struct {
	CandidateID string
	Date        string // YYYY-MM-DD
	Time        string // HH:MM
	Platform    models.PlatformType
}

// Capabilities is the set of operations the assistant may perform on behalf of
// a requester. Mutations are restricted to bookings the requester is party to.
type Capabilities interface {
	SearchCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error)
	ListBookings(ctx context.Context, phone string, status models.BookingStatus) ([]models.Booking, error)
	CreateBooking(ctx context.Context, requester string, req BookingRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, requester, bookingID, reason string) (*models.Booking, error)
	RescheduleBooking(ctx context.Context, requester, bookingID, newTime string) (*models.Booking, error)
}

// StoreCapabilities implements Capabilities over the store.
type StoreCapabilities struct {
	store    store.Store
	loc      *time.Location
	notifier adminNotifier
	newID    func() string
	now      func() time.Time
	metrics  *metrics.Metrics
}

var _ Capabilities = (*StoreCapabilities)(nil)

// NewStoreCapabilities creates a StoreCapabilities. A nil loc means UTC.
func NewStoreCapabilities(st store.Store, loc *time.Location, m *metrics.Metrics) *StoreCapabilities {
	if loc == nil {
		loc = time.UTC
	}
	return &StoreCapabilities{
		store:    st,
		loc:      loc,
		notifier: newAdminNotifier(st, ""),
		newID:    uuid.NewString,
		now:      time.Now,
		metrics:  m,
	}
}

// WithAdminNumber sets the WhatsApp number that receives new booking notices.
func (c *StoreCapabilities) WithAdminNumber(phone string) *StoreCapabilities {
	c.notifier.adminNumber = phone
	return c
}

// SearchCandidates searches available candidates unless the filter names a status.
func (c *StoreCapabilities) SearchCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	if filter.Status == "" {
		filter.Status = models.CandidateStatusAvailable
	}
	if filter.Limit <= 0 || filter.Limit > 20 {
		filter.Limit = 10
	}
	candidates, err := c.store.SearchCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search candidates: %w", err)
	}
	return candidates, nil
}

// ListBookings returns the bookings phone is party to, optionally filtered by status.
func (c *StoreCapabilities) ListBookings(ctx context.Context, phone string, status models.BookingStatus) ([]models.Booking, error) {
	if phone == "" {
		return nil, models.ErrEmptyRecipient
	}
	bookings, err := c.store.ListBookings(ctx, models.BookingFilter{Phone: phone, Status: status, Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// CreateBooking records a pending booking for requester. The platform defaults to WhatsApp video.
func (c *StoreCapabilities) CreateBooking(ctx context.Context, requester string, req BookingRequest) (*models.Booking, error) {
	if req.Platform == "" {
		req.Platform = models.PlatformWhatsAppVideo
	}
	scheduledAt, err := ScheduledAt(req.Date, req.Time, c.loc)
	if err != nil {
		return nil, err
	}
	if !scheduledAt.After(c.now()) {
		return nil, fmt.Errorf("%w: %s is in the past", models.ErrInvalidScheduleTime, scheduledAt.Format(time.RFC3339))
	}

	candidate, err := c.store.GetCandidate(ctx, req.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	if candidate == nil {
		return nil, models.ErrCandidateNotFound
	}
	if candidate.AvailabilityStatus != models.CandidateStatusAvailable {
		return nil, fmt.Errorf("%w: %s is %s", models.ErrCandidateUnavailable, candidate.FullName, candidate.AvailabilityStatus)
	}

	platform, err := c.platform(ctx, req.Platform)
	if err != nil {
		return nil, err
	}

	now := c.now()
	id := c.newID()
	b := models.Booking{
		ID:              id,
		CandidateID:     candidate.ID,
		CandidateName:   candidate.FullName,
		CandidatePhone:  candidate.PhoneNumber,
		RequesterPhone:  requester,
		ScheduledAt:     scheduledAt,
		DurationMinutes: models.DefaultInterviewDuration,
		Platform:        platform.Type,
		MeetingLink:     MeetingLink(platform.Type, candidate.PhoneNumber, id),
		LinkType:        linkType(platform),
		Status:          models.BookingStatusPendingConfirmation,
		CreatedVia:      models.CreatedViaAssistant,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	c.metrics.ObserveBooking(string(b.Status))
	slog.Info("StoreCapabilities.CreateBooking: booking created", "requester", requester, "bookingID", id, "candidateID", candidate.ID)

	local := scheduledAt.In(c.loc)
	c.notifier.notify(ctx, b, c.newID(), now, local.Format(dateDisplayLayout), local.Format(timeDisplayLayout))
	return &b, nil
}

// CancelBooking cancels a booking requester is party to.
func (c *StoreCapabilities) CancelBooking(ctx context.Context, requester, bookingID, reason string) (*models.Booking, error) {
	if len(reason) > models.MaxCancelReasonLength {
		return nil, models.ErrCancelReasonTooLong
	}
	if _, err := c.ownedBooking(ctx, requester, bookingID); err != nil {
		return nil, err
	}
	b, err := c.store.UpdateBookingStatus(ctx, bookingID, models.BookingStatusCancelled, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	c.metrics.ObserveBooking(string(b.Status))
	slog.Info("StoreCapabilities.CancelBooking: booking cancelled", "requester", requester, "bookingID", bookingID)
	return b, nil
}

// RescheduleBooking moves a booking requester is party to. newTime is RFC3339
// or "YYYY-MM-DD HH:MM" in the configured timezone.
func (c *StoreCapabilities) RescheduleBooking(ctx context.Context, requester, bookingID, newTime string) (*models.Booking, error) {
	at, err := c.parseTime(newTime)
	if err != nil {
		return nil, err
	}
	if !at.After(c.now()) {
		return nil, fmt.Errorf("%w: %s is in the past", models.ErrInvalidScheduleTime, newTime)
	}
	if _, err := c.ownedBooking(ctx, requester, bookingID); err != nil {
		return nil, err
	}
	b, err := c.store.RescheduleBooking(ctx, bookingID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to reschedule booking: %w", err)
	}
	slog.Info("StoreCapabilities.RescheduleBooking: booking rescheduled", "requester", requester, "bookingID", bookingID, "scheduledAt", at)
	return b, nil
}

func (c *StoreCapabilities) ownedBooking(ctx context.Context, requester, bookingID string) (*models.Booking, error) {
	b, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequesterPhone != requester && b.CandidatePhone != requester {
		// Report someone else's booking as missing rather than confirming it exists.
		return nil, models.ErrBookingNotFound
	}
	return b, nil
}

func (c *StoreCapabilities) platform(ctx context.Context, t models.PlatformType) (models.PlatformTemplate, error) {
	platforms, err := c.store.ListPlatformTemplates(ctx)
	if err != nil {
		return models.PlatformTemplate{}, fmt.Errorf("failed to list platforms: %w", err)
	}
	for _, p := range platforms {
		if p.Type == t {
			return p, nil
		}
	}
	return models.PlatformTemplate{}, fmt.Errorf("%w: %s", models.ErrPlatformNotFound, t)
}

func (c *StoreCapabilities) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateValueLayout+" "+timeValueLayout, s, c.loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateValueLayout+"T"+timeValueLayout, s, c.loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", models.ErrInvalidScheduleTime, s)
}
