// Package store provides storage backends for InterviewPipe.
//
// It defines the repositories the booking flow depends on and implements them on
// SQLite, PostgreSQL and process memory. Sessions can also be kept in Redis.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

// SessionRepo persists conversation sessions keyed by subject.
type SessionRepo interface {
	// SaveSession upserts the session for s.SubjectID.
	SaveSession(ctx context.Context, s models.Session) error
	// GetSession returns nil, nil when the subject has no stored session.
	// Expiry is not checked here.
	GetSession(ctx context.Context, subjectID string) (*models.Session, error)
	// DeleteSession removes every record for the subject.
	DeleteSession(ctx context.Context, subjectID string) error
	// DeleteExpiredSessions removes sessions whose expires_at is before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// CandidateRepo looks up interviewable candidates.
type CandidateRepo interface {
	SaveCandidate(ctx context.Context, c models.Candidate) error
	// GetCandidate returns nil, nil when no candidate has the id.
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	SearchCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error)
}

// BookingRepo persists interview bookings.
type BookingRepo interface {
	CreateBooking(ctx context.Context, b models.Booking) error
	// GetBooking returns models.ErrBookingNotFound when no booking has the id.
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	// LatestPendingBookingForCandidate returns the most recent pending_confirmation
	// booking whose candidate phone is phone, or nil, nil.
	LatestPendingBookingForCandidate(ctx context.Context, phone string) (*models.Booking, error)
	// UpdateBookingStatus moves a booking to status. Returns models.ErrInvalidTransition
	// when the current status does not allow it.
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, reason string) (*models.Booking, error)
	RescheduleBooking(ctx context.Context, id string, at time.Time) (*models.Booking, error)
}

// PlatformRepo serves the interview platform templates.
type PlatformRepo interface {
	ListPlatformTemplates(ctx context.Context) ([]models.PlatformTemplate, error)
	SavePlatformTemplate(ctx context.Context, p models.PlatformTemplate) error
}

// NotificationRepo records operator notifications.
type NotificationRepo interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, bookingID string) ([]models.Notification, error)
}

// MessageLogRepo keeps the per-phone conversation transcript.
type MessageLogRepo interface {
	AppendMessage(ctx context.Context, m models.ConversationMessage) error
	// RecentMessages returns up to limit messages for phone, oldest first.
	RecentMessages(ctx context.Context, phone string, limit int) ([]models.ConversationMessage, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	SessionRepo
	CandidateRepo
	BookingRepo
	PlatformRepo
	NotificationRepo
	MessageLogRepo
	DedupRepo
	OutboxRepo
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend matching the DSN type.
func New(dsn string) (Store, error) {
	switch DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("store.New: using Postgres store")
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		slog.Debug("store.New: using SQLite store", "path", dsn)
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}

// DefaultPlatformTemplates are seeded into new databases and the memory store.
func DefaultPlatformTemplates() []models.PlatformTemplate {
	return []models.PlatformTemplate{
		{Type: models.PlatformWhatsAppVideo, DisplayName: "WhatsApp Video", SetupInstructions: "No setup required", SortOrder: 1},
		{Type: models.PlatformZoom, DisplayName: "Zoom", RequiresDownload: true, DownloadLink: "https://zoom.us/download", SetupInstructions: "Download Zoom and join with the meeting link", SortOrder: 2},
		{Type: models.PlatformGoogleMeet, DisplayName: "Google Meet", DownloadLink: "https://meet.google.com", SetupInstructions: "Works in any browser", SortOrder: 3},
		{Type: models.PlatformMicrosoftTeams, DisplayName: "Microsoft Teams", RequiresDownload: true, DownloadLink: "https://www.microsoft.com/microsoft-teams/download-app", SetupInstructions: "Download Teams and join with the meeting link", SortOrder: 4},
		{Type: models.PlatformSkype, DisplayName: "Skype", RequiresDownload: true, DownloadLink: "https://www.skype.com/get-skype/", SetupInstructions: "Download Skype and join with the meeting link", SortOrder: 5},
		{Type: models.PlatformPhoneCall, DisplayName: "Phone Call", SetupInstructions: "We will call the candidate's phone", SortOrder: 6},
	}
}

func validateSession(s models.Session) error {
	if s.SubjectID == "" {
		return models.ErrEmptySubject
	}
	if !s.Step.IsValid() {
		return fmt.Errorf("invalid step %q", s.Step)
	}
	return nil
}
