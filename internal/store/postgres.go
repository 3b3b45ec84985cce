// PostgreSQL-backed Store.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// newPostgresStoreWithDB wraps an existing handle; used by tests.
func newPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

// SaveSession stores or updates the session for a subject.
func (s *PostgresStore) SaveSession(ctx context.Context, session models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	contextJSON, err := json.Marshal(session.Context)
	if err != nil {
		slog.Error("PostgresStore SaveSession JSON marshal failed", "error", err, "subjectID", session.SubjectID)
		return fmt.Errorf("failed to marshal session context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (subject_id, step, context, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id)
		DO UPDATE SET step = EXCLUDED.step, context = EXCLUDED.context,
			updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		session.SubjectID, string(session.Step), string(contextJSON),
		session.CreatedAt, session.UpdatedAt, session.ExpiresAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "subjectID", session.SubjectID, "step", session.Step)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "subjectID", session.SubjectID, "step", session.Step)
	return nil
}

// GetSession retrieves the stored session for a subject.
func (s *PostgresStore) GetSession(ctx context.Context, subjectID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, step, context, created_at, updated_at, expires_at
		FROM sessions WHERE subject_id = $1`, subjectID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetSession not found", "subjectID", subjectID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "subjectID", subjectID)
		return nil, err
	}
	return session, nil
}

// DeleteSession removes the session for a subject.
func (s *PostgresStore) DeleteSession(ctx context.Context, subjectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE subject_id = $1`, subjectID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "subjectID", subjectID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired before now.
func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// SaveCandidate inserts or updates a candidate profile.
func (s *PostgresStore) SaveCandidate(ctx context.Context, c models.Candidate) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.AvailabilityStatus == "" {
		c.AvailabilityStatus = models.CandidateStatusAvailable
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (id, full_name, phone_number, skills, experience_years, location, availability_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, phone_number = EXCLUDED.phone_number,
			skills = EXCLUDED.skills, experience_years = EXCLUDED.experience_years, location = EXCLUDED.location,
			availability_status = EXCLUDED.availability_status`,
		c.ID, c.FullName, nilIfEmpty(c.PhoneNumber), joinSkills(c.Skills), c.ExperienceYears, c.Location,
		string(c.AvailabilityStatus), c.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveCandidate failed", "error", err, "candidateID", c.ID)
		return fmt.Errorf("failed to save candidate: %w", err)
	}
	return nil
}

// GetCandidate retrieves a candidate by id.
func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, skills, experience_years, location, availability_status, created_at
		FROM candidates WHERE id = $1`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCandidate failed", "error", err, "candidateID", id)
		return nil, err
	}
	return c, nil
}

// SearchCandidates returns candidates matching the filter, ordered by name.
func (s *PostgresStore) SearchCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	query := `SELECT id, full_name, phone_number, skills, experience_years, location, availability_status, created_at
		FROM candidates WHERE 1=1`
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Name != "" {
		query += ` AND full_name ILIKE ` + next("%"+strings.TrimSpace(filter.Name)+"%")
	}
	if filter.Status != "" {
		query += ` AND availability_status = ` + next(string(filter.Status))
	}
	if filter.MinExperience > 0 {
		query += ` AND experience_years >= ` + next(filter.MinExperience)
	}
	if filter.Location != "" {
		query += ` AND location ILIKE ` + next("%"+strings.TrimSpace(filter.Location)+"%")
	}
	query += ` ORDER BY full_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore SearchCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to search candidates: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows, filter)
}

// CreateBooking inserts a new booking.
func (s *PostgresStore) CreateBooking(ctx context.Context, b models.Booking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, candidate_id, candidate_name, candidate_phone, requester_phone, scheduled_at, duration_minutes,
			platform, meeting_link, link_type, status, cancel_reason, created_via, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		b.ID, b.CandidateID, b.CandidateName, nilIfEmpty(b.CandidatePhone), b.RequesterPhone, b.ScheduledAt,
		b.DurationMinutes, string(b.Platform), nullableString(b.MeetingLink), b.LinkType, string(b.Status),
		nilIfEmpty(b.CancelReason), b.CreatedVia, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateBooking failed", "error", err, "bookingID", b.ID)
		return fmt.Errorf("failed to create booking: %w", err)
	}
	slog.Debug("PostgresStore CreateBooking succeeded", "bookingID", b.ID, "candidateID", b.CandidateID)
	return nil
}

// GetBooking retrieves a booking by id.
func (s *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetBooking failed", "error", err, "bookingID", id)
		return nil, err
	}
	return b, nil
}

// ListBookings returns bookings touching the filter's phone, newest first.
func (s *PostgresStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []interface{}
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		query += fmt.Sprintf(` AND (requester_phone = $%d OR candidate_phone = $%d)`, len(args), len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore ListBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// LatestPendingBookingForCandidate returns the newest pending booking for a candidate phone.
func (s *PostgresStore) LatestPendingBookingForCandidate(ctx context.Context, phone string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE candidate_phone = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		phone, string(models.BookingStatusPendingConfirmation))
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LatestPendingBookingForCandidate failed", "error", err, "phone", phone)
		return nil, err
	}
	return b, nil
}

// UpdateBookingStatus transitions a booking in a single guarded statement.
func (s *PostgresStore) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, reason string) (*models.Booking, error) {
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, status)
	}
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `UPDATE bookings SET status = $1, cancel_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(status), nilIfEmpty(reason), now, id, string(current.Status))
	if err != nil {
		slog.Error("PostgresStore UpdateBookingStatus failed", "error", err, "bookingID", id)
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: booking %s changed concurrently", models.ErrInvalidTransition, id)
	}
	current.Status = status
	current.CancelReason = reason
	current.UpdatedAt = now
	return current, nil
}

// RescheduleBooking moves an active booking to a new time.
func (s *PostgresStore) RescheduleBooking(ctx context.Context, id string, at time.Time) (*models.Booking, error) {
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.BookingStatusPendingConfirmation && current.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot reschedule %s booking", models.ErrInvalidTransition, current.Status)
	}
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `UPDATE bookings SET scheduled_at = $1, updated_at = $2 WHERE id = $3`, at, now, id); err != nil {
		slog.Error("PostgresStore RescheduleBooking failed", "error", err, "bookingID", id)
		return nil, fmt.Errorf("failed to reschedule booking: %w", err)
	}
	current.ScheduledAt = at
	current.UpdatedAt = now
	return current, nil
}

// ListPlatformTemplates returns platform templates in display order.
func (s *PostgresStore) ListPlatformTemplates(ctx context.Context) ([]models.PlatformTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform_type, display_name, requires_download, download_link, setup_instructions, sort_order
		FROM platform_templates ORDER BY sort_order ASC, platform_type ASC`)
	if err != nil {
		slog.Error("PostgresStore ListPlatformTemplates query failed", "error", err)
		return nil, fmt.Errorf("failed to list platform templates: %w", err)
	}
	defer rows.Close()
	return collectPlatforms(rows)
}

// SavePlatformTemplate inserts or updates a platform template.
func (s *PostgresStore) SavePlatformTemplate(ctx context.Context, p models.PlatformTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_templates (platform_type, display_name, requires_download, download_link, setup_instructions, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (platform_type) DO UPDATE SET display_name = EXCLUDED.display_name,
			requires_download = EXCLUDED.requires_download, download_link = EXCLUDED.download_link,
			setup_instructions = EXCLUDED.setup_instructions, sort_order = EXCLUDED.sort_order`,
		string(p.Type), p.DisplayName, p.RequiresDownload, nilIfEmpty(p.DownloadLink), nilIfEmpty(p.SetupInstructions), p.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to save platform template: %w", err)
	}
	return nil
}

// CreateNotification records an operator notification.
func (s *PostgresStore) CreateNotification(ctx context.Context, n models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, booking_id, notification_type, recipient_type, recipient_phone, message_text, message_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.BookingID, string(n.Type), n.RecipientType, nilIfEmpty(n.RecipientPhone), n.MessageText,
		nilIfEmpty(n.MessageData), n.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateNotification failed", "error", err, "bookingID", n.BookingID)
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the notifications recorded for a booking.
func (s *PostgresStore) ListNotifications(ctx context.Context, bookingID string) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, booking_id, notification_type, recipient_type, recipient_phone, message_text, message_data, created_at
		FROM notifications WHERE booking_id = $1 ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}
