// SQLite-backed Store.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		slog.Debug("SQLite database directory verified/created", "dir", dir)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// sqlite3 allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// SaveSession stores or replaces the session for a subject.
func (s *SQLiteStore) SaveSession(ctx context.Context, session models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	contextJSON, err := json.Marshal(session.Context)
	if err != nil {
		slog.Error("SQLiteStore SaveSession JSON marshal failed", "error", err, "subjectID", session.SubjectID)
		return fmt.Errorf("failed to marshal session context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (subject_id, step, context, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.SubjectID, string(session.Step), string(contextJSON),
		session.CreatedAt.UTC(), session.UpdatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "subjectID", session.SubjectID, "step", session.Step)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "subjectID", session.SubjectID, "step", session.Step)
	return nil
}

// GetSession retrieves the stored session for a subject.
func (s *SQLiteStore) GetSession(ctx context.Context, subjectID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, step, context, created_at, updated_at, expires_at
		FROM sessions WHERE subject_id = ?`, subjectID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetSession not found", "subjectID", subjectID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "subjectID", subjectID)
		return nil, err
	}
	return session, nil
}

// DeleteSession removes the session for a subject.
func (s *SQLiteStore) DeleteSession(ctx context.Context, subjectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE subject_id = ?`, subjectID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "subjectID", subjectID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "subjectID", subjectID)
	return nil
}

// DeleteExpiredSessions removes every session that expired before now.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// SaveCandidate inserts or replaces a candidate profile.
func (s *SQLiteStore) SaveCandidate(ctx context.Context, c models.Candidate) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.AvailabilityStatus == "" {
		c.AvailabilityStatus = models.CandidateStatusAvailable
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candidates (id, full_name, phone_number, skills, experience_years, location, availability_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FullName, nilIfEmpty(c.PhoneNumber), joinSkills(c.Skills), c.ExperienceYears, c.Location,
		string(c.AvailabilityStatus), c.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveCandidate failed", "error", err, "candidateID", c.ID)
		return fmt.Errorf("failed to save candidate: %w", err)
	}
	return nil
}

// GetCandidate retrieves a candidate by id.
func (s *SQLiteStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, skills, experience_years, location, availability_status, created_at
		FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCandidate failed", "error", err, "candidateID", id)
		return nil, err
	}
	return c, nil
}

// SearchCandidates returns candidates matching the filter, ordered by name.
func (s *SQLiteStore) SearchCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	query := `SELECT id, full_name, phone_number, skills, experience_years, location, availability_status, created_at
		FROM candidates WHERE 1=1`
	var args []interface{}
	if filter.Name != "" {
		query += ` AND full_name LIKE ?`
		args = append(args, "%"+strings.TrimSpace(filter.Name)+"%")
	}
	if filter.Status != "" {
		query += ` AND availability_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MinExperience > 0 {
		query += ` AND experience_years >= ?`
		args = append(args, filter.MinExperience)
	}
	if filter.Location != "" {
		query += ` AND location LIKE ?`
		args = append(args, "%"+strings.TrimSpace(filter.Location)+"%")
	}
	query += ` ORDER BY full_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore SearchCandidates query failed", "error", err)
		return nil, fmt.Errorf("failed to search candidates: %w", err)
	}
	defer rows.Close()
	return collectCandidates(rows, filter)
}

// CreateBooking inserts a new booking.
func (s *SQLiteStore) CreateBooking(ctx context.Context, b models.Booking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, candidate_id, candidate_name, candidate_phone, requester_phone, scheduled_at, duration_minutes,
			platform, meeting_link, link_type, status, cancel_reason, created_via, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CandidateID, b.CandidateName, nilIfEmpty(b.CandidatePhone), b.RequesterPhone, b.ScheduledAt.UTC(),
		b.DurationMinutes, string(b.Platform), nullableString(b.MeetingLink), b.LinkType, string(b.Status),
		nilIfEmpty(b.CancelReason), b.CreatedVia, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore CreateBooking failed", "error", err, "bookingID", b.ID)
		return fmt.Errorf("failed to create booking: %w", err)
	}
	slog.Debug("SQLiteStore CreateBooking succeeded", "bookingID", b.ID, "candidateID", b.CandidateID)
	return nil
}

// GetBooking retrieves a booking by id.
func (s *SQLiteStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetBooking failed", "error", err, "bookingID", id)
		return nil, err
	}
	return b, nil
}

// ListBookings returns bookings touching the filter's phone, newest first.
func (s *SQLiteStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []interface{}
	if filter.Phone != "" {
		query += ` AND (requester_phone = ? OR candidate_phone = ?)`
		args = append(args, filter.Phone, filter.Phone)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// LatestPendingBookingForCandidate returns the newest pending booking for a candidate phone.
func (s *SQLiteStore) LatestPendingBookingForCandidate(ctx context.Context, phone string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE candidate_phone = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		phone, string(models.BookingStatusPendingConfirmation))
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LatestPendingBookingForCandidate failed", "error", err, "phone", phone)
		return nil, err
	}
	return b, nil
}

// UpdateBookingStatus transitions a booking, guarding against concurrent changes.
func (s *SQLiteStore) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, reason string) (*models.Booking, error) {
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, status)
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `UPDATE bookings SET status = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), nilIfEmpty(reason), now, id, string(current.Status))
	if err != nil {
		slog.Error("SQLiteStore UpdateBookingStatus failed", "error", err, "bookingID", id)
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: booking %s changed concurrently", models.ErrInvalidTransition, id)
	}
	current.Status = status
	current.CancelReason = reason
	current.UpdatedAt = now
	slog.Debug("SQLiteStore UpdateBookingStatus succeeded", "bookingID", id, "status", status)
	return current, nil
}

// RescheduleBooking moves an active booking to a new time.
func (s *SQLiteStore) RescheduleBooking(ctx context.Context, id string, at time.Time) (*models.Booking, error) {
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.BookingStatusPendingConfirmation && current.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot reschedule %s booking", models.ErrInvalidTransition, current.Status)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `UPDATE bookings SET scheduled_at = ?, updated_at = ? WHERE id = ?`, at.UTC(), now, id); err != nil {
		slog.Error("SQLiteStore RescheduleBooking failed", "error", err, "bookingID", id)
		return nil, fmt.Errorf("failed to reschedule booking: %w", err)
	}
	current.ScheduledAt = at.UTC()
	current.UpdatedAt = now
	return current, nil
}

// ListPlatformTemplates returns platform templates in display order.
func (s *SQLiteStore) ListPlatformTemplates(ctx context.Context) ([]models.PlatformTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform_type, display_name, requires_download, download_link, setup_instructions, sort_order
		FROM platform_templates ORDER BY sort_order ASC, platform_type ASC`)
	if err != nil {
		slog.Error("SQLiteStore ListPlatformTemplates query failed", "error", err)
		return nil, fmt.Errorf("failed to list platform templates: %w", err)
	}
	defer rows.Close()
	return collectPlatforms(rows)
}

// SavePlatformTemplate inserts or replaces a platform template.
func (s *SQLiteStore) SavePlatformTemplate(ctx context.Context, p models.PlatformTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO platform_templates (platform_type, display_name, requires_download, download_link, setup_instructions, sort_order)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(p.Type), p.DisplayName, p.RequiresDownload, nilIfEmpty(p.DownloadLink), nilIfEmpty(p.SetupInstructions), p.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to save platform template: %w", err)
	}
	return nil
}

// CreateNotification records an operator notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, booking_id, notification_type, recipient_type, recipient_phone, message_text, message_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.BookingID, string(n.Type), n.RecipientType, nilIfEmpty(n.RecipientPhone), n.MessageText,
		nilIfEmpty(n.MessageData), n.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore CreateNotification failed", "error", err, "bookingID", n.BookingID)
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the notifications recorded for a booking.
func (s *SQLiteStore) ListNotifications(ctx context.Context, bookingID string) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, booking_id, notification_type, recipient_type, recipient_phone, message_text, message_data, created_at
		FROM notifications WHERE booking_id = ? ORDER BY created_at ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()
	return collectNotifications(rows)
}
