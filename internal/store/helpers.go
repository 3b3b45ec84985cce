package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const bookingColumns = `id, candidate_id, candidate_name, candidate_phone, requester_phone, scheduled_at, duration_minutes,
	platform, meeting_link, link_type, status, cancel_reason, created_via, created_at, updated_at`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableString maps an optional string pointer onto a nullable column value.
func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func joinSkills(skills []string) string {
	cleaned := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitSkills(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	skills := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			skills = append(skills, p)
		}
	}
	return skills
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var step, contextJSON string
	if err := row.Scan(&session.SubjectID, &step, &contextJSON, &session.CreatedAt, &session.UpdatedAt, &session.ExpiresAt); err != nil {
		return nil, err
	}
	session.Step = models.Step(step)
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &session.Context); err != nil {
			// A corrupt context cannot drive positional replies; start the subject over.
			slog.Error("scanSession: context JSON unmarshal failed", "error", err, "subjectID", session.SubjectID)
			session.Context = models.SessionContext{}
			session.Step = models.StepIdle
		}
	}
	return &session, nil
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var c models.Candidate
	var phone sql.NullString
	var skills, status string
	if err := row.Scan(&c.ID, &c.FullName, &phone, &skills, &c.ExperienceYears, &c.Location, &status, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.PhoneNumber = phone.String
	c.Skills = splitSkills(skills)
	c.AvailabilityStatus = models.CandidateStatus(status)
	return &c, nil
}

// collectCandidates drains rows, applying the filter parts SQL cannot express (skills, limit).
func collectCandidates(rows *sql.Rows, filter models.CandidateFilter) ([]models.Candidate, error) {
	var candidates []models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		if !filter.Matches(*c) {
			continue
		}
		candidates = append(candidates, *c)
		if filter.Limit > 0 && len(candidates) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidate rows: %w", err)
	}
	return candidates, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var candidatePhone, meetingLink, cancelReason sql.NullString
	var platform, status string
	err := row.Scan(&b.ID, &b.CandidateID, &b.CandidateName, &candidatePhone, &b.RequesterPhone, &b.ScheduledAt,
		&b.DurationMinutes, &platform, &meetingLink, &b.LinkType, &status, &cancelReason, &b.CreatedVia,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.CandidatePhone = candidatePhone.String
	if meetingLink.Valid {
		link := meetingLink.String
		b.MeetingLink = &link
	}
	b.CancelReason = cancelReason.String
	b.Platform = models.PlatformType(platform)
	b.Status = models.BookingStatus(status)
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

func collectPlatforms(rows *sql.Rows) ([]models.PlatformTemplate, error) {
	var platforms []models.PlatformTemplate
	for rows.Next() {
		var p models.PlatformTemplate
		var platformType string
		var downloadLink, instructions sql.NullString
		if err := rows.Scan(&platformType, &p.DisplayName, &p.RequiresDownload, &downloadLink, &instructions, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan platform row: %w", err)
		}
		p.Type = models.PlatformType(platformType)
		p.DownloadLink = downloadLink.String
		p.SetupInstructions = instructions.String
		platforms = append(platforms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate platform rows: %w", err)
	}
	return platforms, nil
}

func collectNotifications(rows *sql.Rows) ([]models.Notification, error) {
	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var notificationType string
		var phone, data sql.NullString
		if err := rows.Scan(&n.ID, &n.BookingID, &notificationType, &n.RecipientType, &phone, &n.MessageText, &data, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		n.Type = models.NotificationType(notificationType)
		n.RecipientPhone = phone.String
		n.MessageData = data.String
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}
	return notifications, nil
}

// scanOutboxMessage scans a row selected with outboxColumns.
func scanOutboxMessage(rows *sql.Rows) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

// collectMessagesOldestFirst drains rows selected newest first and reverses them.
func collectMessagesOldestFirst(rows *sql.Rows) ([]models.ConversationMessage, error) {
	var msgs []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(&m.Phone, &m.Sender, &m.Body, &m.MessageType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
