package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/util"
)

// InMemoryStore is a process-local Store used by tests and demo runs.
type InMemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]models.Session
	candidates    map[string]models.Candidate
	bookings      map[string]models.Booking
	platforms     map[models.PlatformType]models.PlatformTemplate
	notifications []models.Notification
	messages      []models.ConversationMessage
	dedup         map[string]DedupRecord
	outbox        map[string]OutboxMessage
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store seeded with the default platform templates.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		sessions:   make(map[string]models.Session),
		candidates: make(map[string]models.Candidate),
		bookings:   make(map[string]models.Booking),
		platforms:  make(map[models.PlatformType]models.PlatformTemplate),
		dedup:      make(map[string]DedupRecord),
		outbox:     make(map[string]OutboxMessage),
	}
	for _, p := range DefaultPlatformTemplates() {
		s.platforms[p.Type] = p
	}
	return s
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) SaveSession(ctx context.Context, session models.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SubjectID] = cloneSession(session)
	return nil
}

func (s *InMemoryStore) GetSession(ctx context.Context, subjectID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[subjectID]
	if !ok {
		return nil, nil
	}
	session = cloneSession(session)
	return &session, nil
}

func (s *InMemoryStore) DeleteSession(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, subjectID)
	return nil
}

func (s *InMemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SaveCandidate(ctx context.Context, c models.Candidate) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.AvailabilityStatus == "" {
		c.AvailabilityStatus = models.CandidateStatusAvailable
	}
	c.Skills = append([]string(nil), c.Skills...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = c
	return nil
}

func (s *InMemoryStore) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) SearchCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	s.mu.RLock()
	all := make([]models.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		all = append(all, c)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].FullName == all[j].FullName {
			return all[i].ID < all[j].ID
		}
		return all[i].FullName < all[j].FullName
	})
	var out []models.Candidate
	for _, c := range all {
		if !filter.Matches(c) {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateBooking(ctx context.Context, b models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("failed to create booking: id %s already exists", b.ID)
	}
	s.bookings[b.ID] = b
	return nil
}

func (s *InMemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	return &b, nil
}

// sortedBookings returns bookings newest first. Callers hold the lock.
func (s *InMemoryStore) sortedBookings() []models.Booking {
	all := make([]models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all
}

func (s *InMemoryStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Booking
	for _, b := range s.sortedBookings() {
		if filter.Phone != "" && b.RequesterPhone != filter.Phone && b.CandidatePhone != filter.Phone {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestPendingBookingForCandidate(ctx context.Context, phone string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.sortedBookings() {
		if b.CandidatePhone == phone && b.Status == models.BookingStatusPendingConfirmation {
			return &b, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, reason string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	if !b.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, b.Status, status)
	}
	b.Status = status
	b.CancelReason = reason
	b.UpdatedAt = time.Now()
	s.bookings[id] = b
	return &b, nil
}

func (s *InMemoryStore) RescheduleBooking(ctx context.Context, id string, at time.Time) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	if b.Status != models.BookingStatusPendingConfirmation && b.Status != models.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot reschedule %s booking", models.ErrInvalidTransition, b.Status)
	}
	b.ScheduledAt = at
	b.UpdatedAt = time.Now()
	s.bookings[id] = b
	return &b, nil
}

func (s *InMemoryStore) ListPlatformTemplates(ctx context.Context) ([]models.PlatformTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PlatformTemplate, 0, len(s.platforms))
	for _, p := range s.platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder == out[j].SortOrder {
			return out[i].Type < out[j].Type
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

func (s *InMemoryStore) SavePlatformTemplate(ctx context.Context, p models.PlatformTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platforms[p.Type] = p
	return nil
}

func (s *InMemoryStore) CreateNotification(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *InMemoryStore) ListNotifications(ctx context.Context, bookingID string) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.BookingID == bookingID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, m models.ConversationMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *InMemoryStore) RecentMessages(ctx context.Context, phone string, limit int) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationMessage
	for i := len(s.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.messages[i].Phone == phone {
			out = append(out, s.messages[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, senderPhone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, SenderPhone: senderPhone, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(ctx context.Context, recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusSent && m.Status != OutboxStatusCanceled {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	m := OutboxMessage{
		ID:          util.GenerateOutboxID(),
		Recipient:   recipient,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox[m.ID] = m
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []OutboxMessage
	for _, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		lockedAt := now
		due[i].Status = OutboxStatusSending
		due[i].LockedAt = &lockedAt
		due[i].UpdatedAt = now
		s.outbox[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Status = OutboxStatusSent
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	s.outbox[id] = m
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Status = OutboxStatusQueued
	m.Attempts++
	m.LastError = errMsg
	m.NextAttemptAt = &nextAttemptAt
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	s.outbox[id] = m
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now()
			s.outbox[id] = m
			n++
		}
	}
	return n, nil
}

// OutboxMessages returns a snapshot of every outbox message; used by tests.
func (s *InMemoryStore) OutboxMessages() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// cloneSession deep-copies the option slices so callers cannot mutate stored state.
func cloneSession(s models.Session) models.Session {
	c := s.Context
	c.CandidateOptions = append([]models.CandidateOption(nil), c.CandidateOptions...)
	c.DateOptions = append([]models.DateOption(nil), c.DateOptions...)
	c.TimeOptions = append([]models.TimeSlot(nil), c.TimeOptions...)
	c.PlatformOptions = append([]models.PlatformTemplate(nil), c.PlatformOptions...)
	s.Context = c
	return s
}
