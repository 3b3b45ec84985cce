package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const (
	// DefaultSessionTTL is how long an idle booking conversation stays resumable.
	DefaultSessionTTL = 10 * time.Minute
	// DefaultSessionStoreTimeout bounds every individual session store call.
	DefaultSessionStoreTimeout = 3 * time.Second
)

// SessionStore is the get/put/merge/clear/sweep view of conversation state
// the dispatcher works against. Expiry is enforced on read.
type SessionStore struct {
	repo    store.SessionRepo
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewSessionStore wraps repo. Non-positive durations fall back to the defaults.
func NewSessionStore(repo store.SessionRepo, ttl, timeout time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if timeout <= 0 {
		timeout = DefaultSessionStoreTimeout
	}
	return &SessionStore{repo: repo, ttl: ttl, timeout: timeout, now: time.Now}
}

// TTL returns the configured session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// bound limits a single store call to the configured store timeout.
func (s *SessionStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns the live session for subject, or nil. Store failures are logged
// and reported as absent so the caller starts over rather than failing.
func (s *SessionStore) Get(ctx context.Context, subject string) *models.Session {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.repo.GetSession(callCtx, subject)
	if err != nil {
		slog.Warn("SessionStore.Get: session read failed, treating as absent", "error", err, "subject", subject)
		return nil
	}
	if session == nil {
		return nil
	}
	if session.Expired(s.now()) {
		slog.Debug("SessionStore.Get: session expired", "subject", subject, "expiresAt", session.ExpiresAt)
		return nil
	}
	return session
}

// Put upserts the session and pushes its expiry to now + TTL.
func (s *SessionStore) Put(ctx context.Context, subject string, step models.Step, sc models.SessionContext) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	session := models.Session{
		SubjectID: subject,
		Step:      step,
		Context:   sc,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.SaveSession(callCtx, session); err != nil {
		slog.Error("SessionStore.Put: failed to save session", "error", err, "subject", subject, "step", step)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("SessionStore.Put: session saved", "subject", subject, "step", step, "expiresAt", session.ExpiresAt)
	return nil
}

// MergeContext overlays partial onto the live session's context and refreshes
// its expiry. It does nothing when no live session exists.
func (s *SessionStore) MergeContext(ctx context.Context, subject string, partial models.SessionContext) error {
	session := s.Get(ctx, subject)
	if session == nil {
		slog.Debug("SessionStore.MergeContext: no live session, skipping", "subject", subject)
		return nil
	}
	return s.Put(ctx, subject, session.Step, session.Context.Merge(partial))
}

// Clear deletes every record of subject.
func (s *SessionStore) Clear(ctx context.Context, subject string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.DeleteSession(callCtx, subject); err != nil {
		slog.Error("SessionStore.Clear: failed to delete session", "error", err, "subject", subject)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Sweep deletes every expired session and returns how many were removed.
func (s *SessionStore) Sweep(ctx context.Context) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.DeleteExpiredSessions(callCtx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	if n > 0 {
		slog.Debug("SessionStore.Sweep: removed expired sessions", "count", n)
	}
	return n, nil
}
