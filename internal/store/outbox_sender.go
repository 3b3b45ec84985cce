package store

import (
	"context"
	"log/slog"
	"time"
)

// OutboxSendFunc delivers one outbox message. A returned error schedules a retry.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

const (
	defaultOutboxPollInterval = 5 * time.Second
	defaultOutboxStaleAfter   = 5 * time.Minute
	defaultOutboxClaimLimit   = 10
	// Retries stop growing after this.
	maxOutboxBackoff = 30 * time.Minute
)

// OutboxSender periodically claims due outbox messages and hands them to sendFunc.
type OutboxSender struct {
	repo           OutboxRepo
	sendFunc       OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	now            func() time.Time
}

// NewOutboxSender creates a new OutboxSender. A non-positive pollInterval uses the default.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = defaultOutboxPollInterval
	}
	return &OutboxSender{
		repo:           repo,
		sendFunc:       sendFunc,
		pollInterval:   pollInterval,
		staleThreshold: defaultOutboxStaleAfter,
		claimLimit:     defaultOutboxClaimLimit,
		now:            time.Now,
	}
}

// RecoverStaleMessages requeues messages left in sending by a crashed process.
// Call once at startup before Run.
func (s *OutboxSender) RecoverStaleMessages(ctx context.Context) error {
	n, err := s.repo.RequeueStaleSendingMessages(ctx, s.now().Add(-s.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll sends one batch and returns how many messages were delivered.
func (s *OutboxSender) poll(ctx context.Context) int {
	now := s.now()
	msgs, err := s.repo.ClaimDueOutboxMessages(ctx, now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.poll: claim failed", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		slog.Debug("OutboxSender.poll: sending message", "id", msg.ID, "recipient", msg.Recipient, "kind", msg.Kind)
		if err := s.sendFunc(ctx, msg); err != nil {
			nextAttempt := now.Add(outboxBackoff(msg.Attempts))
			slog.Warn("OutboxSender.poll: send failed", "id", msg.ID, "attempts", msg.Attempts+1, "nextAttempt", nextAttempt, "error", err)
			if err := s.repo.FailOutboxMessage(ctx, msg.ID, err.Error(), nextAttempt); err != nil {
				slog.Error("OutboxSender.poll: fail message error", "id", msg.ID, "error", err)
			}
			continue
		}
		if err := s.repo.MarkOutboxMessageSent(ctx, msg.ID); err != nil {
			slog.Error("OutboxSender.poll: mark sent error", "id", msg.ID, "error", err)
			continue
		}
		sent++
		slog.Debug("OutboxSender.poll: message sent", "id", msg.ID, "recipient", msg.Recipient)
	}
	return sent
}

// outboxBackoff doubles from 10s per prior attempt: 10s, 20s, 40s, capped.
func outboxBackoff(attempts int) time.Duration {
	if attempts > 16 {
		return maxOutboxBackoff
	}
	d := time.Duration(10*(1<<attempts)) * time.Second
	if d > maxOutboxBackoff {
		return maxOutboxBackoff
	}
	return d
}
