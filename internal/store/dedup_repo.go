package store

import (
	"context"
	"time"
)

// DedupRecord tracks one inbound webhook delivery by its provider message id.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SenderPhone string     `json:"sender_phone"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against processing a redelivered inbound message twice.
type DedupRepo interface {
	// IsDuplicate reports whether the message id has been recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound records a delivery. It returns false when the id was
	// already recorded, in which case the caller must not process it again.
	RecordInbound(ctx context.Context, messageID, senderPhone string) (bool, error)

	// MarkProcessed stamps processed_at once a reply has been produced.
	MarkProcessed(ctx context.Context, messageID string) error
}
