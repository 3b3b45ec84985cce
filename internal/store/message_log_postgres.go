package store

import (
	"context"
	"fmt"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
)

func (s *PostgresStore) AppendMessage(ctx context.Context, m models.ConversationMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (phone, sender, body, message_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.Phone, m.Sender, m.Body, m.MessageType, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append conversation message: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, phone string, limit int) ([]models.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, sender, body, message_type, created_at FROM conversation_messages
		 WHERE phone = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation messages: %w", err)
	}
	defer rows.Close()
	return collectMessagesOldestFirst(rows)
}
