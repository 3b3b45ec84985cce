package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

// DefaultNotificationTimeout bounds the best-effort admin notification writes.
const DefaultNotificationTimeout = 5 * time.Second

// adminNotifier records the admin_approval_needed notification for a new
// booking and queues the WhatsApp copy when an admin number is configured.
type adminNotifier struct {
	store       store.Store
	adminNumber string
	timeout     time.Duration
}

func newAdminNotifier(st store.Store, adminNumber string) adminNotifier {
	return adminNotifier{store: st, adminNumber: adminNumber, timeout: DefaultNotificationTimeout}
}

// notify never fails the booking; every error is logged.
func (n adminNotifier) notify(ctx context.Context, b models.Booking, id string, createdAt time.Time, dateDisplay, timeDisplay string) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	text := fmt.Sprintf("New interview request: %s on %s at %s", b.CandidateName, dateDisplay, timeDisplay)
	data, err := json.Marshal(map[string]string{
		"interview_id":   b.ID,
		"maid_name":      b.CandidateName,
		"scheduled_date": b.ScheduledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("adminNotifier.notify: failed to marshal notification data", "error", err, "bookingID", b.ID)
	}

	notification := models.Notification{
		ID:            id,
		BookingID:     b.ID,
		Type:          models.NotificationAdminApprovalNeeded,
		RecipientType: "admin",
		MessageText:   text,
		MessageData:   string(data),
		CreatedAt:     createdAt,
	}
	if err := n.store.CreateNotification(ctx, notification); err != nil {
		slog.Warn("adminNotifier.notify: failed to record notification", "error", err, "bookingID", b.ID)
	}

	if n.adminNumber == "" {
		return
	}
	payload, err := json.Marshal(store.OutboxPayload{Body: text, BookingID: b.ID})
	if err != nil {
		slog.Warn("adminNotifier.notify: failed to marshal outbox payload", "error", err, "bookingID", b.ID)
		return
	}
	outboxID, err := n.store.EnqueueOutboxMessage(ctx, n.adminNumber, store.OutboxKindAdminNotification, string(payload), b.ID)
	if err != nil {
		slog.Warn("adminNotifier.notify: failed to enqueue admin message", "error", err, "bookingID", b.ID)
		return
	}
	slog.Debug("adminNotifier.notify: admin message queued", "bookingID", b.ID, "outboxID", outboxID)
}
