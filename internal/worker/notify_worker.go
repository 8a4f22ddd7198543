package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"livein/internal/amqp"
	"livein/internal/push"
	"livein/internal/storage"
)

// NotifyWorker delivers queued notifications to the recipient's devices.
// The HTTP process enqueues a row and publishes its id over AMQP; this
// worker resolves the device tokens and pushes through the sender.
type NotifyWorker struct {
	storage   *storage.SQLiteRepository
	sender    push.Sender
	batchSize int
}

func NewNotifyWorker(storage *storage.SQLiteRepository, sender push.Sender, batchSize int) *NotifyWorker {
	return &NotifyWorker{
		storage:   storage,
		sender:    sender,
		batchSize: batchSize,
	}
}

// HandleNotificationMessage processes a single notification message from AMQP.
func (w *NotifyWorker) HandleNotificationMessage(ctx context.Context, msg *amqp.NotificationMessage) error {
	slog.InfoContext(ctx, "Processing notification message",
		"notification_id", msg.NotificationID,
		"kind", msg.Kind)

	n, err := w.storage.GetNotification(ctx, msg.NotificationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Row was delivered and cleaned up, or never committed. Nothing
			// to retry; requeueing would loop forever.
			slog.WarnContext(ctx, "Notification row missing, dropping message",
				"notification_id", msg.NotificationID)
			return nil
		}
		return fmt.Errorf("get notification from storage: %w", err)
	}

	if n.Status == storage.NotificationDelivered {
		slog.InfoContext(ctx, "Notification already delivered, skipping",
			"notification_id", n.ID)
		return nil
	}

	return w.deliver(ctx, n)
}

// deliver pushes one notification to every device the recipient registered.
func (w *NotifyWorker) deliver(ctx context.Context, n storage.Notification) error {
	tokens, err := w.storage.ListDeviceTokens(ctx, n.RecipientUID)
	if err != nil {
		return fmt.Errorf("list device tokens: %w", err)
	}

	if len(tokens) == 0 {
		// The partner never registered for push. Mark delivered so the
		// sweep doesn't retry a notification nobody can receive.
		slog.InfoContext(ctx, "No device tokens for recipient, marking delivered",
			"notification_id", n.ID,
			"recipient_uid", n.RecipientUID)
		return w.storage.MarkNotificationDelivered(ctx, n.ID)
	}

	var lastErr error
	sent := 0
	for _, token := range tokens {
		if err := w.sender.Send(ctx, token, n.Title, n.Body); err != nil {
			slog.ErrorContext(ctx, "Failed to send push",
				"notification_id", n.ID,
				"error", err)
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 {
		if markErr := w.storage.MarkNotificationError(ctx, n.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark notification error",
				"notification_id", n.ID, "error", markErr)
		}
		return fmt.Errorf("deliver notification %d: %w", n.ID, lastErr)
	}

	if err := w.storage.MarkNotificationDelivered(ctx, n.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark notification delivered",
			"notification_id", n.ID, "error", err)
		// The push went out; don't fail the message over bookkeeping.
	}

	slog.InfoContext(ctx, "Notification delivered",
		"notification_id", n.ID,
		"kind", n.Kind,
		"devices", sent)

	return nil
}

// ProcessPending delivers notifications still marked pending.
// This is a backup mechanism in case AMQP messages are lost.
func (w *NotifyWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.ListPendingNotifications(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending notifications: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending notifications", "count", len(pending))

	for _, n := range pending {
		if err := w.deliver(ctx, n); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver pending notification",
				"notification_id", n.ID, "error", err)
		}
	}

	return nil
}

// StartupSweep drains pending notifications at worker startup to recover
// from missed AMQP messages or worker downtime.
func (w *NotifyWorker) StartupSweep(ctx context.Context) error {
	pending, err := w.storage.ListPendingNotifications(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending notifications for startup sweep: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending notifications found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending notifications on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, n := range pending {
		if err := w.deliver(ctx, n); err != nil {
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sweep completed",
		"total", len(pending),
		"delivered", successCount,
		"errors", errorCount)

	return nil
}
