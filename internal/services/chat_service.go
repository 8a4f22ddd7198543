package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"livein/internal/amqp"
	"livein/internal/core"
	"livein/internal/storage"
)

// ChatService persists chat messages and triggers partner notifications.
// It implements chat.Messenger for the websocket hub.
type ChatService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	household  core.Household
	roomID     string
}

func NewChatService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, household core.Household) *ChatService {
	return &ChatService{
		storage:    storage,
		amqpClient: amqpClient,
		household:  household,
		roomID:     core.RoomID(household.Members[0].UID, household.Members[1].UID),
	}
}

// Send validates, stores and returns the message in its stored form.
func (s *ChatService) Send(ctx context.Context, sender core.Identity, body string) (core.ChatMessage, error) {
	if _, ok := s.household.MemberByUID(sender.UID); !ok {
		return core.ChatMessage{}, core.ErrUnknownPartner
	}

	msg := core.ChatMessage{
		Message:    strings.TrimSpace(body),
		SenderID:   sender.UID,
		SenderName: sender.Name,
	}
	if err := msg.Validate(); err != nil {
		return core.ChatMessage{}, err
	}

	stored, err := s.storage.AppendChatMessage(ctx, s.roomID, msg)
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("save chat message: %w", err)
	}

	s.notifyPartner(ctx, stored)

	return stored, nil
}

// History returns the most recent messages, oldest first.
func (s *ChatService) History(ctx context.Context, limit int) ([]core.ChatMessage, error) {
	return s.storage.ListChatMessages(ctx, s.roomID, limit)
}

func (s *ChatService) notifyPartner(ctx context.Context, msg core.ChatMessage) {
	partner, ok := s.household.OtherMember(msg.SenderID)
	if !ok {
		return
	}

	notificationID, err := s.storage.EnqueueNotification(ctx, storage.Notification{
		Kind:         amqp.KindChatMessage,
		RecipientUID: partner.UID,
		Title:        msg.SenderName,
		Body:         previewBody(msg.Message),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue chat notification", "error", err)
		return
	}

	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, notification left for sweep",
			"notification_id", notificationID)
		return
	}

	if err := s.amqpClient.PublishNotification(ctx, notificationID, amqp.KindChatMessage); err != nil {
		slog.ErrorContext(ctx, "Failed to publish chat notification",
			"notification_id", notificationID, "error", err)
	}
}

// previewBody truncates long messages for the push banner.
func previewBody(message string) string {
	const maxPreview = 120
	if len(message) <= maxPreview {
		return message
	}
	cut := maxPreview
	// Back up to a rune boundary so the banner never shows mojibake.
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + "…"
}
