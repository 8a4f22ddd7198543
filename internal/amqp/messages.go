package amqp

import (
	"encoding/json"
	"time"
)

// Notification kinds routed through the broker.
const (
	KindTransactionCreated = "transaction.created"
	KindTransactionDeleted = "transaction.deleted"
	KindChatMessage        = "chat.message"
)

// NotificationMessage is a lightweight pointer into the notifications table.
// It carries only the queued row id; the worker fetches title, body and
// recipient from the database so the broker never sees message content.
type NotificationMessage struct {
	NotificationID int64     `json:"notification_id"`
	Kind           string    `json:"kind"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewNotificationMessage(id int64, kind string) *NotificationMessage {
	return &NotificationMessage{
		NotificationID: id,
		Kind:           kind,
		Timestamp:      time.Now(),
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
