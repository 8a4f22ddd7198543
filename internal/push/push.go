// Package push delivers notifications to registered devices.
package push

import (
	"context"
	"log/slog"
)

// Sender delivers one push message to a single device token.
type Sender interface {
	Send(ctx context.Context, token, title, body string) error
}

// LogSender records deliveries without sending anything. Used when FCM
// is not configured, typically in local development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, token, title, body string) error {
	slog.InfoContext(ctx, "Push delivery (log only)",
		"token_suffix", tokenSuffix(token),
		"title", title)
	return nil
}

func tokenSuffix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return "…" + token[len(token)-8:]
}
