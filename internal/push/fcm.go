package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gfcm "google.golang.org/api/fcm/v1"
	goption "google.golang.org/api/option"
)

// FCMSender sends pushes through the Firebase Cloud Messaging v1 API.
type FCMSender struct {
	svc    *gfcm.Service
	parent string
}

var _ Sender = (*FCMSender)(nil)

// NewFCMSenderFromEnv creates an FCM sender using service account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFCMSenderFromEnv(ctx context.Context, projectID string) (*FCMSender, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("missing FCM project ID")
	}

	credentialsJSON, err := loadCredentials(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := gfcm.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gfcm.FirebaseMessagingScope))
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}

	return &FCMSender{
		svc:    svc,
		parent: "projects/" + projectID,
	}, nil
}

func loadCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		credentialsJSON, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", serviceAccountFile)
		return credentialsJSON, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Send delivers one notification to a device token.
func (s *FCMSender) Send(ctx context.Context, token, title, body string) error {
	if s.svc == nil {
		return errors.New("fcm service not initialized")
	}

	req := &gfcm.SendMessageRequest{
		Message: &gfcm.Message{
			Token: token,
			Notification: &gfcm.Notification{
				Title: title,
				Body:  body,
			},
		},
	}

	_, err := s.svc.Projects.Messages.Send(s.parent, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}

	slog.InfoContext(ctx, "Push delivered", "title", title)
	return nil
}
