package services

import (
	"context"
	"fmt"
	"log/slog"

	"livein/internal/amqp"
	"livein/internal/core"
	"livein/internal/storage"
	"livein/internal/stream"
)

// TransactionService orchestrates transaction writes across SQLite, AMQP
// and the live snapshot stream. SQLite is the source of truth; the push
// pipeline and the stream are best effort on top of a committed write.
type TransactionService struct {
	storage     *storage.SQLiteRepository
	amqpClient  *amqp.Client
	broadcaster *stream.Broadcaster
	household   core.Household
}

func NewTransactionService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, broadcaster *stream.Broadcaster, household core.Household) *TransactionService {
	return &TransactionService{
		storage:     storage,
		amqpClient:  amqpClient,
		broadcaster: broadcaster,
		household:   household,
	}
}

// Create validates and saves a transaction, then notifies the partner and
// rebroadcasts the household snapshot. A saved transaction is never rolled
// back over notification failures.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if _, ok := s.household.MemberByUID(tx.AddedBy.UID); !ok {
		return core.Transaction{}, core.ErrUnknownPartner
	}
	if !s.household.HasPartner(tx.Partner) {
		return core.Transaction{}, core.ErrUnknownPartner
	}

	stored, err := s.storage.AppendTransaction(ctx, s.household.ID(), tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	title := "New transaction"
	body := fmt.Sprintf("%s added %s for %s", stored.AddedBy.Name, stored.Item, stored.Amount)
	s.notifyPartner(ctx, stored.AddedBy.UID, amqp.KindTransactionCreated, title, body)

	s.rebroadcast(ctx)

	return stored, nil
}

// Delete removes a transaction after an ownership check. Only the member
// who logged a record may remove it.
func (s *TransactionService) Delete(ctx context.Context, requesterUID, id string) error {
	tx, err := s.storage.GetTransaction(ctx, s.household.ID(), id)
	if err != nil {
		return err
	}
	if tx.AddedBy.UID != requesterUID {
		return core.ErrNotOwner
	}

	if err := s.storage.DeleteTransaction(ctx, s.household.ID(), id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	title := "Transaction removed"
	body := fmt.Sprintf("%s removed %s (%s)", tx.AddedBy.Name, tx.Item, tx.Amount)
	s.notifyPartner(ctx, requesterUID, amqp.KindTransactionDeleted, title, body)

	s.rebroadcast(ctx)

	return nil
}

// List returns the household's full transaction snapshot.
func (s *TransactionService) List(ctx context.Context) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx, s.household.ID())
}

// notifyPartner queues a push for the other member and publishes a pointer
// to the row over AMQP. Failures are logged, never propagated.
func (s *TransactionService) notifyPartner(ctx context.Context, actorUID, kind, title, body string) {
	partner, ok := s.household.OtherMember(actorUID)
	if !ok {
		return
	}

	notificationID, err := s.storage.EnqueueNotification(ctx, storage.Notification{
		Kind:         kind,
		RecipientUID: partner.UID,
		Title:        title,
		Body:         body,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue notification",
			"kind", kind, "error", err)
		return
	}

	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, notification left for sweep",
			"notification_id", notificationID)
		return
	}

	if err := s.amqpClient.PublishNotification(ctx, notificationID, kind); err != nil {
		// The worker's periodic sweep picks the row up later.
		slog.ErrorContext(ctx, "Failed to publish notification message",
			"notification_id", notificationID, "error", err)
	}
}

func (s *TransactionService) rebroadcast(ctx context.Context) {
	if s.broadcaster == nil {
		return
	}
	txs, err := s.storage.ListTransactions(ctx, s.household.ID())
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load snapshot for broadcast", "error", err)
		return
	}
	s.broadcaster.Broadcast(s.household.ID(), txs)
}

// Close releases storage and AMQP connections.
func (s *TransactionService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %v", errs)
	}

	return nil
}
