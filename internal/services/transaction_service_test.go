package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"livein/internal/core"
	"livein/internal/storage"
	"livein/internal/stream"
)

func testHousehold() core.Household {
	return core.Household{Members: []core.Member{
		{UID: "userA-uid", Name: "Sarah", PIN: "9900"},
		{UID: "userB-uid", Name: "Marcus", PIN: "0099"},
	}}
}

func newServiceUnderTest(t *testing.T) (*TransactionService, *storage.SQLiteRepository, *stream.Broadcaster) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := stream.NewBroadcaster()
	return NewTransactionService(repo, nil, b, testHousehold()), repo, b
}

func validTransaction() core.Transaction {
	return core.Transaction{
		Amount:   "42.50",
		Category: core.CategoryNeeds,
		Item:     "Groceries",
		Partner:  "Sarah",
		AddedBy:  core.Identity{UID: "userA-uid", Name: "Sarah"},
		Desc:     "weekly shop",
	}
}

func TestCreateAssignsServerFields(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceUnderTest(t)

	before := time.Now().Add(-time.Second).UnixMilli()
	stored, err := svc.Create(ctx, validTransaction())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if stored.ID == "" {
		t.Error("stored transaction has no id")
	}
	if stored.Timestamp < before {
		t.Errorf("timestamp %d predates the request", stored.Timestamp)
	}

	txs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(txs) != 1 || txs[0].ID != stored.ID {
		t.Errorf("List() = %+v, want the stored transaction", txs)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceUnderTest(t)

	tests := []struct {
		name   string
		mutate func(*core.Transaction)
		want   error
	}{
		{"malformed amount", func(tx *core.Transaction) { tx.Amount = "abc" }, core.ErrInvalidAmount},
		{"negative amount", func(tx *core.Transaction) { tx.Amount = "-5" }, core.ErrInvalidAmount},
		{"unknown category", func(tx *core.Transaction) { tx.Category = "Luxuries" }, core.ErrInvalidCategory},
		{"stranger partner", func(tx *core.Transaction) { tx.Partner = "Eve" }, core.ErrUnknownPartner},
		{"stranger creator", func(tx *core.Transaction) { tx.AddedBy.UID = "intruder" }, core.ErrUnknownPartner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			if _, err := svc.Create(ctx, tx); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateEnqueuesPartnerNotification(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newServiceUnderTest(t)

	if _, err := svc.Create(ctx, validTransaction()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pending, err := repo.ListPendingNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingNotifications() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending notifications = %d, want 1", len(pending))
	}
	if pending[0].RecipientUID != "userB-uid" {
		t.Errorf("recipient = %q, want the partner userB-uid", pending[0].RecipientUID)
	}
}

func TestCreateBroadcastsSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, _, b := newServiceUnderTest(t)

	ch, cancel := b.Subscribe(testHousehold().ID())
	defer cancel()

	if _, err := svc.Create(ctx, validTransaction()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	select {
	case snap := <-ch:
		if len(snap.Transactions) != 1 {
			t.Errorf("snapshot has %d transactions, want 1", len(snap.Transactions))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot broadcast after create")
	}
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceUnderTest(t)

	stored, err := svc.Create(ctx, validTransaction())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.Delete(ctx, "userB-uid", stored.ID); !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("Delete() by non-owner error = %v, want ErrNotOwner", err)
	}

	if err := svc.Delete(ctx, "userA-uid", stored.ID); err != nil {
		t.Errorf("Delete() by owner error = %v", err)
	}

	txs, _ := svc.List(ctx)
	if len(txs) != 0 {
		t.Errorf("List() after delete = %+v, want empty", txs)
	}
}

func TestDeleteUnknownID(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceUnderTest(t)

	if err := svc.Delete(ctx, "userA-uid", "no-such-id"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
