package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"livein/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// NotificationStatus values for the notifications queue.
const (
	NotificationPending   = "pending"
	NotificationDelivered = "delivered"
	NotificationError     = "error"
)

// Notification is one queued push delivery for the notifier worker.
type Notification struct {
	ID           int64
	Kind         string
	RecipientUID string
	Title        string
	Body         string
	Status       string
	Attempts     int
	CreatedAt    time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping verifies the database connection, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListMembers returns the household profiles, stable-ordered by uid.
func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uid, name, pin, avatar_url FROM members ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		var m core.Member
		if err := rows.Scan(&m.UID, &m.Name, &m.PIN, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember looks one profile up by uid.
func (r *SQLiteRepository) GetMember(ctx context.Context, uid string) (core.Member, error) {
	var m core.Member
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, name, pin, avatar_url FROM members WHERE uid = ?`, uid).
		Scan(&m.UID, &m.Name, &m.PIN, &m.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, ErrNotFound
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %s: %w", uid, err)
	}
	return m, nil
}

// AppendTransaction stores a new record, assigning the id and the server
// timestamp. Clients never supply either: the server clock is the one
// source of truth, so the two devices can't skew each other's history.
func (r *SQLiteRepository) AppendTransaction(ctx context.Context, householdID string, tx core.Transaction) (core.Transaction, error) {
	tx.ID = uuid.NewString()
	tx.Timestamp = time.Now().UnixMilli()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, household_id, amount, category, item, partner, added_by_uid, added_by_name, description, timestamp_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, householdID, tx.Amount, string(tx.Category), tx.Item, tx.Partner,
		tx.AddedBy.UID, tx.AddedBy.Name, tx.Desc, tx.Timestamp)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", tx.ID,
		"household_id", householdID,
		"category", tx.Category,
		"partner", tx.Partner,
		"amount", tx.Amount)

	return tx, nil
}

// ListTransactions returns the full snapshot for a household, oldest first.
// The UI reverses for display; aggregation is order-independent anyway.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, householdID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, amount, category, item, partner, added_by_uid, added_by_name, description, timestamp_ms
		 FROM transactions WHERE household_id = ? ORDER BY timestamp_ms`, householdID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var category string
		if err := rows.Scan(&t.ID, &t.Amount, &category, &t.Item, &t.Partner,
			&t.AddedBy.UID, &t.AddedBy.Name, &t.Desc, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Category = core.Category(category)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// GetTransaction fetches a single record scoped to its household.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, householdID, id string) (core.Transaction, error) {
	var t core.Transaction
	var category string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, amount, category, item, partner, added_by_uid, added_by_name, description, timestamp_ms
		 FROM transactions WHERE household_id = ? AND id = ?`, householdID, id).
		Scan(&t.ID, &t.Amount, &category, &t.Item, &t.Partner,
			&t.AddedBy.UID, &t.AddedBy.Name, &t.Desc, &t.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	t.Category = core.Category(category)
	return t, nil
}

// DeleteTransaction removes one record. Ownership is checked by the caller;
// the store only scopes by household.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, householdID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE household_id = ? AND id = ?`, householdID, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "household_id", householdID)
	return nil
}

// GetAllocation returns a user's budget configuration, falling back to the
// 50/30/20 default when nothing has been saved yet.
func (r *SQLiteRepository) GetAllocation(ctx context.Context, userID string) (core.BudgetAllocation, error) {
	var a core.BudgetAllocation
	err := r.db.QueryRowContext(ctx,
		`SELECT needs, wants, savings, income_a, income_b FROM allocations WHERE user_id = ?`, userID).
		Scan(&a.Needs, &a.Wants, &a.Savings, &a.IncomeA, &a.IncomeB)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultAllocation(), nil
	}
	if err != nil {
		return core.BudgetAllocation{}, fmt.Errorf("get allocation for %s: %w", userID, err)
	}
	return a, nil
}

// PutAllocation replaces the whole allocation row. No merge, no history:
// last write wins, matching the settings screen's save semantics.
func (r *SQLiteRepository) PutAllocation(ctx context.Context, userID string, a core.BudgetAllocation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allocations (user_id, needs, wants, savings, income_a, income_b, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   needs = excluded.needs,
		   wants = excluded.wants,
		   savings = excluded.savings,
		   income_a = excluded.income_a,
		   income_b = excluded.income_b,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, a.Needs, a.Wants, a.Savings, a.IncomeA, a.IncomeB)
	if err != nil {
		return fmt.Errorf("put allocation for %s: %w", userID, err)
	}

	slog.InfoContext(ctx, "Allocation saved", "user_id", userID,
		"needs", a.Needs, "wants", a.Wants, "savings", a.Savings)
	return nil
}

// AppendChatMessage stores a message with a server-assigned id and
// timestamp and returns the stored form.
func (r *SQLiteRepository) AppendChatMessage(ctx context.Context, roomID string, m core.ChatMessage) (core.ChatMessage, error) {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UnixMilli()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, room_id, sender_uid, sender_name, message, timestamp_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, roomID, m.SenderID, m.SenderName, m.Message, m.Timestamp)
	if err != nil {
		return core.ChatMessage{}, fmt.Errorf("append chat message: %w", err)
	}
	return m, nil
}

// ListChatMessages returns up to limit most recent messages for a room,
// oldest first so clients can render directly.
func (r *SQLiteRepository) ListChatMessages(ctx context.Context, roomID string, limit int) ([]core.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_uid, sender_name, message, timestamp_ms FROM
		   (SELECT id, sender_uid, sender_name, message, timestamp_ms
		    FROM chat_messages WHERE room_id = ?
		    ORDER BY timestamp_ms DESC LIMIT ?)
		 ORDER BY timestamp_ms`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.ChatMessage
	for rows.Next() {
		var m core.ChatMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Message, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RegisterDeviceToken stores a push token for a user. Re-registering the
// same token moves it to its latest owner.
func (r *SQLiteRepository) RegisterDeviceToken(ctx context.Context, userID, token, platform string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_tokens (token, user_id, platform)
		 VALUES (?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET user_id = excluded.user_id, platform = excluded.platform`,
		token, userID, platform)
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}

	slog.InfoContext(ctx, "Device token registered", "user_id", userID, "platform", platform)
	return nil
}

// ListDeviceTokens returns all push tokens registered for a user.
func (r *SQLiteRepository) ListDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token FROM device_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// EnqueueNotification records a pending push delivery and returns its id.
// The AMQP message carries only the id; the worker fetches the rest here.
func (r *SQLiteRepository) EnqueueNotification(ctx context.Context, n Notification) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (kind, recipient_uid, title, body) VALUES (?, ?, ?, ?)`,
		n.Kind, n.RecipientUID, n.Title, n.Body)
	if err != nil {
		return 0, fmt.Errorf("enqueue notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue notification: %w", err)
	}
	return id, nil
}

// GetNotification fetches one queued delivery by id.
func (r *SQLiteRepository) GetNotification(ctx context.Context, id int64) (Notification, error) {
	var n Notification
	err := r.db.QueryRowContext(ctx,
		`SELECT id, kind, recipient_uid, title, body, status, attempts, created_at
		 FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.Kind, &n.RecipientUID, &n.Title, &n.Body, &n.Status, &n.Attempts, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, fmt.Errorf("get notification %d: %w", id, err)
	}
	return n, nil
}

// ListPendingNotifications returns queued deliveries for the worker's
// backup sweep, oldest first.
func (r *SQLiteRepository) ListPendingNotifications(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, recipient_uid, title, body, status, attempts, created_at
		 FROM notifications WHERE status = ? ORDER BY created_at LIMIT ?`,
		NotificationPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var pending []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.RecipientUID, &n.Title, &n.Body,
			&n.Status, &n.Attempts, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		pending = append(pending, n)
	}
	return pending, rows.Err()
}

// MarkNotificationDelivered records a successful push delivery.
func (r *SQLiteRepository) MarkNotificationDelivered(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, delivered_at = CURRENT_TIMESTAMP WHERE id = ?`,
		NotificationDelivered, id)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	slog.InfoContext(ctx, "Notification marked delivered", "id", id)
	return nil
}

// MarkNotificationError bumps the attempt count and flags the row so the
// sweep can retry or give up.
func (r *SQLiteRepository) MarkNotificationError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, attempts = attempts + 1 WHERE id = ?`,
		NotificationError, id)
	if err != nil {
		return fmt.Errorf("mark notification error: %w", err)
	}
	slog.WarnContext(ctx, "Notification marked with delivery error", "id", id)
	return nil
}
