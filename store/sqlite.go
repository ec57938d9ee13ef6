package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghiac/vaultcoach/model"
	_ "modernc.org/sqlite"
)

// couponRetries bounds how often a redemption is retried after losing a race
const couponRetries = 5

// errCouponConflict means another writer changed the coupon between read and update
var errCouponConflict = errors.New("coupon changed concurrently")

// SQLiteStore is a SQLite implementation of Store
// It stores sessions and users in a SQLite database with JSON serialization
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore creates a new SQLite store
// If dbPath is empty, it uses ":memory:" for in-memory database
// For file-based storage, use a path like "./data/vaultcoach.db"
// The function automatically creates the directory if it doesn't exist
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	// For file-based storage (not in-memory), ensure directory exists
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory for database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	// Create tables
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		session_date INTEGER NOT NULL DEFAULT 0,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_date ON sessions(user_id, session_date);

	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_customer ON users(stripe_customer_id);
	CREATE INDEX IF NOT EXISTS idx_users_subscription ON users(stripe_subscription_id);

	CREATE TABLE IF NOT EXISTS coupons (
		coupon_id TEXT PRIMARY KEY,
		max_redemptions INTEGER NOT NULL,
		current_redemptions INTEGER NOT NULL DEFAULT 0,
		discount_percent REAL NOT NULL DEFAULT 0,
		redeemed_by TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS tool_calls (
		tool_call_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		function_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		response TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tool_calls_user_id ON tool_calls(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListSessions returns all sessions for a user ordered by date descending
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, data FROM sessions WHERE user_id = ? ORDER BY session_date DESC, session_id ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session, err := model.DecodeSession(id, []byte(data))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	// session_date is a hint; documents written by other clients may disagree
	model.SortSessionsByDateDesc(sessions)
	return sessions, nil
}

// GetSession retrieves one session
func (s *SQLiteStore) GetSession(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM sessions WHERE user_id = ? AND session_id = ?",
		userID, sessionID,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return model.DecodeSession(sessionID, []byte(data))
}

// PutSession stores or updates a session
func (s *SQLiteStore) PutSession(ctx context.Context, userID string, session *model.Session) error {
	data, err := prepareSession(session)
	if err != nil {
		return err
	}
	return s.PutRawSession(ctx, userID, session.ID, data, sessionDateKey(session))
}

// PutRawSession stores an already encoded session document
func (s *SQLiteStore) PutRawSession(ctx context.Context, userID, sessionID string, data []byte, date int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, session_id, session_date, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, session_id) DO UPDATE SET
			session_date = excluded.session_date,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		userID, sessionID, date, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// DeleteSession removes a session
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ? AND session_id = ?", userID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetUser retrieves a user
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUser(ctx, s.db, "SELECT data FROM users WHERE user_id = ?", userID)
}

// FindUserBySubscriptionID finds the user holding a Stripe subscription
func (s *SQLiteStore) FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error) {
	if subscriptionID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUser(ctx, s.db, "SELECT data FROM users WHERE stripe_subscription_id = ? LIMIT 1", subscriptionID)
}

// FindUserByCustomerID finds the user owning a Stripe customer
func (s *SQLiteStore) FindUserByCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryUser(ctx, s.db, "SELECT data FROM users WHERE stripe_customer_id = ? LIMIT 1", customerID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStore) queryUser(ctx context.Context, q queryer, query string, arg string) (*model.User, error) {
	var data string
	err := q.QueryRowContext(ctx, query, arg).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user := &model.User{}
	if err := json.Unmarshal([]byte(data), user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return user, nil
}

// UpdateUser merges update into the user inside a transaction, creating it when absent
func (s *SQLiteStore) UpdateUser(ctx context.Context, userID string, update model.SubscriptionUpdate) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := s.queryUser(ctx, tx, "SELECT data FROM users WHERE user_id = ?", userID)
	if errors.Is(err, ErrNotFound) {
		user = model.NewUser(userID)
	} else if err != nil {
		return nil, err
	}
	update.Apply(user)

	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (user_id, stripe_customer_id, stripe_subscription_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.UserID,
		user.StripeCustomerID,
		user.StripeSubscriptionID,
		string(data),
		user.CreatedAt.Unix(),
		user.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user: %w", err)
	}
	return user, nil
}

// GetCoupon retrieves a coupon
func (s *SQLiteStore) GetCoupon(ctx context.Context, couponID string) (*model.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCoupon(ctx, s.db, couponID)
}

func (s *SQLiteStore) queryCoupon(ctx context.Context, q queryer, couponID string) (*model.Coupon, error) {
	coupon := &model.Coupon{ID: couponID}
	var redeemedBy string
	err := q.QueryRowContext(ctx,
		"SELECT max_redemptions, current_redemptions, discount_percent, redeemed_by FROM coupons WHERE coupon_id = ?",
		couponID,
	).Scan(&coupon.MaxRedemptions, &coupon.CurrentRedemptions, &coupon.DiscountPercent, &redeemedBy)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("coupon %s: %w", couponID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}
	if err := json.Unmarshal([]byte(redeemedBy), &coupon.RedeemedBy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal coupon redemptions: %w", err)
	}
	return coupon, nil
}

// PutCoupon stores or replaces a coupon
func (s *SQLiteStore) PutCoupon(ctx context.Context, coupon *model.Coupon) error {
	if coupon == nil || coupon.ID == "" {
		return fmt.Errorf("coupon must have an id")
	}

	redeemedBy, err := json.Marshal(append([]string{}, coupon.RedeemedBy...))
	if err != nil {
		return fmt.Errorf("failed to marshal coupon redemptions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO coupons (coupon_id, max_redemptions, current_redemptions, discount_percent, redeemed_by)
		 VALUES (?, ?, ?, ?, ?)`,
		coupon.ID, coupon.MaxRedemptions, coupon.CurrentRedemptions, coupon.DiscountPercent, string(redeemedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to store coupon: %w", err)
	}
	return nil
}

// RedeemCoupon grants one redemption inside a transaction. The UPDATE is
// guarded on the count read in the same transaction so a concurrent writer
// on another connection cannot push the coupon past its limit.
func (s *SQLiteStore) RedeemCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < couponRetries; attempt++ {
		coupon, redeemed, err := s.redeemOnce(ctx, couponID, userID)
		if errors.Is(err, errCouponConflict) {
			continue
		}
		return coupon, redeemed, err
	}
	return nil, false, fmt.Errorf("failed to redeem coupon %s: %w", couponID, errCouponConflict)
}

func (s *SQLiteStore) redeemOnce(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	coupon, err := s.queryCoupon(ctx, tx, couponID)
	if err != nil {
		return nil, false, err
	}
	if coupon.RedeemedByUser(userID) {
		return coupon, true, tx.Commit()
	}

	previous := coupon.CurrentRedemptions
	if !coupon.Redeem(userID) {
		return coupon, false, tx.Commit()
	}

	if err := saveRedemptions(ctx, tx, coupon, previous); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit coupon: %w", err)
	}
	return coupon, true, nil
}

// ReleaseCoupon takes back userID's redemption under the same guarded
// UPDATE as RedeemCoupon.
func (s *SQLiteStore) ReleaseCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < couponRetries; attempt++ {
		coupon, released, err := s.releaseOnce(ctx, couponID, userID)
		if errors.Is(err, errCouponConflict) {
			continue
		}
		return coupon, released, err
	}
	return nil, false, fmt.Errorf("failed to release coupon %s: %w", couponID, errCouponConflict)
}

func (s *SQLiteStore) releaseOnce(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	coupon, err := s.queryCoupon(ctx, tx, couponID)
	if err != nil {
		return nil, false, err
	}
	previous := coupon.CurrentRedemptions
	if !coupon.Release(userID) {
		return coupon, false, tx.Commit()
	}

	if err := saveRedemptions(ctx, tx, coupon, previous); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit coupon: %w", err)
	}
	return coupon, true, nil
}

// saveRedemptions writes the coupon's redemption state if the stored count
// still equals previous. Otherwise it returns errCouponConflict.
func saveRedemptions(ctx context.Context, tx *sql.Tx, coupon *model.Coupon, previous int) error {
	redeemedBy, err := json.Marshal(coupon.RedeemedBy)
	if err != nil {
		return fmt.Errorf("failed to marshal coupon redemptions: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE coupons SET current_redemptions = ?, redeemed_by = ?
		 WHERE coupon_id = ? AND current_redemptions = ?`,
		coupon.CurrentRedemptions, string(redeemedBy), coupon.ID, previous,
	)
	if err != nil {
		return fmt.Errorf("failed to update coupon: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return errCouponConflict
	}
	return nil
}

// PutToolCall records a tool call
func (s *SQLiteStore) PutToolCall(ctx context.Context, toolCall *model.ToolCall) error {
	if toolCall == nil {
		return fmt.Errorf("toolCall cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tool_calls (tool_call_id, user_id, function_name, arguments, response, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		toolCall.ToolCallID,
		toolCall.UserID,
		toolCall.FunctionName,
		toolCall.Arguments,
		toolCall.Response,
		toolCall.CreatedAt.UnixMilli(),
		toolCall.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store tool call: %w", err)
	}
	return nil
}

// UpdateToolCallResponse stores the response of a recorded tool call
func (s *SQLiteStore) UpdateToolCallResponse(ctx context.Context, toolCallID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE tool_calls SET response = ?, updated_at = ? WHERE tool_call_id = ?",
		response, time.Now().UnixMilli(), toolCallID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tool call response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tool call %s: %w", toolCallID, ErrNotFound)
	}
	return nil
}

// ListToolCalls returns the recorded tool calls of a user, oldest first
func (s *SQLiteStore) ListToolCalls(ctx context.Context, userID string) ([]*model.ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_call_id, user_id, function_name, arguments, response, created_at, updated_at
		 FROM tool_calls WHERE user_id = ? ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	var out []*model.ToolCall
	for rows.Next() {
		tc := &model.ToolCall{}
		var createdAt, updatedAt int64
		var response sql.NullString
		if err := rows.Scan(&tc.ToolCallID, &tc.UserID, &tc.FunctionName, &tc.Arguments, &response, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		tc.Response = response.String
		tc.CreatedAt = time.UnixMilli(createdAt)
		tc.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, tc)
	}
	return out, rows.Err()
}
