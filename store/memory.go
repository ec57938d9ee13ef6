package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghiac/vaultcoach/model"
)

// MemoryStore is an in-memory implementation of Store.
// Sessions are kept as encoded documents so reads go through the same
// normalization as the persistent backends.
type MemoryStore struct {
	sessions  map[string]map[string][]byte // user id -> session id -> document
	users     map[string]*model.User
	coupons   map[string]*model.Coupon
	toolCalls map[string]*model.ToolCall
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]map[string][]byte),
		users:     make(map[string]*model.User),
		coupons:   make(map[string]*model.Coupon),
		toolCalls: make(map[string]*model.ToolCall),
	}
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// ListSessions returns all sessions for a user ordered by date descending
func (s *MemoryStore) ListSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*model.Session, 0, len(s.sessions[userID]))
	for id, data := range s.sessions[userID] {
		session, err := model.DecodeSession(id, data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	model.SortSessionsByDateDesc(sessions)
	return sessions, nil
}

// GetSession retrieves one session
func (s *MemoryStore) GetSession(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.sessions[userID][sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return model.DecodeSession(sessionID, data)
}

// PutSession stores or replaces a session
func (s *MemoryStore) PutSession(ctx context.Context, userID string, session *model.Session) error {
	data, err := prepareSession(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[userID] == nil {
		s.sessions[userID] = make(map[string][]byte)
	}
	s.sessions[userID][session.ID] = data
	return nil
}

// PutRawSession stores a document exactly as given, without normalizing it first
func (s *MemoryStore) PutRawSession(userID, sessionID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[userID] == nil {
		s.sessions[userID] = make(map[string][]byte)
	}
	s.sessions[userID][sessionID] = append([]byte(nil), data...)
}

// DeleteSession removes a session
func (s *MemoryStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions[userID], sessionID)
	return nil
}

// GetUser retrieves a user
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

// UpdateUser merges update into the user, creating it when absent
func (s *MemoryStore) UpdateUser(ctx context.Context, userID string, update model.SubscriptionUpdate) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		user = model.NewUser(userID)
		s.users[userID] = user
	}
	update.Apply(user)
	copied := *user
	return &copied, nil
}

// FindUserBySubscriptionID finds the user holding a Stripe subscription
func (s *MemoryStore) FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool {
		return subscriptionID != "" && u.StripeSubscriptionID == subscriptionID
	})
}

// FindUserByCustomerID finds the user owning a Stripe customer
func (s *MemoryStore) FindUserByCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool {
		return customerID != "" && u.StripeCustomerID == customerID
	})
}

func (s *MemoryStore) findUser(match func(*model.User) bool) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if match(user) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// GetCoupon retrieves a coupon
func (s *MemoryStore) GetCoupon(ctx context.Context, couponID string) (*model.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coupon, ok := s.coupons[couponID]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", couponID, ErrNotFound)
	}
	return copyCoupon(coupon), nil
}

// PutCoupon stores or replaces a coupon
func (s *MemoryStore) PutCoupon(ctx context.Context, coupon *model.Coupon) error {
	if coupon == nil || coupon.ID == "" {
		return fmt.Errorf("coupon must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.coupons[coupon.ID] = copyCoupon(coupon)
	return nil
}

// RedeemCoupon grants one redemption under the store lock
func (s *MemoryStore) RedeemCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, ok := s.coupons[couponID]
	if !ok {
		return nil, false, fmt.Errorf("coupon %s: %w", couponID, ErrNotFound)
	}
	if coupon.RedeemedByUser(userID) {
		return copyCoupon(coupon), true, nil
	}
	redeemed := coupon.Redeem(userID)
	return copyCoupon(coupon), redeemed, nil
}

// ReleaseCoupon takes back userID's redemption
func (s *MemoryStore) ReleaseCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coupon, ok := s.coupons[couponID]
	if !ok {
		return nil, false, fmt.Errorf("coupon %s: %w", couponID, ErrNotFound)
	}
	released := coupon.Release(userID)
	return copyCoupon(coupon), released, nil
}

// PutToolCall records a tool call
func (s *MemoryStore) PutToolCall(ctx context.Context, toolCall *model.ToolCall) error {
	if toolCall == nil {
		return fmt.Errorf("toolCall cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *toolCall
	s.toolCalls[toolCall.ToolCallID] = &copied
	return nil
}

// UpdateToolCallResponse stores the response of a recorded tool call
func (s *MemoryStore) UpdateToolCallResponse(ctx context.Context, toolCallID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.toolCalls[toolCallID]
	if !ok {
		return fmt.Errorf("tool call %s: %w", toolCallID, ErrNotFound)
	}
	tc.Response = response
	tc.UpdatedAt = time.Now()
	return nil
}

// ListToolCalls returns the recorded tool calls of a user, oldest first
func (s *MemoryStore) ListToolCalls(ctx context.Context, userID string) ([]*model.ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.ToolCall
	for _, tc := range s.toolCalls {
		if tc.UserID == userID {
			copied := *tc
			out = append(out, &copied)
		}
	}
	sortToolCalls(out)
	return out, nil
}

func copyCoupon(c *model.Coupon) *model.Coupon {
	copied := *c
	copied.RedeemedBy = append([]string(nil), c.RedeemedBy...)
	return &copied
}
