package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ghiac/vaultcoach/model"
)

// toolCallRecorder is implemented by every backend in this package
type toolCallRecorder interface {
	PutToolCall(ctx context.Context, toolCall *model.ToolCall) error
	UpdateToolCallResponse(ctx context.Context, toolCallID, response string) error
	ListToolCalls(ctx context.Context, userID string) ([]*model.ToolCall, error)
}

func sessionIDs(sessions []*model.Session) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func testSessions(t *testing.T, s Store) {
	ctx := context.Background()

	for i, d := range []int{3, 1, 2} {
		session := &model.Session{
			ID:          fmt.Sprintf("s%d", i),
			Date:        day(d),
			Location:    "Track",
			SessionType: model.SessionTypeTraining,
			Jumps:       []model.Jump{{Height: "4.10", Result: model.ResultMake}},
		}
		if err := s.PutSession(ctx, "user1", session); err != nil {
			t.Fatalf("PutSession: %v", err)
		}
	}
	if err := s.PutSession(ctx, "user2", &model.Session{ID: "other", Date: day(9)}); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	sessions, err := s.ListSessions(ctx, "user1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(sessions))
	}
	for i, want := range []int{3, 2, 1} {
		if !sessions[i].Date.Equal(day(want)) {
			t.Errorf("sessions[%d] date = %v, want day %d", i, sessions[i].Date, want)
		}
	}
	if sessions[0].Jumps[0].HeightMeters != 4.10 {
		t.Errorf("HeightMeters not derived: %v", sessions[0].Jumps[0].HeightMeters)
	}

	got, err := s.GetSession(ctx, "user1", "s0")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != "s0" || got.Location != "Track" {
		t.Errorf("GetSession = %+v", got)
	}

	// Same-date sessions list in ID order on every backend
	for _, id := range []string{"tie-b", "tie-c", "tie-a"} {
		if err := s.PutSession(ctx, "user4", &model.Session{ID: id, Date: day(7)}); err != nil {
			t.Fatalf("PutSession: %v", err)
		}
	}
	ties, err := s.ListSessions(ctx, "user4")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ties) != 3 || ties[0].ID != "tie-a" || ties[1].ID != "tie-b" || ties[2].ID != "tie-c" {
		t.Errorf("same-date order = %v", sessionIDs(ties))
	}

	if _, err := s.GetSession(ctx, "user2", "s0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user's session should be not found, got %v", err)
	}

	if err := s.DeleteSession(ctx, "user1", "s0"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, "user1", "s0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session should be not found, got %v", err)
	}

	fresh := &model.Session{Date: day(5)}
	if err := s.PutSession(ctx, "user3", fresh); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	if fresh.ID == "" {
		t.Error("PutSession should assign an id")
	}
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(nobody) = %v", err)
	}

	user, err := s.UpdateUser(ctx, "u1", model.SubscriptionUpdate{
		Email:            model.StringPtr("a@example.com"),
		StripeCustomerID: model.StringPtr("cus_1"),
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if user.SubscriptionTier != model.TierFree || user.StripeCustomerID != "cus_1" {
		t.Errorf("created user = %+v", user)
	}

	_, err = s.UpdateUser(ctx, "u1", model.SubscriptionUpdate{
		SubscriptionTier:     model.StringPtr(model.TierPro),
		StripeSubscriptionID: model.StringPtr("sub_1"),
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	user, err = s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Email != "a@example.com" || user.SubscriptionTier != model.TierPro || user.StripeSubscriptionID != "sub_1" {
		t.Errorf("merge lost fields: %+v", user)
	}

	if u, err := s.FindUserBySubscriptionID(ctx, "sub_1"); err != nil || u.UserID != "u1" {
		t.Errorf("FindUserBySubscriptionID = %v, %v", u, err)
	}
	if u, err := s.FindUserByCustomerID(ctx, "cus_1"); err != nil || u.UserID != "u1" {
		t.Errorf("FindUserByCustomerID = %v, %v", u, err)
	}
	if _, err := s.FindUserByCustomerID(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty customer id should be not found, got %v", err)
	}
}

func testCouponBasics(t *testing.T, s Store) {
	ctx := context.Background()

	if _, _, err := s.RedeemCoupon(ctx, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing coupon = %v", err)
	}

	if err := s.PutCoupon(ctx, &model.Coupon{ID: "launch", MaxRedemptions: 1, DiscountPercent: 50}); err != nil {
		t.Fatalf("PutCoupon: %v", err)
	}

	c, ok, err := s.RedeemCoupon(ctx, "launch", "u1")
	if err != nil || !ok || c.CurrentRedemptions != 1 {
		t.Fatalf("first redemption = %+v, %v, %v", c, ok, err)
	}

	// Repeat redemption by the same user keeps the coupon without a second increment
	c, ok, err = s.RedeemCoupon(ctx, "launch", "u1")
	if err != nil || !ok || c.CurrentRedemptions != 1 {
		t.Errorf("repeat redemption = %+v, %v, %v", c, ok, err)
	}

	c, ok, err = s.RedeemCoupon(ctx, "launch", "u2")
	if err != nil || ok || c.CurrentRedemptions != 1 {
		t.Errorf("exhausted redemption = %+v, %v, %v", c, ok, err)
	}

	stored, err := s.GetCoupon(ctx, "launch")
	if err != nil {
		t.Fatalf("GetCoupon: %v", err)
	}
	if stored.Remaining() != 0 || len(stored.RedeemedBy) != 1 || stored.RedeemedBy[0] != "u1" {
		t.Errorf("stored coupon = %+v", stored)
	}

	// Releasing returns the slot so the next user can take it
	c, ok, err = s.ReleaseCoupon(ctx, "launch", "u1")
	if err != nil || !ok || c.CurrentRedemptions != 0 || c.RedeemedByUser("u1") {
		t.Errorf("release = %+v, %v, %v", c, ok, err)
	}
	c, ok, err = s.ReleaseCoupon(ctx, "launch", "u1")
	if err != nil || ok || c.CurrentRedemptions != 0 {
		t.Errorf("second release = %+v, %v, %v", c, ok, err)
	}
	if _, _, err := s.ReleaseCoupon(ctx, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("release of missing coupon = %v", err)
	}
	c, ok, err = s.RedeemCoupon(ctx, "launch", "u2")
	if err != nil || !ok || c.CurrentRedemptions != 1 {
		t.Errorf("redemption after release = %+v, %v, %v", c, ok, err)
	}
}

// testCouponConcurrency checks that concurrent redemptions never exceed the
// limit and that the redemption list always matches the count.
func testCouponConcurrency(t *testing.T, s Store) {
	ctx := context.Background()
	const limit, users = 5, 40

	if err := s.PutCoupon(ctx, &model.Coupon{ID: "race", MaxRedemptions: limit, DiscountPercent: 20}); err != nil {
		t.Fatalf("PutCoupon: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every user tries twice
			for j := 0; j < 2; j++ {
				_, ok, err := s.RedeemCoupon(ctx, "race", fmt.Sprintf("user-%d", i))
				if err != nil {
					t.Errorf("RedeemCoupon: %v", err)
					return
				}
				if ok && j == 0 {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()

	c, err := s.GetCoupon(ctx, "race")
	if err != nil {
		t.Fatalf("GetCoupon: %v", err)
	}
	if c.CurrentRedemptions != limit {
		t.Errorf("CurrentRedemptions = %d, want %d", c.CurrentRedemptions, limit)
	}
	if len(c.RedeemedBy) != c.CurrentRedemptions {
		t.Errorf("len(RedeemedBy) = %d, CurrentRedemptions = %d", len(c.RedeemedBy), c.CurrentRedemptions)
	}
	if granted != limit {
		t.Errorf("granted = %d, want %d", granted, limit)
	}
	seen := map[string]bool{}
	for _, id := range c.RedeemedBy {
		if seen[id] {
			t.Errorf("user %s redeemed twice", id)
		}
		seen[id] = true
	}
}

func testToolCalls(t *testing.T, s Store) {
	rec, ok := s.(toolCallRecorder)
	if !ok {
		t.Fatalf("%T does not record tool calls", s)
	}
	ctx := context.Background()
	now := time.Now()

	for i, name := range []string{"search_sessions", "get_user_stats"} {
		tc := &model.ToolCall{
			ToolCallID:   fmt.Sprintf("call_%d", i),
			UserID:       "u1",
			FunctionName: name,
			Arguments:    "{}",
			CreatedAt:    now.Add(time.Duration(i) * time.Second),
			UpdatedAt:    now,
		}
		if err := rec.PutToolCall(ctx, tc); err != nil {
			t.Fatalf("PutToolCall: %v", err)
		}
	}
	if err := rec.UpdateToolCallResponse(ctx, "call_1", `{"totalSessions":3}`); err != nil {
		t.Fatalf("UpdateToolCallResponse: %v", err)
	}
	if err := rec.UpdateToolCallResponse(ctx, "call_missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing tool call = %v", err)
	}

	calls, err := rec.ListToolCalls(ctx, "u1")
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	if len(calls) != 2 || calls[0].FunctionName != "search_sessions" || calls[1].Response != `{"totalSessions":3}` {
		t.Errorf("calls = %+v", calls)
	}
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("CouponBasics", func(t *testing.T) { testCouponBasics(t, newStore(t)) })
	t.Run("CouponConcurrency", func(t *testing.T) { testCouponConcurrency(t, newStore(t)) })
	t.Run("ToolCalls", func(t *testing.T) { testToolCalls(t, newStore(t)) })
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_RawDocumentsAreNormalized(t *testing.T) {
	s := NewMemoryStore()
	s.PutRawSession("u1", "legacy", []byte(`{"date": 1736467200000, "jumps": [{"height": "14'", "pole": "Pacer"}]}`))

	session, err := s.GetSession(context.Background(), "u1", "legacy")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.DateString() != "2025-01-10" || session.Jumps[0].Result != model.ResultNoMake {
		t.Errorf("legacy document not normalized: %+v", session)
	}
}
