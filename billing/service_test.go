package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
)

const (
	testUser   = "athlete-1"
	testEmail  = "athlete@example.com"
	monthly    = "price_monthly"
	testCoupon = "EARLYBIRD"
)

// fakeProvider records calls and returns canned results
type fakeProvider struct {
	mu          sync.Mutex
	customers   int
	checkouts   []CheckoutParams
	portals     []string
	event       *Event
	parseErr    error
	checkoutErr error
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return fmt.Sprintf("cus_%d", f.customers), nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	f.checkouts = append(f.checkouts, params)
	return "https://checkout.test/" + params.CustomerID, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.portals = append(f.portals, customerID)
	return "https://portal.test/" + customerID, nil
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

func testConfig() config.BillingConfig {
	return config.BillingConfig{
		StripeSecretKey:     "sk_test",
		StripeWebhookSecret: "whsec_test",
		MonthlyPriceID:      monthly,
		YearlyPriceID:       "price_yearly",
		CouponID:            testCoupon,
		SuccessURL:          "https://app/success",
		CancelURL:           "https://app/cancel",
		PortalReturnURL:     "https://app/settings",
		TrialDays:           7,
	}
}

func newTestService(t *testing.T, provider PaymentProvider) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewService(testConfig(), provider, s, s), s
}

func putCoupon(t *testing.T, s *store.MemoryStore, max int) {
	t.Helper()
	err := s.PutCoupon(context.Background(), &model.Coupon{ID: testCoupon, MaxRedemptions: max, DiscountPercent: 50})
	if err != nil {
		t.Fatalf("PutCoupon: %v", err)
	}
}

func TestCreateCheckout_Validation(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	valid := CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail}

	tests := []struct {
		name   string
		caller string
		req    CheckoutRequest
		code   model.ErrorCode
	}{
		{"not signed in", "", valid, model.CodeUnauthenticated},
		{"missing price", testUser, CheckoutRequest{UserID: testUser, UserEmail: testEmail}, model.CodeInvalidArgument},
		{"missing email", testUser, CheckoutRequest{PriceID: monthly, UserID: testUser}, model.CodeInvalidArgument},
		{"other user", "intruder", valid, model.CodePermissionDenied},
		{"unknown price", testUser, CheckoutRequest{PriceID: "price_gold", UserID: testUser, UserEmail: testEmail}, model.CodeFailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCheckout(context.Background(), tt.caller, tt.req)
			if model.ErrorCodeOf(err) != tt.code {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}

	unconfigured, _ := newTestService(t, nil)
	_, err := unconfigured.CreateCheckout(context.Background(), testUser, valid)
	if model.ErrorCodeOf(err) != model.CodeFailedPrecondition {
		t.Errorf("err = %v, want failed-precondition", err)
	}
}

func TestCreateCheckout_ReusesCustomer(t *testing.T) {
	p := &fakeProvider{}
	svc, s := newTestService(t, p)
	req := CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail}

	for i := 0; i < 2; i++ {
		resp, err := svc.CreateCheckout(context.Background(), testUser, req)
		if err != nil {
			t.Fatalf("CreateCheckout: %v", err)
		}
		if resp.URL != "https://checkout.test/cus_1" || resp.CouponApplied || resp.CouponRemaining != nil {
			t.Errorf("resp = %+v", resp)
		}
	}
	if p.customers != 1 {
		t.Errorf("customers created = %d, want 1", p.customers)
	}

	user, err := s.GetUser(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.StripeCustomerID != "cus_1" || user.Email != testEmail || user.SubscriptionTier != model.TierFree {
		t.Errorf("user = %+v", user)
	}

	params := p.checkouts[0]
	if params.TrialDays != 7 || params.SuccessURL != "https://app/success" || params.CouponID != "" {
		t.Errorf("checkout params = %+v", params)
	}
}

func TestCreateCheckout_Coupon(t *testing.T) {
	p := &fakeProvider{}
	svc, s := newTestService(t, p)
	putCoupon(t, s, 1)

	first, err := svc.CreateCheckout(context.Background(), testUser,
		CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail, ApplyCoupon: true})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if !first.CouponApplied || first.CouponRemaining == nil || *first.CouponRemaining != 0 {
		t.Errorf("first = %+v", first)
	}
	if p.checkouts[0].CouponID != testCoupon {
		t.Errorf("coupon not attached to checkout: %+v", p.checkouts[0])
	}

	// A repeat checkout by the same user keeps the coupon without a second redemption
	again, err := svc.CreateCheckout(context.Background(), testUser,
		CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail, ApplyCoupon: true})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if !again.CouponApplied {
		t.Errorf("repeat redeemer lost the coupon: %+v", again)
	}

	other, err := svc.CreateCheckout(context.Background(), "athlete-2",
		CheckoutRequest{PriceID: monthly, UserID: "athlete-2", UserEmail: "b@example.com", ApplyCoupon: true})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if other.CouponApplied || p.checkouts[2].CouponID != "" {
		t.Errorf("exhausted coupon was applied: %+v", other)
	}

	coupon, _ := s.GetCoupon(context.Background(), testCoupon)
	if coupon.CurrentRedemptions != 1 || len(coupon.RedeemedBy) != 1 {
		t.Errorf("coupon = %+v", coupon)
	}
}

func TestCreateCheckout_MissingCouponStillChecksOut(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	resp, err := svc.CreateCheckout(context.Background(), testUser,
		CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail, ApplyCoupon: true})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if resp.CouponApplied || resp.URL == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCreateCheckout_ConcurrentCouponRedemption(t *testing.T) {
	svc, s := newTestService(t, &fakeProvider{})
	putCoupon(t, s, 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("athlete-%d", i)
			resp, err := svc.CreateCheckout(context.Background(), user,
				CheckoutRequest{PriceID: monthly, UserID: user, UserEmail: user + "@example.com", ApplyCoupon: true})
			if err != nil {
				t.Errorf("CreateCheckout: %v", err)
				return
			}
			if resp.CouponApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	coupon, _ := s.GetCoupon(context.Background(), testCoupon)
	if applied != 5 || coupon.CurrentRedemptions != 5 || len(coupon.RedeemedBy) != 5 {
		t.Errorf("applied=%d current=%d redeemedBy=%d, want 5", applied, coupon.CurrentRedemptions, len(coupon.RedeemedBy))
	}
}

func TestCreateCheckout_ProviderErrors(t *testing.T) {
	tests := []struct {
		err  error
		code model.ErrorCode
	}{
		{&stripe.Error{HTTPStatusCode: 429, Msg: "rate limited"}, model.CodeResourceExhausted},
		{&stripe.Error{HTTPStatusCode: 400, Msg: "bad price"}, model.CodeInternal},
		{errors.New("network"), model.CodeInternal},
	}
	for _, tt := range tests {
		svc, _ := newTestService(t, &fakeProvider{checkoutErr: fmt.Errorf("failed to create checkout session: %w", tt.err)})
		_, err := svc.CreateCheckout(context.Background(), testUser, CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail})
		if model.ErrorCodeOf(err) != tt.code {
			t.Errorf("%v: code = %s, want %s", tt.err, model.ErrorCodeOf(err), tt.code)
		}
	}
}

func TestCreateCheckout_FailedCheckoutReleasesCoupon(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{checkoutErr: errors.New("network")}
	svc, s := newTestService(t, p)
	putCoupon(t, s, 1)

	req := CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail, ApplyCoupon: true}
	if _, err := svc.CreateCheckout(ctx, testUser, req); err == nil {
		t.Fatal("expected checkout error")
	}
	c, err := s.GetCoupon(ctx, testCoupon)
	if err != nil {
		t.Fatalf("GetCoupon: %v", err)
	}
	if c.CurrentRedemptions != 0 || c.RedeemedByUser(testUser) {
		t.Errorf("coupon kept after failed checkout: %+v", c)
	}

	// The slot is still there once the provider recovers
	p.checkoutErr = nil
	resp, err := svc.CreateCheckout(ctx, testUser, req)
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if !resp.CouponApplied {
		t.Errorf("retry did not apply the coupon: %+v", resp)
	}
}

func TestCreateCheckout_FailedCheckoutKeepsEarlierRedemption(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	svc, s := newTestService(t, p)
	putCoupon(t, s, 1)

	req := CheckoutRequest{PriceID: monthly, UserID: testUser, UserEmail: testEmail, ApplyCoupon: true}
	if _, err := svc.CreateCheckout(ctx, testUser, req); err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}

	p.checkoutErr = errors.New("network")
	if _, err := svc.CreateCheckout(ctx, testUser, req); err == nil {
		t.Fatal("expected checkout error")
	}
	c, _ := s.GetCoupon(ctx, testCoupon)
	if c.CurrentRedemptions != 1 || !c.RedeemedByUser(testUser) {
		t.Errorf("earlier redemption was released: %+v", c)
	}
}

func TestCustomerPortal(t *testing.T) {
	p := &fakeProvider{}
	svc, s := newTestService(t, p)

	if _, err := svc.CustomerPortal(context.Background(), testUser, "someone"); model.ErrorCodeOf(err) != model.CodePermissionDenied {
		t.Errorf("err = %v, want permission-denied", err)
	}
	if _, err := svc.CustomerPortal(context.Background(), testUser, ""); model.ErrorCodeOf(err) != model.CodeInvalidArgument {
		t.Errorf("err = %v, want invalid-argument", err)
	}
	if _, err := svc.CustomerPortal(context.Background(), testUser, testUser); model.ErrorCodeOf(err) != model.CodeNotFound {
		t.Errorf("err = %v, want not-found", err)
	}

	s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{Email: model.StringPtr(testEmail)})
	if _, err := svc.CustomerPortal(context.Background(), testUser, testUser); model.ErrorCodeOf(err) != model.CodeNotFound {
		t.Errorf("user without customer: err = %v, want not-found", err)
	}

	s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{StripeCustomerID: model.StringPtr("cus_9")})
	resp, err := svc.CustomerPortal(context.Background(), testUser, testUser)
	if err != nil {
		t.Fatalf("CustomerPortal: %v", err)
	}
	if resp.URL != "https://portal.test/cus_9" {
		t.Errorf("URL = %q", resp.URL)
	}
}

func TestCheckCouponAvailability(t *testing.T) {
	svc, s := newTestService(t, &fakeProvider{})

	missing, err := svc.CheckCouponAvailability(context.Background())
	if err != nil {
		t.Fatalf("CheckCouponAvailability: %v", err)
	}
	if *missing != (CouponAvailability{}) {
		t.Errorf("missing coupon = %+v", missing)
	}

	putCoupon(t, s, 2)
	s.RedeemCoupon(context.Background(), testCoupon, "a")

	got, err := svc.CheckCouponAvailability(context.Background())
	if err != nil {
		t.Fatalf("CheckCouponAvailability: %v", err)
	}
	want := CouponAvailability{Available: true, Remaining: 1, Total: 2, DiscountPercent: 50}
	if *got != want {
		t.Errorf("availability = %+v, want %+v", got, want)
	}

	s.RedeemCoupon(context.Background(), testCoupon, "b")
	got, _ = svc.CheckCouponAvailability(context.Background())
	if got.Available || got.Remaining != 0 {
		t.Errorf("exhausted coupon = %+v", got)
	}
}

func TestHandleWebhook(t *testing.T) {
	periodEnd := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("checkout completed by metadata", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_1", Type: EventCheckoutCompleted, UserID: testUser, CustomerID: "cus_1", SubscriptionID: "sub_1"}}
		svc, s := newTestService(t, p)
		s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{Email: model.StringPtr(testEmail)})

		if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		user, err := s.GetUser(context.Background(), testUser)
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if user.SubscriptionTier != model.TierPro || user.SubscriptionStatus != StatusTrialing || !user.IsTrialing || user.StripeSubscriptionID != "sub_1" {
			t.Errorf("user = %+v", user)
		}
	})

	t.Run("subscription updated by subscription id", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_2", Type: EventSubscriptionUpdated, SubscriptionID: "sub_1", Status: StatusActive, CurrentPeriodEnd: periodEnd}}
		svc, s := newTestService(t, p)
		s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{StripeSubscriptionID: model.StringPtr("sub_1"), IsTrialing: model.BoolPtr(true)})

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		user, _ := s.GetUser(context.Background(), testUser)
		if user.SubscriptionStatus != StatusActive || user.IsTrialing || !user.SubscriptionExpiresAt.Equal(periodEnd) {
			t.Errorf("user = %+v", user)
		}
	})

	t.Run("payment failed by customer id", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_3", Type: EventInvoicePaymentFailed, CustomerID: "cus_7"}}
		svc, s := newTestService(t, p)
		s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{
			StripeCustomerID: model.StringPtr("cus_7"),
			SubscriptionTier: model.StringPtr(model.TierPro),
		})

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		user, _ := s.GetUser(context.Background(), testUser)
		if user.SubscriptionStatus != StatusPastDue || user.SubscriptionTier != model.TierPro {
			t.Errorf("user = %+v", user)
		}
	})

	t.Run("subscription deleted", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_4", Type: EventSubscriptionDeleted, SubscriptionID: "sub_1", UserID: testUser}}
		svc, s := newTestService(t, p)
		s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{
			StripeSubscriptionID: model.StringPtr("sub_1"),
			SubscriptionTier:     model.StringPtr(model.TierPro),
		})

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		user, _ := s.GetUser(context.Background(), testUser)
		if user.SubscriptionTier != model.TierFree || user.SubscriptionStatus != StatusCanceled || user.IsPro() {
			t.Errorf("user = %+v", user)
		}
	})

	t.Run("unmatched user is acknowledged", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_5", Type: EventInvoicePaymentSucceeded, CustomerID: "cus_unknown"}}
		svc, s := newTestService(t, p)

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		if _, err := s.FindUserByCustomerID(context.Background(), "cus_unknown"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("a user was created for an unmatched event: %v", err)
		}
	})

	t.Run("unknown metadata user is not created", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_7", Type: EventCheckoutCompleted, UserID: "ghost", CustomerID: "cus_ghost", SubscriptionID: "sub_ghost"}}
		svc, s := newTestService(t, p)

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		if _, err := s.GetUser(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("webhook created a user from metadata: %v", err)
		}
	})

	t.Run("unknown metadata user falls back to customer id", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_8", Type: EventCheckoutCompleted, UserID: "ghost", CustomerID: "cus_7", SubscriptionID: "sub_7"}}
		svc, s := newTestService(t, p)
		s.UpdateUser(context.Background(), testUser, model.SubscriptionUpdate{StripeCustomerID: model.StringPtr("cus_7")})

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		if _, err := s.GetUser(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("webhook created a user from metadata: %v", err)
		}
		user, _ := s.GetUser(context.Background(), testUser)
		if user.StripeSubscriptionID != "sub_7" || user.SubscriptionTier != model.TierPro {
			t.Errorf("user = %+v", user)
		}
	})

	t.Run("unknown event type is ignored", func(t *testing.T) {
		p := &fakeProvider{event: &Event{ID: "evt_6", Type: "charge.refunded", UserID: testUser}}
		svc, s := newTestService(t, p)

		if err := svc.HandleWebhook(context.Background(), nil, "sig"); err != nil {
			t.Fatalf("HandleWebhook: %v", err)
		}
		if _, err := s.GetUser(context.Background(), testUser); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("ignored event touched the user: %v", err)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeProvider{parseErr: errors.New("signature mismatch")})
		err := svc.HandleWebhook(context.Background(), nil, "sig")
		if model.ErrorCodeOf(err) != model.CodeInvalidArgument {
			t.Errorf("err = %v, want invalid-argument", err)
		}
		if err := svc.HandleWebhook(context.Background(), nil, ""); model.ErrorCodeOf(err) != model.CodeInvalidArgument {
			t.Errorf("missing signature: err = %v", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		if err := svc.HandleWebhook(context.Background(), nil, "sig"); model.ErrorCodeOf(err) != model.CodeFailedPrecondition {
			t.Errorf("err = %v, want failed-precondition", err)
		}
	})
}
