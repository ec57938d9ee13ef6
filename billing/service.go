package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
)

// Subscription statuses written to the user record
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// CheckoutRequest is the create-checkout input
type CheckoutRequest struct {
	PriceID     string `json:"priceId"`
	UserID      string `json:"userId"`
	UserEmail   string `json:"userEmail"`
	ApplyCoupon bool   `json:"applyCoupon"`
}

// CheckoutResponse is the create-checkout output
type CheckoutResponse struct {
	URL             string `json:"url"`
	CouponApplied   bool   `json:"couponApplied"`
	CouponRemaining *int   `json:"couponRemaining,omitempty"`
}

// PortalResponse is the customer-portal output
type PortalResponse struct {
	URL string `json:"url"`
}

// CouponAvailability is the check-coupon-availability output
type CouponAvailability struct {
	Available       bool    `json:"available"`
	Remaining       int     `json:"remaining"`
	Total           int     `json:"total"`
	DiscountPercent float64 `json:"discountPercent"`
}

// Service implements the billing operations over a payment provider and the
// user and coupon stores
type Service struct {
	provider PaymentProvider
	users    store.UserStore
	coupons  store.CouponStore
	config   config.BillingConfig
}

// NewService creates a billing service. provider may be nil when no payment
// backend is configured; operations that need it then fail with
// failed-precondition.
func NewService(cfg config.BillingConfig, provider PaymentProvider, users store.UserStore, coupons store.CouponStore) *Service {
	if provider == nil {
		log.Log.Warnf("[Billing] ⚠️  No payment provider configured; checkout, portal and webhooks are disabled")
	}
	return &Service{provider: provider, users: users, coupons: coupons, config: cfg}
}

// CreateCheckout starts a subscription checkout for the caller, optionally
// redeeming the promotional coupon.
func (s *Service) CreateCheckout(ctx context.Context, callerID string, req CheckoutRequest) (*CheckoutResponse, error) {
	if callerID == "" {
		return nil, model.NewError(model.CodeUnauthenticated, "You must be signed in")
	}
	if req.PriceID == "" || req.UserID == "" || req.UserEmail == "" {
		return nil, model.NewError(model.CodeInvalidArgument, "priceId, userId and userEmail are required")
	}
	if req.UserID != callerID {
		return nil, model.NewError(model.CodePermissionDenied, "You can only start a checkout for yourself")
	}
	if s.provider == nil {
		return nil, model.NewError(model.CodeFailedPrecondition, "Billing is not configured")
	}
	if !s.knownPrice(req.PriceID) {
		return nil, model.NewError(model.CodeFailedPrecondition, "Unknown price")
	}

	customerID, err := s.ensureCustomer(ctx, req.UserID, req.UserEmail)
	if err != nil {
		return nil, err
	}

	out := &CheckoutResponse{}
	params := CheckoutParams{
		UserID:     req.UserID,
		CustomerID: customerID,
		PriceID:    req.PriceID,
		TrialDays:  s.config.TrialDays,
		SuccessURL: s.config.SuccessURL,
		CancelURL:  s.config.CancelURL,
	}

	heldBefore := false
	if req.ApplyCoupon && s.config.CouponID != "" {
		if before, err := s.coupons.GetCoupon(ctx, s.config.CouponID); err == nil {
			heldBefore = before.RedeemedByUser(req.UserID)
		}
		coupon, ok, err := s.coupons.RedeemCoupon(ctx, s.config.CouponID, req.UserID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Log.Warnf("[Billing] ⚠️  Coupon %s does not exist | User: %s", s.config.CouponID, req.UserID)
		case err != nil:
			return nil, model.WrapError(model.CodeInternal, "Failed to apply the coupon", err)
		default:
			remaining := coupon.Remaining()
			out.CouponRemaining = &remaining
			if ok {
				out.CouponApplied = true
				params.CouponID = s.config.CouponID
				log.Log.Infof("[Billing] ✅ Coupon redeemed | User: %s | Remaining: %d", req.UserID, remaining)
			} else {
				log.Log.Infof("[Billing] Coupon exhausted | User: %s", req.UserID)
			}
		}
	}

	url, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		if out.CouponApplied && !heldBefore {
			s.releaseCoupon(ctx, req.UserID)
		}
		return nil, providerError("Failed to start checkout", err)
	}
	out.URL = url

	log.Log.Infof("[Billing] ✅ Checkout created | User: %s | Price: %s | Coupon: %t", req.UserID, req.PriceID, out.CouponApplied)
	return out, nil
}

// releaseCoupon returns a redemption taken for a checkout that never started
func (s *Service) releaseCoupon(ctx context.Context, userID string) {
	ctx = context.WithoutCancel(ctx)
	if _, ok, err := s.coupons.ReleaseCoupon(ctx, s.config.CouponID, userID); err != nil {
		log.Log.Warnf("[Billing] ⚠️  Failed to release coupon %s | User: %s | Error: %v", s.config.CouponID, userID, err)
	} else if ok {
		log.Log.Infof("[Billing] Coupon released after failed checkout | User: %s", userID)
	}
}

func (s *Service) knownPrice(priceID string) bool {
	for _, id := range s.config.PriceIDs() {
		if id == priceID {
			return true
		}
	}
	return false
}

// ensureCustomer returns the user's payment customer, creating it on first checkout
func (s *Service) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", model.WrapError(model.CodeInternal, "Failed to load your account", err)
	}
	if user != nil && user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", providerError("Failed to create the billing customer", err)
	}
	if _, err := s.users.UpdateUser(ctx, userID, model.SubscriptionUpdate{
		Email:            model.StringPtr(email),
		StripeCustomerID: model.StringPtr(customerID),
	}); err != nil {
		return "", model.WrapError(model.CodeInternal, "Failed to save your account", err)
	}
	log.Log.Infof("[Billing] ✅ Customer created | User: %s | Customer: %s", userID, customerID)
	return customerID, nil
}

// CustomerPortal opens the billing portal for the caller
func (s *Service) CustomerPortal(ctx context.Context, callerID, userID string) (*PortalResponse, error) {
	if callerID == "" {
		return nil, model.NewError(model.CodeUnauthenticated, "You must be signed in")
	}
	if userID == "" {
		return nil, model.NewError(model.CodeInvalidArgument, "userId is required")
	}
	if userID != callerID {
		return nil, model.NewError(model.CodePermissionDenied, "You can only manage your own subscription")
	}
	if s.provider == nil {
		return nil, model.NewError(model.CodeFailedPrecondition, "Billing is not configured")
	}

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && user.StripeCustomerID == "") {
		return nil, model.NewError(model.CodeNotFound, "No billing account found")
	}
	if err != nil {
		return nil, model.WrapError(model.CodeInternal, "Failed to load your account", err)
	}

	url, err := s.provider.CreatePortalSession(ctx, user.StripeCustomerID, s.config.PortalReturnURL)
	if err != nil {
		return nil, providerError("Failed to open the billing portal", err)
	}
	return &PortalResponse{URL: url}, nil
}

// CheckCouponAvailability reports the state of the promotional coupon. A
// missing coupon reads as unavailable.
func (s *Service) CheckCouponAvailability(ctx context.Context) (*CouponAvailability, error) {
	if s.config.CouponID == "" {
		return &CouponAvailability{}, nil
	}
	coupon, err := s.coupons.GetCoupon(ctx, s.config.CouponID)
	if errors.Is(err, store.ErrNotFound) {
		return &CouponAvailability{}, nil
	}
	if err != nil {
		return nil, model.WrapError(model.CodeInternal, "Failed to load the coupon", err)
	}
	return &CouponAvailability{
		Available:       coupon.Available(),
		Remaining:       coupon.Remaining(),
		Total:           coupon.MaxRedemptions,
		DiscountPercent: coupon.DiscountPercent,
	}, nil
}

// HandleWebhook verifies a provider event and applies it to the matching
// user. Events for users that cannot be found are logged and acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil || s.config.StripeWebhookSecret == "" {
		return model.NewError(model.CodeFailedPrecondition, "Webhooks are not configured")
	}
	if signature == "" {
		return model.NewError(model.CodeInvalidArgument, "Missing webhook signature")
	}

	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		log.Log.Warnf("[Billing] ⚠️  Rejected webhook | Error: %v", err)
		return model.WrapError(model.CodeInvalidArgument, "Invalid webhook signature", err)
	}

	update, ok := s.updateFor(event)
	if !ok {
		log.Log.Debugf("[Billing] Ignoring webhook event %s (%s)", event.ID, event.Type)
		return nil
	}

	userID, err := s.resolveUser(ctx, event)
	if err != nil {
		return model.WrapError(model.CodeInternal, "Failed to look up the user", err)
	}
	if userID == "" {
		log.Log.Warnf("[Billing] ⚠️  No user for webhook | Event: %s | Type: %s | Customer: %s | Subscription: %s",
			event.ID, event.Type, event.CustomerID, event.SubscriptionID)
		return nil
	}

	if _, err := s.users.UpdateUser(ctx, userID, update); err != nil {
		return model.WrapError(model.CodeInternal, "Failed to update the subscription", err)
	}
	log.Log.Infof("[Billing] ✅ Webhook applied | Event: %s | Type: %s | User: %s", event.ID, event.Type, userID)
	return nil
}

// resolveUser finds an existing user by metadata, then by stored
// subscription id, then by customer id. It returns "" when nothing matches,
// so a webhook never creates a user record.
func (s *Service) resolveUser(ctx context.Context, event *Event) (string, error) {
	lookups := []struct {
		id   string
		find func(context.Context, string) (*model.User, error)
	}{
		{event.UserID, s.users.GetUser},
		{event.SubscriptionID, s.users.FindUserBySubscriptionID},
		{event.CustomerID, s.users.FindUserByCustomerID},
	}
	for _, l := range lookups {
		if l.id == "" {
			continue
		}
		user, err := l.find(ctx, l.id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return user.UserID, nil
	}
	return "", nil
}

// updateFor maps an event to subscription field changes. Unknown event types
// report false.
func (s *Service) updateFor(event *Event) (model.SubscriptionUpdate, bool) {
	var u model.SubscriptionUpdate
	if event.CustomerID != "" {
		u.StripeCustomerID = model.StringPtr(event.CustomerID)
	}
	if event.SubscriptionID != "" {
		u.StripeSubscriptionID = model.StringPtr(event.SubscriptionID)
	}

	switch event.Type {
	case EventCheckoutCompleted:
		u.SubscriptionTier = model.StringPtr(model.TierPro)
		if s.config.TrialDays > 0 {
			u.SubscriptionStatus = model.StringPtr(StatusTrialing)
			u.IsTrialing = model.BoolPtr(true)
		} else {
			u.SubscriptionStatus = model.StringPtr(StatusActive)
		}
		if event.Email != "" {
			u.Email = model.StringPtr(event.Email)
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		u.SubscriptionStatus = model.StringPtr(event.Status)
		u.SubscriptionTier = model.StringPtr(tierFor(event.Status))
		u.IsTrialing = model.BoolPtr(event.Status == StatusTrialing)
		if !event.TrialEnd.IsZero() {
			u.TrialEndsAt = model.TimePtr(event.TrialEnd)
		}
		if !event.CurrentPeriodEnd.IsZero() {
			u.SubscriptionExpiresAt = model.TimePtr(event.CurrentPeriodEnd)
		}

	case EventSubscriptionDeleted:
		u.SubscriptionStatus = model.StringPtr(StatusCanceled)
		u.SubscriptionTier = model.StringPtr(model.TierFree)
		u.IsTrialing = model.BoolPtr(false)
		u.SubscriptionExpiresAt = model.TimePtr(time.Now().UTC())

	case EventInvoicePaymentSucceeded:
		u.SubscriptionStatus = model.StringPtr(StatusActive)
		u.SubscriptionTier = model.StringPtr(model.TierPro)
		u.IsTrialing = model.BoolPtr(false)
		if !event.CurrentPeriodEnd.IsZero() {
			u.SubscriptionExpiresAt = model.TimePtr(event.CurrentPeriodEnd)
		}

	case EventInvoicePaymentFailed:
		u.SubscriptionStatus = model.StringPtr(StatusPastDue)

	default:
		return u, false
	}
	return u, true
}

// tierFor keeps paid access while the subscription is usable or being retried
func tierFor(status string) string {
	switch status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return model.TierPro
	default:
		return model.TierFree
	}
}

// providerError classifies a payment provider failure
func providerError(message string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusTooManyRequests {
		return model.WrapError(model.CodeResourceExhausted, "The payment provider is busy. Please try again.", err)
	}
	return model.WrapError(model.CodeInternal, message, err)
}
