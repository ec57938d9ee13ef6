// Package billing wraps the payment provider: checkout, the customer portal,
// the limited-redemption coupon and the webhook that keeps a user's
// subscription fields in sync.
package billing

import (
	"context"
	"time"
)

// Webhook event types the service reacts to
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// MetadataUserID is the metadata key carrying our user id on provider objects
const MetadataUserID = "userId"

// PaymentProvider is the hosted payment backend
type PaymentProvider interface {
	// CreateCustomer registers a customer and returns its id
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	// CreateCheckoutSession starts a hosted subscription checkout and returns its URL
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	// CreatePortalSession opens the hosted billing portal and returns its URL
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	// ParseWebhook verifies a webhook signature and decodes the event
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// CheckoutParams describes one subscription checkout
type CheckoutParams struct {
	UserID     string
	CustomerID string
	PriceID    string
	CouponID   string // empty for no discount
	TrialDays  int
	SuccessURL string
	CancelURL  string
}

// Event is a verified webhook event reduced to the fields the service uses
type Event struct {
	ID   string
	Type string

	// UserID comes from the object's metadata (or checkout client reference)
	UserID         string
	CustomerID     string
	SubscriptionID string
	Email          string

	// Status is the subscription status when the object carries one
	Status           string
	TrialEnd         time.Time
	CurrentPeriodEnd time.Time
}
