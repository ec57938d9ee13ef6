package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeProvider implements PaymentProvider on the Stripe API
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a provider for a secret key. backends may be nil
// for the default Stripe endpoints.
func NewStripeProvider(secretKey, webhookSecret string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

// CreateCustomer implements PaymentProvider
func (p *StripeProvider) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID)

	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession implements PaymentProvider
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(cp.CustomerID),
		ClientReferenceID: stripe.String(cp.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cp.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: cp.UserID},
		},
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, cp.UserID)
	if cp.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(cp.TrialDays))
	}
	if cp.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(cp.CouponID)}}
	} else {
		params.AllowPromotionCodes = stripe.Bool(true)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// CreatePortalSession implements PaymentProvider
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}

// ParseWebhook implements PaymentProvider. Events of types the service does
// not handle are returned with only ID and Type set.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.UserID = s.Metadata[MetadataUserID]
		if out.UserID == "" {
			out.UserID = s.ClientReferenceID
		}
		if s.Customer != nil {
			out.CustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			out.SubscriptionID = s.Subscription.ID
		}
		out.Email = s.CustomerEmail
		if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
			out.Email = s.CustomerDetails.Email
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		out.UserID = sub.Metadata[MetadataUserID]
		out.SubscriptionID = sub.ID
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		out.Status = string(sub.Status)
		out.TrialEnd = unixTime(sub.TrialEnd)
		out.CurrentPeriodEnd = unixTime(sub.CurrentPeriodEnd)

	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
			out.UserID = inv.Subscription.Metadata[MetadataUserID]
		}
		out.Email = inv.CustomerEmail
		if inv.Lines != nil {
			for _, line := range inv.Lines.Data {
				if line.Period != nil {
					if end := unixTime(line.Period.End); end.After(out.CurrentPeriodEnd) {
						out.CurrentPeriodEnd = end
					}
				}
			}
		}
	}
	return out, nil
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
