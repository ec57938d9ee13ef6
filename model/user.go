package model

import "time"

// Subscription tiers
const (
	TierFree = "free"
	TierPro  = "pro"
)

// User holds the profile and subscription state the billing layer maintains
type User struct {
	// UserID is the unique identifier for the user
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`

	// Subscription state
	SubscriptionTier      string    `json:"subscriptionTier"`
	SubscriptionStatus    string    `json:"subscriptionStatus,omitempty"`
	IsTrialing            bool      `json:"isTrialing"`
	TrialEndsAt           time.Time `json:"trialEndsAt,omitempty"`
	SubscriptionExpiresAt time.Time `json:"subscriptionExpiresAt,omitempty"`

	// Stripe references
	StripeCustomerID     string `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string `json:"stripeSubscriptionId,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUser creates a new free-tier user
func NewUser(userID string) *User {
	now := time.Now()
	return &User{
		UserID:           userID,
		SubscriptionTier: TierFree,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsPro reports whether the user currently has paid access
func (u *User) IsPro() bool {
	if u.SubscriptionTier != TierPro {
		return false
	}
	if u.SubscriptionExpiresAt.IsZero() {
		return true
	}
	return time.Now().Before(u.SubscriptionExpiresAt)
}

// SubscriptionUpdate is a merge-style patch; nil fields are left untouched
type SubscriptionUpdate struct {
	Email                 *string
	SubscriptionTier      *string
	SubscriptionStatus    *string
	IsTrialing            *bool
	TrialEndsAt           *time.Time
	SubscriptionExpiresAt *time.Time
	StripeCustomerID      *string
	StripeSubscriptionID  *string
}

// IsEmpty reports whether the update touches no field
func (u SubscriptionUpdate) IsEmpty() bool {
	return u.Email == nil && u.SubscriptionTier == nil && u.SubscriptionStatus == nil &&
		u.IsTrialing == nil && u.TrialEndsAt == nil && u.SubscriptionExpiresAt == nil &&
		u.StripeCustomerID == nil && u.StripeSubscriptionID == nil
}

// Apply merges the update into the user and bumps UpdatedAt
func (u SubscriptionUpdate) Apply(user *User) {
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.SubscriptionTier != nil {
		user.SubscriptionTier = *u.SubscriptionTier
	}
	if u.SubscriptionStatus != nil {
		user.SubscriptionStatus = *u.SubscriptionStatus
	}
	if u.IsTrialing != nil {
		user.IsTrialing = *u.IsTrialing
	}
	if u.TrialEndsAt != nil {
		user.TrialEndsAt = *u.TrialEndsAt
	}
	if u.SubscriptionExpiresAt != nil {
		user.SubscriptionExpiresAt = *u.SubscriptionExpiresAt
	}
	if u.StripeCustomerID != nil {
		user.StripeCustomerID = *u.StripeCustomerID
	}
	if u.StripeSubscriptionID != nil {
		user.StripeSubscriptionID = *u.StripeSubscriptionID
	}
	user.UpdatedAt = time.Now()
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string { return &s }

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool { return &b }

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time { return &t }
