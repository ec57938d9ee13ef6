package model

// Coupon is a limited-redemption promotional discount backed by a Stripe coupon
type Coupon struct {
	ID                 string   `json:"id"`
	MaxRedemptions     int      `json:"maxRedemptions"`
	CurrentRedemptions int      `json:"currentRedemptions"`
	DiscountPercent    float64  `json:"discountPercent"`
	RedeemedBy         []string `json:"redeemedBy"`
}

// Remaining returns how many redemptions are left
func (c *Coupon) Remaining() int {
	if r := c.MaxRedemptions - c.CurrentRedemptions; r > 0 {
		return r
	}
	return 0
}

// Available reports whether at least one redemption is left
func (c *Coupon) Available() bool {
	return c.Remaining() > 0
}

// RedeemedByUser reports whether userID already holds a redemption
func (c *Coupon) RedeemedByUser(userID string) bool {
	for _, id := range c.RedeemedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Redeem applies one redemption for userID in memory.
// It returns false when the user already redeemed or nothing is left.
func (c *Coupon) Redeem(userID string) bool {
	if c.RedeemedByUser(userID) || !c.Available() {
		return false
	}
	c.CurrentRedemptions++
	c.RedeemedBy = append(c.RedeemedBy, userID)
	return true
}

// Release returns userID's redemption to the pool.
// It returns false when the user holds no redemption.
func (c *Coupon) Release(userID string) bool {
	for i, id := range c.RedeemedBy {
		if id != userID {
			continue
		}
		c.RedeemedBy = append(c.RedeemedBy[:i], c.RedeemedBy[i+1:]...)
		if c.CurrentRedemptions > 0 {
			c.CurrentRedemptions--
		}
		return true
	}
	return false
}
