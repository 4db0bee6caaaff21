package models

import "time"

// BillingCustomer links a local user to their Stripe customer object.
// Written once by the checkout-completed webhook, then used to resolve
// subscription events back to a user.
type BillingCustomer struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index:ux_billing_customers_user,unique" json:"user_id"`
	StripeCustomerID string    `gorm:"type:varchar(191);not null;index:ux_billing_customers_customer,unique" json:"stripe_customer_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
