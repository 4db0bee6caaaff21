package models

import "time"

// Subscription status values mirror Stripe's subscription lifecycle.
const (
	BillingStatusTrialing          = "trialing"
	BillingStatusActive            = "active"
	BillingStatusPastDue           = "past_due"
	BillingStatusCanceled          = "canceled"
	BillingStatusIncomplete        = "incomplete"
	BillingStatusIncompleteExpired = "incomplete_expired"
	BillingStatusUnpaid            = "unpaid"
)

// BillingSubscription mirrors one Stripe subscription, keyed by the
// provider-assigned subscription id. Every lifecycle webhook overwrites it
// with the event's full snapshot; canceled is terminal.
type BillingSubscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_billing_subscriptions_subid,unique" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;index" json:"stripe_customer_id"`
	PriceID              string     `gorm:"type:varchar(191);default:''" json:"price_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	TrialStart           *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the subscription grants a paid tier.
func (s *BillingSubscription) IsEntitling() bool {
	switch s.Status {
	case BillingStatusActive, BillingStatusTrialing:
		return true
	default:
		return false
	}
}

// IsValidBillingStatus reports whether status is one of the Stripe lifecycle values.
func IsValidBillingStatus(status string) bool {
	switch status {
	case BillingStatusTrialing, BillingStatusActive, BillingStatusPastDue,
		BillingStatusCanceled, BillingStatusIncomplete,
		BillingStatusIncompleteExpired, BillingStatusUnpaid:
		return true
	default:
		return false
	}
}
