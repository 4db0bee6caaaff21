package entitlements

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/customer"
	"gorm.io/gorm"

	"github.com/flowdeck-app/flowdeck/app/models"
	"github.com/flowdeck-app/flowdeck/internal/pkg/apperr"
	"github.com/flowdeck-app/flowdeck/internal/pkg/billing"
)

// Status is the full entitlement picture for one user.
type Status struct {
	Tier         Tier                        `json:"tier"`
	Limits       Limits                      `json:"limits"`
	Usage        Usage                       `json:"usage"`
	Subscription *models.BillingSubscription `json:"subscription,omitempty"`
}

// Decision answers one permission check.
type Decision struct {
	Allowed bool  `json:"allowed"`
	Limit   int64 `json:"limit"`
	Usage   int64 `json:"usage"`
}

// UsageCounter supplies the resource counts entitlements are checked against.
// The counted resources are owned by other subsystems; this service only
// reads their cardinality.
type UsageCounter interface {
	CountWorkflows(userID uint) (int64, error)
	CountIntegrations(userID uint) (int64, error)
}

type gormUsageCounter struct {
	db *gorm.DB
}

func (c *gormUsageCounter) CountWorkflows(userID uint) (int64, error) {
	return models.CountWorkflowsByUser(c.db, userID)
}

func (c *gormUsageCounter) CountIntegrations(userID uint) (int64, error) {
	var n int64
	err := c.db.Model(&models.IntegrationRecord{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Service derives tier, limits and usage from reconciled billing state.
type Service struct {
	repo  billing.Repository
	usage UsageCounter

	// customerIDByEmail backs the email fallback; a Stripe API search in
	// production, a stub in tests.
	customerIDByEmail func(email string) (string, error)
}

// NewService creates an evaluator from injected collaborators.
func NewService(repo billing.Repository, usage UsageCounter) *Service {
	return &Service{
		repo:              repo,
		usage:             usage,
		customerIDByEmail: stripeCustomerIDByEmail,
	}
}

// NewServiceFromDB creates an evaluator from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(billing.NewRepository(db), &gormUsageCounter{db: db})
}

// GetStatus returns tier, limits, usage and the governing subscription
// snapshot for a user. When the user has no local customer linkage yet and an
// email fallback is supplied, a Stripe lookup by email may self-heal the link
// so later webhooks resolve.
func (s *Service) GetStatus(ctx context.Context, userID uint, emailFallback string) (*Status, error) {
	_ = ctx
	s.healCustomerLink(userID, emailFallback)

	subscription, err := s.currentSubscription(userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrPersistence, "")
	}

	tier := TierFree
	if subscription != nil {
		tier = TierForPriceID(subscription.PriceID)
	}

	usage, err := s.currentUsage(userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrPersistence, "")
	}

	return &Status{
		Tier:         tier,
		Limits:       LimitsFor(tier),
		Usage:        usage,
		Subscription: subscription,
	}, nil
}

// CanPerformAction answers a single permission check. It is a pure read with
// no side effects, safe to call on every gated action.
func (s *Service) CanPerformAction(ctx context.Context, userID uint, action string) (*Decision, error) {
	_ = ctx
	subscription, err := s.currentSubscription(userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrPersistence, "")
	}
	tier := TierFree
	if subscription != nil {
		tier = TierForPriceID(subscription.PriceID)
	}
	limits := LimitsFor(tier)

	var limit, used int64
	switch strings.TrimSpace(action) {
	case ActionCreateWorkflow:
		limit = limits.MaxWorkflows
		used, err = s.usage.CountWorkflows(userID)
	case ActionConnectIntegration:
		limit = limits.MaxIntegrations
		used, err = s.usage.CountIntegrations(userID)
	default:
		return nil, apperr.Wrap(errors.New("unknown action "+action), apperr.ErrValidation, "unknown_action")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrPersistence, "")
	}

	return &Decision{
		Allowed: limit < 0 || used < limit,
		Limit:   limit,
		Usage:   used,
	}, nil
}

// currentSubscription picks the most recent active or trialing subscription.
func (s *Service) currentSubscription(userID uint) (*models.BillingSubscription, error) {
	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].IsEntitling() {
			return &subs[i], nil
		}
	}
	return nil, nil
}

func (s *Service) currentUsage(userID uint) (Usage, error) {
	workflows, err := s.usage.CountWorkflows(userID)
	if err != nil {
		return Usage{}, err
	}
	integrations, err := s.usage.CountIntegrations(userID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Workflows: workflows, Integrations: integrations}, nil
}

func (s *Service) healCustomerLink(userID uint, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}
	if _, err := s.repo.GetCustomerByUserID(userID); err == nil {
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}

	customerID, err := s.customerIDByEmail(email)
	if err != nil || customerID == "" {
		return
	}
	if err := s.repo.UpsertCustomer(&models.BillingCustomer{
		UserID:           userID,
		StripeCustomerID: customerID,
	}); err != nil {
		log.Printf("entitlements: customer link heal failed for user %d: %v", userID, err)
	}
}

func stripeCustomerIDByEmail(email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Filters.AddFilter("limit", "", "1")
	iter := customer.List(params)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	return "", iter.Err()
}
