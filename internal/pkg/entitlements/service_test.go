package entitlements

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/flowdeck-app/flowdeck/app/models"
	"github.com/flowdeck-app/flowdeck/internal/pkg/apperr"
)

type fakeBillingRepo struct {
	customers map[uint]*models.BillingCustomer
	subs      []models.BillingSubscription
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{customers: make(map[uint]*models.BillingCustomer)}
}

func (f *fakeBillingRepo) UpsertCustomer(c *models.BillingCustomer) error {
	cp := *c
	f.customers[c.UserID] = &cp
	return nil
}

func (f *fakeBillingRepo) GetCustomerByStripeID(stripeCustomerID string) (*models.BillingCustomer, error) {
	for _, c := range f.customers {
		if c.StripeCustomerID == stripeCustomerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillingRepo) GetCustomerByUserID(userID uint) (*models.BillingCustomer, error) {
	c, ok := f.customers[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeBillingRepo) UpsertSubscription(sub *models.BillingSubscription) error {
	f.subs = append(f.subs, *sub)
	return nil
}

func (f *fakeBillingRepo) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.BillingSubscription, error) {
	for i := range f.subs {
		if f.subs[i].StripeSubscriptionID == stripeSubscriptionID {
			cp := f.subs[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillingRepo) SaveSubscription(sub *models.BillingSubscription) error {
	for i := range f.subs {
		if f.subs[i].StripeSubscriptionID == sub.StripeSubscriptionID {
			f.subs[i] = *sub
			return nil
		}
	}
	f.subs = append(f.subs, *sub)
	return nil
}

func (f *fakeBillingRepo) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var out []models.BillingSubscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeUsage struct {
	workflows    int64
	integrations int64
}

func (f *fakeUsage) CountWorkflows(uint) (int64, error)    { return f.workflows, nil }
func (f *fakeUsage) CountIntegrations(uint) (int64, error) { return f.integrations, nil }

func newTestService(repo *fakeBillingRepo, usage *fakeUsage) *Service {
	svc := NewService(repo, usage)
	svc.customerIDByEmail = func(string) (string, error) {
		return "", errors.New("unexpected api call")
	}
	return svc
}

func TestGetStatusFreeTierWithoutSubscription(t *testing.T) {
	svc := newTestService(newFakeBillingRepo(), &fakeUsage{workflows: 2, integrations: 1})

	status, err := svc.GetStatus(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Equal(t, TierFree, status.Tier)
	assert.Equal(t, LimitsFor(TierFree), status.Limits)
	assert.Equal(t, Usage{Workflows: 2, Integrations: 1}, status.Usage)
	assert.Nil(t, status.Subscription)
}

func TestGetStatusPaidTierFromEntitlingSubscription(t *testing.T) {
	t.Setenv("STRIPE_PRO_PRICE_ID", "price_pro")

	repo := newFakeBillingRepo()
	repo.subs = []models.BillingSubscription{
		{UserID: 7, StripeSubscriptionID: "sub_old", Status: models.BillingStatusCanceled, PriceID: "price_pro"},
		{UserID: 7, StripeSubscriptionID: "sub_live", Status: models.BillingStatusActive, PriceID: "price_pro"},
	}
	svc := newTestService(repo, &fakeUsage{})

	status, err := svc.GetStatus(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Equal(t, TierPro, status.Tier)
	require.NotNil(t, status.Subscription)
	assert.Equal(t, "sub_live", status.Subscription.StripeSubscriptionID)
}

func TestGetStatusTrialingCountsAsEntitling(t *testing.T) {
	t.Setenv("STRIPE_STARTER_PRICE_ID", "price_starter")

	repo := newFakeBillingRepo()
	repo.subs = []models.BillingSubscription{
		{UserID: 7, StripeSubscriptionID: "sub_1", Status: models.BillingStatusTrialing, PriceID: "price_starter"},
	}
	svc := newTestService(repo, &fakeUsage{})

	status, err := svc.GetStatus(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Equal(t, TierStarter, status.Tier)
}

func TestGetStatusPastDueDoesNotEntitle(t *testing.T) {
	t.Setenv("STRIPE_PRO_PRICE_ID", "price_pro")

	repo := newFakeBillingRepo()
	repo.subs = []models.BillingSubscription{
		{UserID: 7, StripeSubscriptionID: "sub_1", Status: models.BillingStatusPastDue, PriceID: "price_pro"},
	}
	svc := newTestService(repo, &fakeUsage{})

	status, err := svc.GetStatus(context.Background(), 7, "")
	require.NoError(t, err)
	assert.Equal(t, TierFree, status.Tier)
	assert.Nil(t, status.Subscription)
}

func TestGetStatusHealsMissingCustomerLink(t *testing.T) {
	repo := newFakeBillingRepo()
	svc := newTestService(repo, &fakeUsage{})
	svc.customerIDByEmail = func(email string) (string, error) {
		assert.Equal(t, "u@example.com", email)
		return "cus_healed", nil
	}

	_, err := svc.GetStatus(context.Background(), 7, "u@example.com")
	require.NoError(t, err)

	c, err := repo.GetCustomerByUserID(7)
	require.NoError(t, err)
	assert.Equal(t, "cus_healed", c.StripeCustomerID)
}

func TestGetStatusDoesNotTouchExistingCustomerLink(t *testing.T) {
	repo := newFakeBillingRepo()
	require.NoError(t, repo.UpsertCustomer(&models.BillingCustomer{UserID: 7, StripeCustomerID: "cus_1"}))
	svc := newTestService(repo, &fakeUsage{})

	called := false
	svc.customerIDByEmail = func(string) (string, error) {
		called = true
		return "cus_other", nil
	}

	_, err := svc.GetStatus(context.Background(), 7, "u@example.com")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestCanPerformActionUnderLimit(t *testing.T) {
	svc := newTestService(newFakeBillingRepo(), &fakeUsage{workflows: 2})

	d, err := svc.CanPerformAction(context.Background(), 7, ActionCreateWorkflow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(3), d.Limit)
	assert.Equal(t, int64(2), d.Usage)
}

func TestCanPerformActionAtLimitDenied(t *testing.T) {
	svc := newTestService(newFakeBillingRepo(), &fakeUsage{workflows: 3, integrations: 1})

	d, err := svc.CanPerformAction(context.Background(), 7, ActionCreateWorkflow)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = svc.CanPerformAction(context.Background(), 7, ActionConnectIntegration)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(1), d.Limit)
}

func TestCanPerformActionUnlimitedTier(t *testing.T) {
	t.Setenv("STRIPE_PRO_PRICE_ID", "price_pro")

	repo := newFakeBillingRepo()
	repo.subs = []models.BillingSubscription{
		{UserID: 7, StripeSubscriptionID: "sub_1", Status: models.BillingStatusActive, PriceID: "price_pro"},
	}
	svc := newTestService(repo, &fakeUsage{workflows: 5000})

	d, err := svc.CanPerformAction(context.Background(), 7, ActionCreateWorkflow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(-1), d.Limit)
}

func TestCanPerformActionUnknownAction(t *testing.T) {
	svc := newTestService(newFakeBillingRepo(), &fakeUsage{})

	_, err := svc.CanPerformAction(context.Background(), 7, "delete_account")
	require.Error(t, err)
	assert.Equal(t, "unknown_action", apperr.CodeOf(err))
}
