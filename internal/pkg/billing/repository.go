package billing

import (
	"github.com/flowdeck-app/flowdeck/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	UpsertCustomer(c *models.BillingCustomer) error
	GetCustomerByStripeID(stripeCustomerID string) (*models.BillingCustomer, error)
	GetCustomerByUserID(userID uint) (*models.BillingCustomer, error)
	UpsertSubscription(sub *models.BillingSubscription) error
	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.BillingSubscription, error)
	SaveSubscription(sub *models.BillingSubscription) error
	ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) UpsertCustomer(c *models.BillingCustomer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id",
			"updated_at",
		}),
	}).Create(c).Error; err != nil {
		return err
	}

	return r.db.Where("user_id = ?", c.UserID).First(c).Error
}

func (r *gormRepository) GetCustomerByStripeID(stripeCustomerID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.Where("stripe_customer_id = ?", stripeCustomerID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetCustomerByUserID(userID uint) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	err := r.db.Where("user_id = ?", userID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"stripe_customer_id",
			"price_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"trial_start",
			"trial_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.BillingSubscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}
