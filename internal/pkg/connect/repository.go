package connect

import (
	"github.com/flowdeck-app/flowdeck/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations for stored OAuth grants.
type Repository interface {
	Upsert(rec *models.IntegrationRecord) error
	Find(userID uint, provider string) (*models.IntegrationRecord, error)
	ListByUser(userID uint) ([]models.IntegrationRecord, error)
	Delete(userID uint, provider string) (int64, error)
	CountByUser(userID uint) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an integration repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Upsert writes a full grant keyed on (user_id, provider). Replace semantics:
// every column is assigned so a reconnect fully supersedes stale data.
func (r *gormRepository) Upsert(rec *models.IntegrationRecord) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token",
			"refresh_token",
			"token_expires_at",
			"provider_user_id",
			"provider_email",
			"provider_data",
			"updated_at",
		}),
	}).Create(rec).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ? AND provider = ?", rec.UserID, rec.Provider).
		First(rec).Error
}

func (r *gormRepository) Find(userID uint, provider string) (*models.IntegrationRecord, error) {
	var rec models.IntegrationRecord
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) ListByUser(userID uint) ([]models.IntegrationRecord, error) {
	var recs []models.IntegrationRecord
	err := r.db.Where("user_id = ?", userID).Find(&recs).Error
	return recs, err
}

func (r *gormRepository) Delete(userID uint, provider string) (int64, error) {
	tx := r.db.Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&models.IntegrationRecord{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) CountByUser(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.IntegrationRecord{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
