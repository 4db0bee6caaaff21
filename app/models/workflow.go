package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workflow is the minimal projection of a user's automation workflow kept in
// this service. Full workflow CRUD lives in the editor backend; this table is
// only the counting source for entitlement checks.
type Workflow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Name      string    `gorm:"type:varchar(200);default:''" json:"name"`
	Active    bool      `gorm:"default:true;index" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Workflow) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == "" {
		w.UUID = uuid.New().String()
	}
	return nil
}

// CountWorkflowsByUser returns how many workflows a user currently has.
func CountWorkflowsByUser(db *gorm.DB, userID uint) (int64, error) {
	var n int64
	err := db.Model(&Workflow{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
