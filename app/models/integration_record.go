package models

import "time"

// Integration provider constants used across connector-related models.
const (
	IntegrationProviderGoogle = "google"
	IntegrationProviderSlack  = "slack"
	IntegrationProviderNotion = "notion"
)

// IntegrationRecord stores one OAuth grant per (user, provider). A reconnect
// fully replaces the row; disconnect deletes it.
type IntegrationRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index:ux_integration_records_user_provider,unique,priority:1" json:"user_id"`
	Provider       string     `gorm:"type:varchar(20);not null;index:ux_integration_records_user_provider,unique,priority:2" json:"provider"`
	AccessToken    string     `gorm:"type:text;not null" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"token_expires_at,omitempty"`
	ProviderUserID string     `gorm:"type:varchar(191);default:''" json:"provider_user_id"`
	ProviderEmail  string     `gorm:"type:varchar(200);default:''" json:"provider_email"`
	ProviderData   string     `gorm:"type:longtext" json:"-"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// KnownIntegrationProviders lists the closed set of supported providers.
func KnownIntegrationProviders() []string {
	return []string{
		IntegrationProviderGoogle,
		IntegrationProviderSlack,
		IntegrationProviderNotion,
	}
}

// IsKnownIntegrationProvider reports whether p is one of the supported providers.
func IsKnownIntegrationProvider(p string) bool {
	switch p {
	case IntegrationProviderGoogle, IntegrationProviderSlack, IntegrationProviderNotion:
		return true
	default:
		return false
	}
}
