package models

import "time"

// Provider identifiers for the supported integrations.
const (
	ProviderGSC    = "gsc"    // Google Search Console
	ProviderGA4    = "ga4"    // Google Analytics 4
	ProviderAhrefs = "ahrefs" // planned
)

// KnownProvider reports whether p is one of the registered providers.
func KnownProvider(p string) bool {
	switch p {
	case ProviderGSC, ProviderGA4, ProviderAhrefs:
		return true
	}
	return false
}

// Credential holds the OAuth tokens for one (project, provider) pair.
// At most one live row exists per pair; a fresh authorization replaces
// the previous row wholesale.
type Credential struct {
	ID           int       `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID    int       `json:"project_id" gorm:"not null;uniqueIndex:idx_credentials_project_provider"`
	Provider     string    `json:"provider" gorm:"not null;uniqueIndex:idx_credentials_project_provider"`
	AccessToken  string    `json:"-" gorm:"not null"`
	RefreshToken *string   `json:"-"` // some flows never issue one
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	AccountEmail string    `json:"account_email"` // display only
	Scopes       string    `json:"scopes"`        // space-separated
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for Credential
func (Credential) TableName() string {
	return "credentials"
}

// HasRefreshToken reports whether a refresh token is stored.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}
