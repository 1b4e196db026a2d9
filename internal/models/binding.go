package models

import "time"

// GscSite binds a project to a Search Console site. At most one binding
// exists per project; the sync pipeline only reads it.
type GscSite struct {
	ID              int       `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID       int       `json:"project_id" gorm:"not null;uniqueIndex"`
	SiteURL         string    `json:"site_url" gorm:"not null"`
	PermissionLevel string    `json:"permission_level"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for GscSite
func (GscSite) TableName() string {
	return "gsc_sites"
}

// Ga4Property binds a project to an Analytics 4 property.
type Ga4Property struct {
	ID           int       `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID    int       `json:"project_id" gorm:"not null;uniqueIndex"`
	PropertyID   string    `json:"property_id" gorm:"not null"`
	PropertyName string    `json:"property_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for Ga4Property
func (Ga4Property) TableName() string {
	return "ga4_properties"
}
