package models

import "time"

// Notification represents a notification channel configuration. Channels
// marked as default receive sync-failure and reauth alerts for every project.
type Notification struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int       `json:"user_id" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	Type      string    `json:"type" gorm:"not null"` // slack, webhook
	Config    string    `json:"-" gorm:"column:config;type:text"`
	IsDefault bool      `json:"is_default" gorm:"default:false"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}
