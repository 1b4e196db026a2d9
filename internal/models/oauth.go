package models

import "time"

// PendingFlow is a short-lived record of an authorization flow that has
// been started but not yet completed. The nonce rides inside the encoded
// redirect state; the callback consumes the row exactly once, so a forged
// or replayed state cannot select a credential row to overwrite.
type PendingFlow struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Nonce     string    `json:"nonce" gorm:"uniqueIndex;not null"`
	ProjectID int       `json:"project_id" gorm:"not null"`
	Provider  string    `json:"provider" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
}

// TableName specifies the table name for PendingFlow
func (PendingFlow) TableName() string {
	return "pending_flows"
}
