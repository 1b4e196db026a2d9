package notification

import (
	"context"
	"fmt"
	"sync"
)

// Provider defines the interface for all notification providers
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send sends a notification with the given message
	Send(ctx context.Context, notification *Notification, message *Message) error

	// Validate validates the provider configuration
	Validate(config map[string]interface{}) error
}

// Notification represents a notification channel configuration
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	UserID    int                    `json:"user_id" db:"user_id"`
	Name      string                 `json:"name" db:"name"`
	Type      string                 `json:"type" db:"type"` // slack, webhook
	Config    map[string]interface{} `json:"config"`
	ConfigRaw string                 `json:"-" db:"config"` // JSON storage
	IsDefault bool                   `json:"is_default" db:"is_default"`
	Active    bool                   `json:"active" db:"active"`
	CreatedAt string                 `json:"created_at" db:"created_at"`
	UpdatedAt string                 `json:"updated_at" db:"updated_at"`
}

// Message represents a notification message to be sent
type Message struct {
	Title      string
	Body       string
	ProjectID  int
	Provider   string // gsc, ga4, ahrefs
	Event      string // "sync_failed", "sync_partial", "reauth_required"
	ErrorCode  string
	RowsSynced int64
	Time       string
}

// Registry holds all registered notification providers
var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// GetAllProviders returns all registered providers
func GetAllProviders() map[string]Provider {
	mu.RLock()
	defer mu.RUnlock()
	result := make(map[string]Provider)
	for k, v := range providers {
		result[k] = v
	}
	return result
}

// FormatMessage formats a notification message with common details
func FormatMessage(msg *Message) string {
	body := msg.Title + "\n\n"
	body += msg.Body + "\n\n"
	body += fmt.Sprintf("Project: %d\n", msg.ProjectID)
	body += fmt.Sprintf("Integration: %s\n", msg.Provider)

	if msg.ErrorCode != "" {
		body += fmt.Sprintf("Error: %s\n", msg.ErrorCode)
	}

	if msg.RowsSynced > 0 {
		body += fmt.Sprintf("Rows synced before failure: %d\n", msg.RowsSynced)
	}

	body += fmt.Sprintf("Time: %s\n", msg.Time)

	return body
}
