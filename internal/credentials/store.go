package credentials

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seopulse/seopulse/internal/models"
)

// ErrNotFound is returned when no credential exists for a (project, provider) pair.
var ErrNotFound = errors.New("credential not found")

// Store is the durable home of OAuth credentials. At most one live
// credential exists per (project, provider); Put replaces any prior row
// for the pair atomically. Callers pass the store explicitly, there is no
// process-wide instance.
type Store interface {
	// Get returns the credential for the pair, or ErrNotFound.
	Get(ctx context.Context, projectID int, provider string) (*models.Credential, error)

	// Put inserts or fully replaces the credential for
	// (cred.ProjectID, cred.Provider). Replace is wholesale: a stale
	// refresh token from a prior partial authorization never survives a
	// fresh one.
	Put(ctx context.Context, cred *models.Credential) error
}

// GormStore implements Store on the relational schema.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a credential store backed by gorm
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get returns the credential for a (project, provider) pair.
func (s *GormStore) Get(ctx context.Context, projectID int, provider string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND provider = ?", projectID, provider).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Put inserts or replaces the credential for its (project, provider) pair.
func (s *GormStore) Put(ctx context.Context, cred *models.Credential) error {
	cred.UpdatedAt = time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = cred.UpdatedAt
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "account_email", "scopes", "updated_at",
		}),
	}).Create(cred).Error
}
