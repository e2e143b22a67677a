package publisher

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// CredentialSource resolves the account that owns a post. A nil account with
// a nil error means the owner has never connected.
type CredentialSource interface {
	Account(ctx context.Context, ownerID string) (*domain.Account, error)
}

// DBCredentials reads accounts from the content store.
type DBCredentials struct {
	DB *gorm.DB
}

// Account implements CredentialSource.
func (s DBCredentials) Account(ctx context.Context, ownerID string) (*domain.Account, error) {
	a, err := repo.GetAccount(ctx, s.DB, ownerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return a, err
}
