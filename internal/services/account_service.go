package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

var (
	// ErrAccountNotFound is returned for an owner with no stored account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials is returned when saving without an access token.
	ErrInvalidCredentials = errors.New("access token is required")
)

// AccountService stores platform credentials per owner. The OAuth exchange
// that produces them happens elsewhere.
type AccountService struct {
	DB *gorm.DB
}

// SaveCredentials creates or updates userID's account.
func (s *AccountService) SaveCredentials(ctx context.Context, userID, handle, accessToken, clientID string) (*domain.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingOwner
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrInvalidCredentials
	}
	return repo.UpsertAccount(ctx, s.DB, userID, strings.TrimSpace(handle), strings.TrimSpace(accessToken), strings.TrimSpace(clientID))
}

// ClearCredentials removes userID's token. Their posts publish in simulation
// until new credentials are saved.
func (s *AccountService) ClearCredentials(ctx context.Context, userID string) error {
	if err := repo.ClearCredentials(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// Get returns userID's account, or ErrAccountNotFound.
func (s *AccountService) Get(ctx context.Context, userID string) (*domain.Account, error) {
	a, err := repo.GetAccount(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return a, err
}
