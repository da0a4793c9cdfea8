package service

import (
	"context"
	"errors"
	"time"

	"capture-relay-api/internal/model"
	"capture-relay-api/internal/repository"
)

// ErrRegistrationUnsupported is returned when accounts come from an
// external read-only directory.
var ErrRegistrationUnsupported = errors.New("account registration not supported by this directory")

// AccountService exposes the account directory. Registration only
// works against the embedded store; the external MySQL directory is
// read-only.
type AccountService struct {
	accounts  repository.AccountRepository
	registrar repository.AccountRegistrar // nil when directory is external
}

// NewAccountService creates an account service. registrar may be nil.
func NewAccountService(accounts repository.AccountRepository, registrar repository.AccountRegistrar) *AccountService {
	return &AccountService{accounts: accounts, registrar: registrar}
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	return s.accounts.GetAccount(ctx, accountID)
}

// Register creates a new account with the given tier.
func (s *AccountService) Register(ctx context.Context, accountID string, tier model.Tier) (*model.Account, error) {
	if s.registrar == nil {
		return nil, ErrRegistrationUnsupported
	}
	if tier == "" {
		tier = model.TierFree
	}

	account := &model.Account{
		ID:        accountID,
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.registrar.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}
