package finance

import (
	"context"

	"github.com/erp/ledger/internal/application"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// AccountService handles chart-of-accounts commands
type AccountService struct {
	accounts finance.AccountRepository
	opts     serviceOptions
}

// NewAccountService creates a new AccountService
func NewAccountService(accounts finance.AccountRepository, opts ...ServiceOption) *AccountService {
	return &AccountService{
		accounts: accounts,
		opts:     newServiceOptions(opts),
	}
}

// Open creates a new ledger account. A parent account must already exist and
// share the new account's type.
func (s *AccountService) Open(ctx context.Context, cmd OpenAccountCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	currency, err := s.opts.currencyOr(cmd.Currency)
	if err != nil {
		return application.CommandResult{}, err
	}
	accountType := finance.AccountType(cmd.Type)

	if cmd.ParentID != nil {
		parent, err := s.accounts.Load(ctx, cmd.TenantID, *cmd.ParentID)
		if err != nil {
			if shared.IsNotFound(err) {
				return application.CommandResult{}, shared.ErrNotFound.WithDetail("parent_id", cmd.ParentID.String())
			}
			return application.CommandResult{}, err
		}
		if parent.Type() != accountType {
			return application.CommandResult{}, finance.ErrInvalidAccountType.
				WithDetail("type", cmd.Type).
				WithDetail("parent_type", parent.Type().String())
		}
	}

	account, err := finance.OpenAccount(cmd.TenantID, cmd.Code, cmd.Name, accountType, cmd.ParentID, currency)
	if err != nil {
		return application.CommandResult{}, err
	}
	result, err := create(ctx, s.accounts.Save, account)
	if err != nil {
		return result, err
	}
	s.opts.logger.Info("account opened",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("account_id", account.ID().String()),
		zap.String("code", account.Code().String()),
	)
	return result, nil
}

// Rename changes an account's display name
func (s *AccountService) Rename(ctx context.Context, cmd RenameAccountCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		func(ctx context.Context) (*finance.Account, error) {
			return s.accounts.Load(ctx, cmd.TenantID, cmd.AccountID)
		},
		s.accounts.Save,
		func(a *finance.Account) error {
			return a.Rename(cmd.Name)
		},
	)
}

// Deactivate closes an account. Accounts with a balance are rejected.
func (s *AccountService) Deactivate(ctx context.Context, cmd DeactivateAccountCommand) (application.CommandResult, error) {
	if err := s.opts.validator.Struct(cmd); err != nil {
		return application.CommandResult{}, err
	}
	return execute(ctx, s.opts.retry,
		func(ctx context.Context) (*finance.Account, error) {
			return s.accounts.Load(ctx, cmd.TenantID, cmd.AccountID)
		},
		s.accounts.Save,
		func(a *finance.Account) error {
			return a.Deactivate(cmd.Reason)
		},
	)
}
