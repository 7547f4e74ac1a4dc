package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/clock"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("ifxbilling/fiine")

type SyncParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Source      domain.AccountSource
	AccountRepo accountdomain.Repository
}

// SyncService mirrors fiine's accounts and user authorizations locally.
type SyncService struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	source      domain.AccountSource
	accountRepo accountdomain.Repository
}

func NewSyncService(p SyncParam) *SyncService {
	return &SyncService{
		db:          p.DB,
		log:         p.Log.Named("fiine.sync"),
		genID:       p.GenID,
		clock:       p.Clock,
		source:      p.Source,
		accountRepo: p.AccountRepo,
	}
}

// SyncUser upserts the accounts fiine reports for username and invalidates
// every other default authorization the user holds.
func (s *SyncService) SyncUser(ctx context.Context, username string) (*domain.SyncResult, error) {
	ctx, span := tracer.Start(ctx, "fiine.sync_user")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	user, err := s.accountRepo.FindUserByUsername(ctx, s.db.WithContext(ctx), username)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if user == nil {
		return nil, ierr.NewErrorf("product user %s does not exist", username).Mark(ierr.ErrNotFound)
	}

	remote, err := s.source.UserAccounts(ctx, username)
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{Users: 1}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keep := make([]snowflake.ID, 0, len(remote))
		for _, auth := range remote {
			account, err := s.upsertAccount(ctx, tx, auth.Account, result)
			if err != nil {
				if ierr.IsPersistence(err) {
					return err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", username, err.Error()))
				existing, findErr := s.accountRepo.FindAccountByCode(ctx, tx, auth.Account.Code)
				if findErr != nil {
					return ierr.WithError(findErr).Mark(ierr.ErrPersistence)
				}
				if existing != nil {
					keep = append(keep, existing.ID)
				}
				continue
			}

			if err := s.upsertAuthorization(ctx, tx, user.ID, account.ID, auth.IsValid); err != nil {
				return err
			}
			result.Authorizations++
			if auth.IsValid {
				keep = append(keep, account.ID)
			}
		}

		invalidated, err := s.accountRepo.InvalidateUserAccounts(ctx, tx, user.ID, keep)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrPersistence)
		}
		result.Invalidated = invalidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("synchronized user accounts",
		zap.String("username", username),
		zap.Int("created", result.AccountsCreated),
		zap.Int("updated", result.AccountsUpdated),
		zap.Int64("invalidated", result.Invalidated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// SyncAll synchronizes every product user. Per-user failures are collected
// in the result rather than aborting the run.
func (s *SyncService) SyncAll(ctx context.Context) (*domain.SyncResult, error) {
	users, err := s.accountRepo.ListUsers(ctx, s.db.WithContext(ctx))
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}

	total := &domain.SyncResult{}
	for _, user := range users {
		res, err := s.SyncUser(ctx, user.Username)
		if err != nil {
			total.Errors = append(total.Errors, fmt.Sprintf("%s: %s", user.Username, err.Error()))
			continue
		}
		total.Merge(res)
	}
	return total, nil
}

func (s *SyncService) upsertAccount(ctx context.Context, tx *gorm.DB, remote domain.RemoteAccount, result *domain.SyncResult) (*accountdomain.Account, error) {
	if remote.Code == "" {
		return nil, ierr.NewError("fiine account has no code").Mark(ierr.ErrValidation)
	}
	if remote.AccountType != accountdomain.AccountTypeExpenseCode && remote.AccountType != accountdomain.AccountTypePO {
		return nil, ierr.NewErrorf("account %s has unknown type %q", remote.Code, remote.AccountType).
			Mark(ierr.ErrValidation)
	}

	org, err := s.accountRepo.FindOrganizationByName(ctx, tx, remote.Organization)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if org == nil {
		return nil, ierr.NewErrorf("account %s belongs to unknown organization %q", remote.Code, remote.Organization).
			Mark(ierr.ErrNotFound)
	}

	account, err := s.accountRepo.FindAccountByCode(ctx, tx, remote.Code)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}

	now := s.clock.Now()
	if account == nil {
		account = &accountdomain.Account{
			ID:        s.genID.Generate(),
			Code:      remote.Code,
			CreatedAt: now,
		}
		result.AccountsCreated++
	} else {
		result.AccountsUpdated++
	}
	account.Name = remote.Name
	account.AccountType = remote.AccountType
	account.OrganizationID = org.ID
	account.Active = remote.Active
	account.ValidFrom = remote.ValidFrom
	account.ExpirationDate = remote.ExpirationDate
	account.Root = remote.Root
	account.UpdatedAt = now

	if err := s.accountRepo.SaveAccount(ctx, tx, account); err != nil {
		return nil, ierr.WithError(err).WithMessagef("save account %s", remote.Code).Mark(ierr.ErrPersistence)
	}
	return account, nil
}

func (s *SyncService) upsertAuthorization(ctx context.Context, tx *gorm.DB, userID, accountID snowflake.ID, valid bool) error {
	ua, err := s.accountRepo.FindUserAccount(ctx, tx, userID, accountID)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}

	now := s.clock.Now()
	if ua == nil {
		ua = &accountdomain.UserAccount{
			ID:        s.genID.Generate(),
			UserID:    userID,
			AccountID: accountID,
			CreatedAt: now,
		}
	}
	ua.IsValid = valid
	ua.UpdatedAt = now

	if err := s.accountRepo.SaveUserAccount(ctx, tx, ua); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	return nil
}
