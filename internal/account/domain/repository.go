package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AuthorizationQuery scopes an authorization lookup to an organization
// and the instant the usage started.
type AuthorizationQuery struct {
	UserID         snowflake.ID
	ProductID      snowflake.ID
	OrganizationID snowflake.ID
	At             time.Time
}

type Repository interface {
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProductUser, error)
	FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*ProductUser, error)
	ListUsers(ctx context.Context, db *gorm.DB) ([]ProductUser, error)
	FindOrganizationByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindOrganizationByName(ctx context.Context, db *gorm.DB, name string) (*Organization, error)
	FindOrganizationsByName(ctx context.Context, db *gorm.DB, names []string) ([]Organization, error)
	FindOrganizationsByID(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Organization, error)

	ListProductAuthorizations(ctx context.Context, db *gorm.DB, q AuthorizationQuery) ([]UserProductAccount, error)
	ListDefaultAuthorizations(ctx context.Context, db *gorm.DB, q AuthorizationQuery) ([]UserAccount, error)

	FindAccountByCode(ctx context.Context, db *gorm.DB, code string) (*Account, error)
	SaveAccount(ctx context.Context, db *gorm.DB, account *Account) error
	FindUserAccount(ctx context.Context, db *gorm.DB, userID, accountID snowflake.ID) (*UserAccount, error)
	SaveUserAccount(ctx context.Context, db *gorm.DB, ua *UserAccount) error
	InvalidateUserAccounts(ctx context.Context, db *gorm.DB, userID snowflake.ID, keep []snowflake.ID) (int64, error)
}
