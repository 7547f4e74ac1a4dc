package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/db/option"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ProductUser, error) {
	if id == 0 {
		return nil, nil
	}
	return repository.ProvideStore[domain.ProductUser](db).FindOne(ctx, &domain.ProductUser{ID: id})
}

func (r *repo) FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.ProductUser, error) {
	if username == "" {
		return nil, nil
	}
	return repository.ProvideStore[domain.ProductUser](db).FindOne(ctx, &domain.ProductUser{Username: username})
}

func (r *repo) ListUsers(ctx context.Context, db *gorm.DB) ([]domain.ProductUser, error) {
	var items []domain.ProductUser
	if err := db.WithContext(ctx).Order("username ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindOrganizationByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, nil
	}
	return repository.ProvideStore[domain.Organization](db).FindOne(ctx, &domain.Organization{ID: id})
}

func (r *repo) FindOrganizationByName(ctx context.Context, db *gorm.DB, name string) (*domain.Organization, error) {
	if name == "" {
		return nil, nil
	}
	return repository.ProvideStore[domain.Organization](db).FindOne(ctx, &domain.Organization{Name: name})
}

func (r *repo) FindOrganizationsByName(ctx context.Context, db *gorm.DB, names []string) ([]domain.Organization, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var items []domain.Organization
	if err := db.WithContext(ctx).Where("name IN ?", names).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindOrganizationsByID(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Organization
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListProductAuthorizations returns valid product-scoped authorizations whose
// account is active, belongs to the organization and is open at q.At.
func (r *repo) ListProductAuthorizations(ctx context.Context, db *gorm.DB, q domain.AuthorizationQuery) ([]domain.UserProductAccount, error) {
	var candidates []domain.UserProductAccount
	err := db.WithContext(ctx).
		Where("user_id = ? AND product_id = ? AND is_valid = ?", q.UserID, q.ProductID, true).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	open, err := r.openAccountIDs(ctx, db, q, accountIDs(candidates, func(u domain.UserProductAccount) snowflake.ID { return u.AccountID }))
	if err != nil {
		return nil, err
	}

	out := make([]domain.UserProductAccount, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := open[c.AccountID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListDefaultAuthorizations returns valid default authorizations under the same account rules.
func (r *repo) ListDefaultAuthorizations(ctx context.Context, db *gorm.DB, q domain.AuthorizationQuery) ([]domain.UserAccount, error) {
	var candidates []domain.UserAccount
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_valid = ?", q.UserID, true).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	open, err := r.openAccountIDs(ctx, db, q, accountIDs(candidates, func(u domain.UserAccount) snowflake.ID { return u.AccountID }))
	if err != nil {
		return nil, err
	}

	out := make([]domain.UserAccount, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := open[c.AccountID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *repo) openAccountIDs(ctx context.Context, db *gorm.DB, q domain.AuthorizationQuery, ids []snowflake.ID) (map[snowflake.ID]struct{}, error) {
	opts := []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: ids}),
		option.ApplyOperator(option.Condition{Field: "active", Operator: option.EQ, Value: true}),
		option.ApplyOperator(option.Condition{Field: "organization_id", Operator: option.EQ, Value: q.OrganizationID}),
	}
	if !q.At.IsZero() {
		opts = append(opts,
			option.NullOrNotAfter("valid_from", q.At),
			option.NullOrAfter("expiration_date", q.At),
		)
	}

	accounts, err := repository.ProvideStore[domain.Account](db).Find(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	open := make(map[snowflake.ID]struct{}, len(accounts))
	for _, a := range accounts {
		open[a.ID] = struct{}{}
	}
	return open, nil
}

func accountIDs[T any](items []T, get func(T) snowflake.ID) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, get(item))
	}
	return ids
}

func (r *repo) FindAccountByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Account, error) {
	if code == "" {
		return nil, nil
	}
	return repository.ProvideStore[domain.Account](db).FindOne(ctx, &domain.Account{Code: code})
}

func (r *repo) SaveAccount(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Save(account).Error
}

func (r *repo) FindUserAccount(ctx context.Context, db *gorm.DB, userID, accountID snowflake.ID) (*domain.UserAccount, error) {
	var ua domain.UserAccount
	err := db.WithContext(ctx).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		Limit(1).
		Find(&ua).Error
	if err != nil {
		return nil, err
	}
	if ua.ID == 0 {
		return nil, nil
	}
	return &ua, nil
}

func (r *repo) SaveUserAccount(ctx context.Context, db *gorm.DB, ua *domain.UserAccount) error {
	return db.WithContext(ctx).Save(ua).Error
}

// InvalidateUserAccounts marks a user's authorizations invalid except those for keep.
func (r *repo) InvalidateUserAccounts(ctx context.Context, db *gorm.DB, userID snowflake.ID, keep []snowflake.ID) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.UserAccount{}).
		Where("user_id = ? AND is_valid = ?", userID, true)
	if len(keep) > 0 {
		stmt = stmt.Where("account_id NOT IN ?", keep)
	}
	res := stmt.Update("is_valid", false)
	return res.RowsAffected, res.Error
}
