package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ProductUsage, error) {
	if id == 0 {
		return nil, nil
	}
	return repository.ProvideStore[domain.ProductUsage](db).FindOne(ctx, &domain.ProductUsage{ID: id})
}

// List returns usage ordered by organization then id.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.ProductUsage, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.ProductUsage{}).
		Joins("JOIN products ON products.id = product_usages.product_id").
		Where("products.facility_id = ? AND products.billable = ?", filter.FacilityID, true).
		Where("product_usages.start_date >= ? AND product_usages.start_date < ?", filter.Start, filter.End)

	if len(filter.OrganizationIDs) > 0 {
		stmt = stmt.Where("product_usages.organization_id IN ?", filter.OrganizationIDs)
	}
	if len(filter.ProductIDs) > 0 {
		stmt = stmt.Where("product_usages.product_id IN ?", filter.ProductIDs)
	}
	if filter.ProductUserID != nil {
		stmt = stmt.Where("product_usages.product_user_id = ?", *filter.ProductUserID)
	}

	var items []domain.ProductUsage
	err := stmt.
		Select("product_usages.*").
		Order("product_usages.organization_id ASC, product_usages.id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SumQuantity totals a product's usage quantity for one billing month.
func (r *repo) SumQuantity(ctx context.Context, db *gorm.DB, productID snowflake.ID, year, month int) (decimal.Decimal, error) {
	var quantities []decimal.Decimal
	err := db.WithContext(ctx).
		Model(&domain.ProductUsage{}).
		Where("product_id = ? AND year = ? AND month = ?", productID, year, month).
		Pluck("quantity", &quantities).Error
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, quantities...), nil
}

func (r *repo) FindUnresolvedProcessing(ctx context.Context, db *gorm.DB, usageID snowflake.ID) (*domain.ProductUsageProcessing, error) {
	var row domain.ProductUsageProcessing
	err := db.WithContext(ctx).
		Where("product_usage_id = ? AND resolved = ?", usageID, false).
		Order("id DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) CreateProcessing(ctx context.Context, db *gorm.DB, row *domain.ProductUsageProcessing) error {
	return db.WithContext(ctx).Create(row).Error
}

func (r *repo) UpdateProcessing(ctx context.Context, db *gorm.DB, row *domain.ProductUsageProcessing) error {
	return db.WithContext(ctx).
		Model(&domain.ProductUsageProcessing{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"error_message": row.ErrorMessage,
			"resolved":      row.Resolved,
			"updated_at":    row.UpdatedAt,
		}).Error
}

func (r *repo) ListProcessing(ctx context.Context, db *gorm.DB, usageID snowflake.ID) ([]domain.ProductUsageProcessing, error) {
	var items []domain.ProductUsageProcessing
	err := db.WithContext(ctx).
		Where("product_usage_id = ?", usageID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
