package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/db/option"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindFacilityByName(ctx context.Context, db *gorm.DB, name string) (*domain.Facility, error) {
	return repository.ProvideStore[domain.Facility](db).FindOne(ctx, &domain.Facility{Name: name})
}

func (r *repo) FindFacilityByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Facility, error) {
	return repository.ProvideStore[domain.Facility](db).FindOne(ctx, &domain.Facility{ID: id})
}

func (r *repo) ListFacilities(ctx context.Context, db *gorm.DB) ([]domain.Facility, error) {
	var items []domain.Facility
	err := db.WithContext(ctx).
		Model(&domain.Facility{}).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	return repository.ProvideStore[domain.Product](db).FindOne(ctx, &domain.Product{ID: id})
}

func (r *repo) FindProductsByName(ctx context.Context, db *gorm.DB, facilityID snowflake.ID, names []string) ([]domain.Product, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("facility_id = ? AND name IN ?", facilityID, names).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListBillableProducts lists billable products, optionally for one facility.
func (r *repo) ListBillableProducts(ctx context.Context, db *gorm.DB, facilityID *snowflake.ID) ([]domain.Product, error) {
	opts := []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "billable", Operator: option.EQ, Value: true}),
		option.WithSortBy(option.QuerySortBy{SortBy: "name", Allow: map[string]bool{"name": true}}),
	}
	if facilityID != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "facility_id", Value: *facilityID}))
	}

	items, err := repository.ProvideStore[domain.Product](db).Find(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (r *repo) ListActiveRates(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.Rate, error) {
	var items []domain.Rate
	err := db.WithContext(ctx).
		Where("product_id = ? AND is_active = ?", productID, true).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
