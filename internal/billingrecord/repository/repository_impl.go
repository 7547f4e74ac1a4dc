package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingRecord, error) {
	if id == 0 {
		return nil, nil
	}
	return repository.ProvideStore[domain.BillingRecord](db).FindOne(ctx, &domain.BillingRecord{ID: id})
}

func (r *repo) ListByUsage(ctx context.Context, db *gorm.DB, usageID snowflake.ID) ([]domain.BillingRecord, error) {
	var items []domain.BillingRecord
	err := db.WithContext(ctx).
		Where("product_usage_id = ?", usageID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListForPeriod(ctx context.Context, db *gorm.DB, q domain.PeriodQuery) ([]domain.BillingRecord, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Select("billing_records.*").
		Where("billing_records.year = ? AND billing_records.month = ?", q.Year, q.Month)

	if q.ProductID != nil || q.FacilityID != nil || q.UserID != nil {
		stmt = stmt.Joins("JOIN product_usages ON product_usages.id = billing_records.product_usage_id")
	}
	if q.ProductID != nil {
		stmt = stmt.Where("product_usages.product_id = ?", *q.ProductID)
	}
	if q.UserID != nil {
		stmt = stmt.Where("product_usages.product_user_id = ?", *q.UserID)
	}
	if q.FacilityID != nil {
		stmt = stmt.
			Joins("JOIN products ON products.id = product_usages.product_id").
			Where("products.facility_id = ?", *q.FacilityID)
	}

	var items []domain.BillingRecord
	if err := stmt.Order("billing_records.id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, record *domain.BillingRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, recordID snowflake.ID, state string) error {
	return db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("id = ?", recordID).
		Update("current_state", state).Error
}

// Delete removes a record with its transactions and state history.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, recordID snowflake.ID) error {
	return r.deleteRecords(ctx, db, []snowflake.ID{recordID})
}

func (r *repo) DeleteByUsage(ctx context.Context, db *gorm.DB, usageID snowflake.ID) (int64, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("product_usage_id = ?", usageID).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.deleteRecords(ctx, db, ids); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r *repo) deleteRecords(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if err := db.WithContext(ctx).Where("billing_record_id IN ?", ids).Delete(&domain.Transaction{}).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Where("billing_record_id IN ?", ids).Delete(&domain.BillingRecordState{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.BillingRecord{}).Error
}

func (r *repo) CreateState(ctx context.Context, db *gorm.DB, state *domain.BillingRecordState) error {
	return db.WithContext(ctx).Create(state).Error
}

func (r *repo) ListStates(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]domain.BillingRecordState, error) {
	var items []domain.BillingRecordState
	err := db.WithContext(ctx).
		Where("billing_record_id = ?", recordID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	if id == 0 {
		return nil, nil
	}
	return repository.ProvideStore[domain.Transaction](db).FindOne(ctx, &domain.Transaction{ID: id})
}

func (r *repo) CreateTransaction(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) DeleteTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return repository.ProvideStore[domain.Transaction](db).Delete(ctx, id)
}

func (r *repo) DeleteTransactionsByKind(ctx context.Context, db *gorm.DB, recordID snowflake.ID, kind string) (int64, error) {
	res := db.WithContext(ctx).
		Where("billing_record_id = ? AND kind = ?", recordID, kind).
		Delete(&domain.Transaction{})
	return res.RowsAffected, res.Error
}

// ListTransactions returns a record's transactions in creation order.
func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Where("billing_record_id = ?", recordID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) RecomputeCharge(ctx context.Context, db *gorm.DB, recordID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("COALESCE(SUM(charge), 0)").
		Where("billing_record_id = ?", recordID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}

	err = db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{"charge": total}).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
