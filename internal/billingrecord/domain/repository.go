package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PeriodQuery selects billing records by billing month and, optionally,
// product, facility or usage user.
type PeriodQuery struct {
	Year       int
	Month      int
	ProductID  *snowflake.ID
	FacilityID *snowflake.ID
	UserID     *snowflake.ID
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingRecord, error)
	ListByUsage(ctx context.Context, db *gorm.DB, usageID snowflake.ID) ([]BillingRecord, error)
	ListForPeriod(ctx context.Context, db *gorm.DB, q PeriodQuery) ([]BillingRecord, error)

	Create(ctx context.Context, db *gorm.DB, record *BillingRecord) error
	UpdateState(ctx context.Context, db *gorm.DB, recordID snowflake.ID, state string) error
	Delete(ctx context.Context, db *gorm.DB, recordID snowflake.ID) error
	DeleteByUsage(ctx context.Context, db *gorm.DB, usageID snowflake.ID) (int64, error)

	CreateState(ctx context.Context, db *gorm.DB, state *BillingRecordState) error
	ListStates(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]BillingRecordState, error)

	FindTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	CreateTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	DeleteTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteTransactionsByKind(ctx context.Context, db *gorm.DB, recordID snowflake.ID, kind string) (int64, error)
	ListTransactions(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]Transaction, error)

	// RecomputeCharge sets the record's charge to the sum of its transactions.
	RecomputeCharge(ctx context.Context, db *gorm.DB, recordID snowflake.ID) (int64, error)
}
