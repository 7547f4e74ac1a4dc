package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ListFilter selects usage in [Start, End) for billable products of a facility.
type ListFilter struct {
	FacilityID      snowflake.ID
	Start           time.Time
	End             time.Time
	OrganizationIDs []snowflake.ID
	ProductIDs      []snowflake.ID
	ProductUserID   *snowflake.ID
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProductUsage, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]ProductUsage, error)
	SumQuantity(ctx context.Context, db *gorm.DB, productID snowflake.ID, year, month int) (decimal.Decimal, error)

	FindUnresolvedProcessing(ctx context.Context, db *gorm.DB, usageID snowflake.ID) (*ProductUsageProcessing, error)
	CreateProcessing(ctx context.Context, db *gorm.DB, row *ProductUsageProcessing) error
	UpdateProcessing(ctx context.Context, db *gorm.DB, row *ProductUsageProcessing) error
	ListProcessing(ctx context.Context, db *gorm.DB, usageID snowflake.ID) ([]ProductUsageProcessing, error)
}
