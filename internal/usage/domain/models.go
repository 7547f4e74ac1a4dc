// Package domain contains persistence models for metered product usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ProductUsage is one metered event of product consumption by a user.
type ProductUsage struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	ProductID      snowflake.ID      `gorm:"not null;index"`
	ProductUserID  snowflake.ID      `gorm:"not null;index"`
	OrganizationID snowflake.ID      `gorm:"not null;index"`
	Year           int               `gorm:"not null"`
	Month          int               `gorm:"not null"`
	Quantity       decimal.Decimal   `gorm:"type:decimal(20,4);not null"`
	Units          string            `gorm:"type:varchar(100);not null"`
	StartDate      time.Time         `gorm:"not null;index"`
	EndDate        *time.Time
	Description    string            `gorm:"type:text"`
	LoggedByID     *snowflake.ID
	Metadata       datatypes.JSONMap `gorm:"type:json"`
	CreatedAt      time.Time         `gorm:"not null"`
	UpdatedAt      time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (ProductUsage) TableName() string { return "product_usages" }

// ProductUsageProcessing is the error ledger entry for a usage record.
type ProductUsageProcessing struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	ProductUsageID snowflake.ID `gorm:"not null;index"`
	ErrorMessage   string       `gorm:"type:text"`
	Resolved       bool         `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (ProductUsageProcessing) TableName() string { return "product_usage_processing" }
