package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Facility is a billing unit that owns products and runs its own batches.
type Facility struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	Name                string       `json:"name" gorm:"type:varchar(200);not null;uniqueIndex"`
	ApplicationUsername string       `json:"application_username" gorm:"type:varchar(50);not null"`
	InvoicePrefix       string       `json:"invoice_prefix" gorm:"type:varchar(20)"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

func (Facility) TableName() string { return "facilities" }

type Product struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductNumber     string       `json:"product_number" gorm:"type:varchar(14);not null;uniqueIndex"`
	Name              string       `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Description       string       `json:"description" gorm:"type:text"`
	FacilityID        snowflake.ID `json:"facility_id" gorm:"not null;index"`
	BillingCalculator string       `json:"billing_calculator" gorm:"type:varchar(100);not null"`
	Billable          bool         `json:"billable" gorm:"not null"`
	ReportingGroup    *string      `json:"reporting_group,omitempty" gorm:"type:varchar(100)"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Rate is a price in minor currency units per unit of a product.
type Rate struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID   snowflake.ID `json:"product_id" gorm:"not null;index"`
	Name        string       `json:"name" gorm:"type:varchar(50);not null"`
	Price       int64        `json:"price" gorm:"not null"`
	Units       string       `json:"units" gorm:"type:varchar(100);not null"`
	IsActive    bool         `json:"is_active" gorm:"not null"`
	MaxQty      *int64       `json:"max_qty,omitempty"`
	Description string       `json:"description" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Rate) TableName() string { return "rates" }
