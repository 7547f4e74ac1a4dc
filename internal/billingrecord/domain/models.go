// Package domain contains billing records, their approval history and the
// transactions their charge is derived from.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatePendingLabApproval = "PENDING LAB APPROVAL"
	StateLabApproved        = "LAB APPROVED"
	StateFinal              = "FINAL"

	InitialState = StatePendingLabApproval
)

// Transaction kinds. Calculators only replace lines of their own kind.
const (
	TransactionKindCharge         = "charge"
	TransactionKindManual         = "manual"
	TransactionKindVolumeDiscount = "volume_discount"
)

// BillingRecord is the charge against one account for a percentage of one
// usage record. Charge always equals the sum of its transactions.
type BillingRecord struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductUsageID snowflake.ID `json:"product_usage_id" gorm:"not null;uniqueIndex:ux_billing_records_usage_account_percent,priority:1"`
	AccountID      snowflake.ID `json:"account_id" gorm:"not null;uniqueIndex:ux_billing_records_usage_account_percent,priority:2;index"`
	Percent        int          `json:"percent" gorm:"not null;uniqueIndex:ux_billing_records_usage_account_percent,priority:3"`
	Year           int          `json:"year" gorm:"not null;index:ix_billing_records_period,priority:1"`
	Month          int          `json:"month" gorm:"not null;index:ix_billing_records_period,priority:2"`
	Charge         int64        `json:"charge" gorm:"not null"`
	Description    string       `json:"description" gorm:"type:text"`
	Rate           string       `json:"rate" gorm:"type:varchar(500)"`
	CurrentState   string       `json:"current_state" gorm:"type:varchar(50);not null"`
	Author         string       `json:"author" gorm:"type:varchar(100);not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (BillingRecord) TableName() string { return "billing_records" }

// BillingRecordState is an append-only approval history entry.
type BillingRecordState struct {
	ID              snowflake.ID                `json:"id" gorm:"primaryKey"`
	BillingRecordID snowflake.ID                `json:"billing_record_id" gorm:"not null;index"`
	Name            string                      `json:"name" gorm:"type:varchar(50);not null"`
	User            string                      `json:"user" gorm:"column:user_name;type:varchar(100);not null"`
	Approvers       datatypes.JSONSlice[string] `json:"approvers"`
	Comment         string                      `json:"comment" gorm:"type:text"`
	CreatedAt       time.Time                   `json:"created_at" gorm:"not null"`
}

func (BillingRecordState) TableName() string { return "billing_record_states" }

// Transaction is one signed charge line of a billing record.
type Transaction struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	BillingRecordID snowflake.ID `json:"billing_record_id" gorm:"not null;index"`
	Charge          int64        `json:"charge" gorm:"not null"`
	Description     string       `json:"description" gorm:"type:text"`
	Author          string       `json:"author" gorm:"type:varchar(100);not null"`
	Rate            string       `json:"rate" gorm:"type:varchar(500)"`
	Kind            string       `json:"kind" gorm:"type:varchar(20);not null;default:charge"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// CanTransition reports whether the approval lifecycle allows from -> to.
func CanTransition(from, to string) bool {
	switch from {
	case StatePendingLabApproval:
		return to == StateLabApproved || to == StateFinal
	case StateLabApproved:
		return to == StateFinal
	default:
		return false
	}
}

func IsKnownState(name string) bool {
	switch name {
	case StatePendingLabApproval, StateLabApproved, StateFinal:
		return true
	}
	return false
}
