package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	AccountTypeExpenseCode = "Expense Code"
	AccountTypePO          = "PO"
)

type Organization struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:varchar(200);not null;uniqueIndex"`
	Rank      string       `json:"rank" gorm:"type:varchar(50)"`
	OrgTree   string       `json:"org_tree" gorm:"type:varchar(50)"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Organization) TableName() string { return "organizations" }

// ProductUser is a person who incurs usage.
type ProductUser struct {
	ID                   snowflake.ID  `json:"id" gorm:"primaryKey"`
	Username             string        `json:"username" gorm:"type:varchar(100);not null;uniqueIndex"`
	FullName             string        `json:"full_name" gorm:"type:varchar(200)"`
	Email                string        `json:"email" gorm:"type:varchar(200)"`
	PrimaryAffiliationID *snowflake.ID `json:"primary_affiliation_id,omitempty" gorm:"index"`
	CreatedAt            time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time     `json:"updated_at" gorm:"not null"`
}

func (ProductUser) TableName() string { return "product_users" }

type UserAffiliation struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID `json:"user_id" gorm:"not null;index"`
	OrganizationID snowflake.ID `json:"organization_id" gorm:"not null;index"`
	Role           string       `json:"role" gorm:"type:varchar(50)"`
	Active         bool         `json:"active" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (UserAffiliation) TableName() string { return "user_affiliations" }

// Account is a funding target: an expense code or a purchase order.
type Account struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	Code           string       `json:"code" gorm:"type:varchar(100);not null;uniqueIndex"`
	Name           string       `json:"name" gorm:"type:varchar(200);not null"`
	AccountType    string       `json:"account_type" gorm:"type:varchar(20);not null"`
	OrganizationID snowflake.ID `json:"organization_id" gorm:"not null;index"`
	Active         bool         `json:"active" gorm:"not null"`
	ValidFrom      *time.Time   `json:"valid_from,omitempty"`
	ExpirationDate *time.Time   `json:"expiration_date,omitempty"`
	Root           string       `json:"root" gorm:"type:varchar(5)"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// UserAccount authorizes a user to charge any product to an account.
type UserAccount struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex:ux_user_accounts_user_account,priority:1"`
	AccountID snowflake.ID `json:"account_id" gorm:"not null;uniqueIndex:ux_user_accounts_user_account,priority:2"`
	IsValid   bool         `json:"is_valid" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (UserAccount) TableName() string { return "user_accounts" }

// UserProductAccount authorizes a percentage of one product's charges to an account.
type UserProductAccount struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;index:ix_user_product_accounts_user_product,priority:1"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;index:ix_user_product_accounts_user_product,priority:2"`
	AccountID snowflake.ID `json:"account_id" gorm:"not null;index"`
	Percent   int          `json:"percent" gorm:"not null"`
	IsValid   bool         `json:"is_valid" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (UserProductAccount) TableName() string { return "user_product_accounts" }

// Allocation is one (account, percent) share of a usage charge.
type Allocation struct {
	AccountID snowflake.ID `json:"account_id" validate:"required"`
	Percent   int          `json:"percent" validate:"gt=0,lte=100"`
}
