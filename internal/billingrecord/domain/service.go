package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
)

// CreateRequest asks for the billing records of one usage record.
type CreateRequest struct {
	Usage usagedomain.ProductUsage
	// Allocations overrides the account allocator when set.
	Allocations []accountdomain.Allocation
	Recalculate bool
	Author      string
	// Strategies resolves calculators; a batch passes its cache here.
	Strategies calculatordomain.Source
}

type TransitionRequest struct {
	RecordID  snowflake.ID
	State     string
	User      string
	Approvers []string
	Comment   string
}

type TransactionRequest struct {
	RecordID    snowflake.ID
	Charge      int64
	Description string
	Author      string
	Rate        string
}

// RebalanceRequest re-splits a user's monthly records for a facility.
type RebalanceRequest struct {
	UserID      snowflake.ID               `validate:"required"`
	FacilityID  snowflake.ID               `validate:"required"`
	Year        int                        `validate:"required,gte=1900"`
	Month       int                        `validate:"required,gte=1,lte=12"`
	Allocations []accountdomain.Allocation `validate:"required,min=1,dive"`
	Author      string
}

type Service interface {
	CreateForUsage(ctx context.Context, req CreateRequest) ([]BillingRecord, error)
	Transition(ctx context.Context, req TransitionRequest) (*BillingRecord, error)
	Delete(ctx context.Context, recordID snowflake.ID) error
	AddTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	RemoveTransaction(ctx context.Context, transactionID snowflake.ID) error
	Rebalance(ctx context.Context, req RebalanceRequest) ([]BillingRecord, error)
}
