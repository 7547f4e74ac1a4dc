package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Allocator decides which accounts a usage record is charged to.
type Allocator interface {
	Allocate(ctx context.Context, db *gorm.DB, usage usagedomain.ProductUsage) ([]Allocation, error)
}

// OrganizationResolver picks the organization whose accounts may fund a usage record.
type OrganizationResolver interface {
	ResolveOrganization(ctx context.Context, db *gorm.DB, usage usagedomain.ProductUsage) (snowflake.ID, error)
}

// OrganizationResolverFunc adapts a function to OrganizationResolver.
type OrganizationResolverFunc func(ctx context.Context, db *gorm.DB, usage usagedomain.ProductUsage) (snowflake.ID, error)

func (f OrganizationResolverFunc) ResolveOrganization(ctx context.Context, db *gorm.DB, usage usagedomain.ProductUsage) (snowflake.ID, error) {
	return f(ctx, db, usage)
}

// SumPercent totals allocation percentages.
func SumPercent(allocations []Allocation) int {
	return lo.SumBy(allocations, func(a Allocation) int { return a.Percent })
}
