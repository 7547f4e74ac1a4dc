package service

import (
	"context"

	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Allocator struct {
	log      *zap.Logger
	repo     accountdomain.Repository
	resolver accountdomain.OrganizationResolver
}

type AllocatorParam struct {
	fx.In

	Log      *zap.Logger
	Repo     accountdomain.Repository
	Resolver accountdomain.OrganizationResolver `optional:"true"`
}

func NewAllocator(p AllocatorParam) accountdomain.Allocator {
	resolver := p.Resolver
	if resolver == nil {
		resolver = NewPrimaryAffiliation(p.Repo)
	}
	return &Allocator{
		log:      p.Log.Named("account.allocator"),
		repo:     p.Repo,
		resolver: resolver,
	}
}

// Allocate prefers product-scoped authorizations, which must total 100 percent,
// and falls back to the first valid default account at 100 percent.
func (a *Allocator) Allocate(ctx context.Context, db *gorm.DB, usage usagedomain.ProductUsage) ([]accountdomain.Allocation, error) {
	orgID, err := a.resolver.ResolveOrganization(ctx, db, usage)
	if err != nil {
		return nil, err
	}

	q := accountdomain.AuthorizationQuery{
		UserID:         usage.ProductUserID,
		ProductID:      usage.ProductID,
		OrganizationID: orgID,
		At:             usage.StartDate,
	}

	scoped, err := a.repo.ListProductAuthorizations(ctx, db, q)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if len(scoped) > 0 {
		allocations := make([]accountdomain.Allocation, 0, len(scoped))
		for _, upa := range scoped {
			allocations = append(allocations, accountdomain.Allocation{
				AccountID: upa.AccountID,
				Percent:   upa.Percent,
			})
		}
		if total := accountdomain.SumPercent(allocations); total != 100 {
			return nil, ierr.NewErrorf("product account percentages for user %s and product %s add up to %d, not 100",
				usage.ProductUserID, usage.ProductID, total).
				Mark(ierr.ErrAllocation)
		}
		return allocations, nil
	}

	defaults, err := a.repo.ListDefaultAuthorizations(ctx, db, q)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if len(defaults) > 0 {
		if len(defaults) > 1 {
			a.log.Debug("multiple default accounts, using the first",
				zap.String("product_user_id", usage.ProductUserID.String()),
				zap.Int("count", len(defaults)),
			)
		}
		return []accountdomain.Allocation{{AccountID: defaults[0].AccountID, Percent: 100}}, nil
	}

	return nil, ierr.NewErrorf("unable to find an active, authorized account for user %s in organization %s",
		usage.ProductUserID, orgID).
		WithHint("add a valid user account or product account authorization").
		Mark(ierr.ErrAllocation)
}

// ValidateAllocation checks a caller-supplied allocation.
func ValidateAllocation(allocations []accountdomain.Allocation) error {
	if len(allocations) == 0 {
		return ierr.NewError("allocation is empty").Mark(ierr.ErrAllocation)
	}
	seen := make(map[string]struct{}, len(allocations))
	for _, a := range allocations {
		if a.AccountID == 0 || a.Percent <= 0 || a.Percent > 100 {
			return ierr.NewErrorf("invalid allocation %s at %d%%", a.AccountID, a.Percent).Mark(ierr.ErrAllocation)
		}
		key := a.AccountID.String()
		if _, dup := seen[key]; dup {
			return ierr.NewErrorf("account %s appears more than once in allocation", key).Mark(ierr.ErrAllocation)
		}
		seen[key] = struct{}{}
	}
	if total := accountdomain.SumPercent(allocations); total != 100 {
		return ierr.NewErrorf("allocation percentages add up to %d, not 100", total).Mark(ierr.ErrAllocation)
	}
	return nil
}
