package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/account/domain"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"gorm.io/gorm"
)

// PrimaryAffiliation resolves the organization from the usage user's primary affiliation.
type PrimaryAffiliation struct {
	repo accountdomain.Repository
}

func NewPrimaryAffiliation(repo accountdomain.Repository) accountdomain.OrganizationResolver {
	return &PrimaryAffiliation{repo: repo}
}

func (p *PrimaryAffiliation) ResolveOrganization(ctx context.Context, db *gorm.DB, usage usagedomain.ProductUsage) (snowflake.ID, error) {
	user, err := p.repo.FindUserByID(ctx, db, usage.ProductUserID)
	if err != nil {
		return 0, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}
	if user == nil {
		return 0, ierr.NewErrorf("product user %s does not exist", usage.ProductUserID).
			Mark(ierr.ErrAllocation)
	}
	if user.PrimaryAffiliationID == nil || *user.PrimaryAffiliationID == 0 {
		return 0, ierr.NewErrorf("unable to find an active, authorized account for %s: no primary affiliation", user.Username).
			WithHint("set the user's primary affiliation or supply an explicit allocation").
			Mark(ierr.ErrAllocation)
	}
	return *user.PrimaryAffiliationID, nil
}

// UsageOrganization resolves the organization recorded on the usage itself.
var UsageOrganization = accountdomain.OrganizationResolverFunc(
	func(_ context.Context, _ *gorm.DB, usage usagedomain.ProductUsage) (snowflake.ID, error) {
		if usage.OrganizationID == 0 {
			return 0, ierr.NewErrorf("usage %s has no organization", usage.ID).Mark(ierr.ErrAllocation)
		}
		return usage.OrganizationID, nil
	},
)
