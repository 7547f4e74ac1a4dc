package service

import (
	"context"
	"strings"

	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	ratingdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Resolver struct {
	repo productdomain.Repository
}

type ResolverParam struct {
	fx.In

	Repo productdomain.Repository
}

func NewResolver(p ResolverParam) ratingdomain.Resolver {
	return &Resolver{repo: p.Repo}
}

func (r *Resolver) Resolve(ctx context.Context, db *gorm.DB, product productdomain.Product, expectedUnits string) (*productdomain.Rate, error) {
	rates, err := r.repo.ListActiveRates(ctx, db, product.ID)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrPersistence)
	}

	switch len(rates) {
	case 0:
		return nil, ierr.NewErrorf("no active rate for product %s", product.Name).
			WithHint("activate exactly one rate for the product").
			Mark(ierr.ErrConfiguration)
	case 1:
	default:
		return nil, ierr.NewErrorf("product %s has %d active rates", product.Name, len(rates)).
			WithHint("deactivate all but one rate for the product").
			Mark(ierr.ErrConfiguration)
	}

	rate := rates[0]
	if strings.TrimSpace(rate.Units) != strings.TrimSpace(expectedUnits) {
		return nil, ierr.NewErrorf("units for product usage (%s) do not match the active rate for %s (%s)",
			expectedUnits, product.Name, rate.Units).
			Mark(ierr.ErrConfiguration)
	}
	return &rate, nil
}
