// Package domain defines billing calculator strategies, the extension point
// products select through their billing_calculator identifier.
package domain

import (
	"context"

	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	ratingdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"gorm.io/gorm"
)

const (
	StrategyBasic  = "basic"
	StrategyVolume = "volume"
)

type ChargeInput struct {
	Usage   usagedomain.ProductUsage
	Product productdomain.Product
	Percent int
}

type FinalizeRequest struct {
	Product     productdomain.Product
	Facility    productdomain.Facility
	Month       int
	Year        int
	Author      string
	Recalculate bool
}

type Strategy interface {
	// Name is the identifier stored on products.
	Name() string
	// CalculateCharges returns the charge lines for one (usage, percent) share.
	CalculateCharges(ctx context.Context, db *gorm.DB, in ChargeInput) ([]ratingdomain.ChargeLine, error)
	// Finalize runs once per product and billing month after a batch.
	Finalize(ctx context.Context, db *gorm.DB, req FinalizeRequest) error
}

// Source resolves the strategy for a product.
type Source interface {
	StrategyFor(product productdomain.Product) (Strategy, error)
}
