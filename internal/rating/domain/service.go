package domain

import (
	"context"

	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	usagedomain "github.com/harvardinformatics/ifxbilling-sub000/internal/usage/domain"
	"gorm.io/gorm"
)

// Resolver finds the single active rate for a product.
type Resolver interface {
	Resolve(ctx context.Context, db *gorm.DB, product productdomain.Product, expectedUnits string) (*productdomain.Rate, error)
}

// Calculator prices a share of a usage record. Implementations are pure.
type Calculator interface {
	Calculate(usage usagedomain.ProductUsage, rate productdomain.Rate, percent int) (ChargeLine, error)
}
