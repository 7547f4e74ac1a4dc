package service

import (
	"context"

	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	ratingdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/rating/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Basic charges each usage at the product's single active rate.
type Basic struct {
	resolver   ratingdomain.Resolver
	calculator ratingdomain.Calculator
}

type BasicParam struct {
	fx.In

	Resolver   ratingdomain.Resolver
	Calculator ratingdomain.Calculator
}

func NewBasic(p BasicParam) *Basic {
	return &Basic{resolver: p.Resolver, calculator: p.Calculator}
}

func (b *Basic) Name() string { return calculatordomain.StrategyBasic }

func (b *Basic) CalculateCharges(ctx context.Context, db *gorm.DB, in calculatordomain.ChargeInput) ([]ratingdomain.ChargeLine, error) {
	rate, err := b.resolver.Resolve(ctx, db, in.Product, in.Usage.Units)
	if err != nil {
		return nil, err
	}
	line, err := b.calculator.Calculate(in.Usage, *rate, in.Percent)
	if err != nil {
		return nil, err
	}
	return []ratingdomain.ChargeLine{line}, nil
}

func (b *Basic) Finalize(context.Context, *gorm.DB, calculatordomain.FinalizeRequest) error {
	return nil
}
