package calculator

import (
	"context"

	"github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("calculator.service",
	fx.Provide(service.NewBasic, service.NewVolume),
	fx.Provide(
		fx.Annotate(
			func(b *service.Basic) domain.Strategy { return b },
			fx.ResultTags(`group:"calculators"`),
		),
		fx.Annotate(
			func(v *service.Volume) domain.Strategy { return v },
			fx.ResultTags(`group:"calculators"`),
		),
	),
	fx.Provide(service.NewRegistry),
	fx.Invoke(registerValidation),
)

// registerValidation checks product calculators before any batch runs.
func registerValidation(lc fx.Lifecycle, registry *service.Registry, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return registry.Validate(ctx, db)
		},
	})
}
