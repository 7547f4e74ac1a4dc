package rating

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/rating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rating.service",
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewCalculator),
)
