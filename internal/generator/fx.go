package generator

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/generator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generator.service",
	fx.Provide(service.NewGenerator),
)
