package usage

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/usage/repository"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewTracker),
)
