package account

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/account/repository"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewAllocator),
)
