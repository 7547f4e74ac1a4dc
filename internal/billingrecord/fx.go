package billingrecord

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/repository"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/billingrecord/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingrecord.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
