package fiine

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/client"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/fiine/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fiine",
	fx.Provide(
		fx.Annotate(client.NewClient, fx.As(new(domain.AccountSource))),
	),
	fx.Provide(service.NewSyncService),
)
