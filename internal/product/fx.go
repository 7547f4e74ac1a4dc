package product

import (
	"github.com/harvardinformatics/ifxbilling-sub000/internal/product/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("product.repository",
	fx.Provide(repository.Provide),
)
