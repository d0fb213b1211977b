package checkout

import (
	"github.com/smallbiznis/kasira/internal/checkout/repository"
	"github.com/smallbiznis/kasira/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
