package purchasing

import (
	"github.com/smallbiznis/kasira/internal/purchasing/repository"
	"github.com/smallbiznis/kasira/internal/purchasing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchasing",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
