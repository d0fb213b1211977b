package inventory

import (
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	"github.com/smallbiznis/kasira/internal/inventory/repository"
	"github.com/smallbiznis/kasira/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory",
	fx.Provide(lock.NewManager),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
