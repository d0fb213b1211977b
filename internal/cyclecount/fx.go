package cyclecount

import (
	"github.com/smallbiznis/kasira/internal/cyclecount/repository"
	"github.com/smallbiznis/kasira/internal/cyclecount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cyclecount",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
