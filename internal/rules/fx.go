package rules

import (
	"github.com/smallbiznis/kasira/internal/rules/repository"
	"github.com/smallbiznis/kasira/internal/rules/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rules",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
