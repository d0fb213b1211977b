package transfer

import (
	"github.com/smallbiznis/kasira/internal/transfer/repository"
	"github.com/smallbiznis/kasira/internal/transfer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transfer",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
