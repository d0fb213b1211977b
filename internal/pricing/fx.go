package pricing

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/kasira/internal/pricing/engine"
)

var Module = fx.Module("pricing",
	fx.Provide(engine.New),
)
