package reservation

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/reservation/domain"
	"github.com/smallbiznis/kasira/internal/reservation/repository"
	"github.com/smallbiznis/kasira/internal/reservation/service"
	"github.com/smallbiznis/kasira/internal/tenantctx"
)

var Module = fx.Module("reservation",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(runSweeper),
)

// runSweeper starts the background expiry sweep when
// RESERVATION_SWEEP_INTERVAL is set. Off by default; deployments that only
// commit or release holds explicitly do not need it.
func runSweeper(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, svc domain.Service) {
	if cfg.ReservationSweepInterval <= 0 {
		return
	}

	log = log.Named("reservation.sweeper")
	// Expiry releases write zero-delta audit rows; attribute them to the
	// sweeper instead of an anonymous actor.
	ctx, cancel := context.WithCancel(tenantctx.WithActor(context.Background(), "sweeper"))
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.ReservationSweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						n, err := svc.ExpireDue(ctx)
						if err != nil {
							log.Warn("expiry sweep failed", zap.Error(err))
							continue
						}
						if n > 0 {
							log.Info("expired reservations", zap.Int("count", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
