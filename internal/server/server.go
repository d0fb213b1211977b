package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kasira/internal/catalog"
	"github.com/smallbiznis/kasira/internal/checkout"
	checkoutdomain "github.com/smallbiznis/kasira/internal/checkout/domain"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/cyclecount"
	cyclecountdomain "github.com/smallbiznis/kasira/internal/cyclecount/domain"
	"github.com/smallbiznis/kasira/internal/inventory"
	inventorydomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/observability"
	obsmiddleware "github.com/smallbiznis/kasira/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kasira/internal/observability/tracing"
	"github.com/smallbiznis/kasira/internal/pricing"
	"github.com/smallbiznis/kasira/internal/purchasing"
	purchasingdomain "github.com/smallbiznis/kasira/internal/purchasing/domain"
	"github.com/smallbiznis/kasira/internal/reservation"
	reservationdomain "github.com/smallbiznis/kasira/internal/reservation/domain"
	"github.com/smallbiznis/kasira/internal/rules"
	"github.com/smallbiznis/kasira/internal/tenant"
	"github.com/smallbiznis/kasira/internal/transfer"
	transferdomain "github.com/smallbiznis/kasira/internal/transfer/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	tenant.Module,
	catalog.Module,
	rules.Module,
	pricing.Module,
	inventory.Module,
	reservation.Module,
	checkout.Module,
	transfer.Module,
	purchasing.Module,
	cyclecount.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	genID          *snowflake.Node
	checkoutSvc    checkoutdomain.Service
	inventorySvc   inventorydomain.Service
	reservationSvc reservationdomain.Service
	transferSvc    transferdomain.Service
	purchasingSvc  purchasingdomain.Service
	cycleCountSvc  cyclecountdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	GenID          *snowflake.Node
	CheckoutSvc    checkoutdomain.Service
	InventorySvc   inventorydomain.Service
	ReservationSvc reservationdomain.Service
	TransferSvc    transferdomain.Service
	PurchasingSvc  purchasingdomain.Service
	CycleCountSvc  cyclecountdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		genID:          p.GenID,
		checkoutSvc:    p.CheckoutSvc,
		inventorySvc:   p.InventorySvc,
		reservationSvc: p.ReservationSvc,
		transferSvc:    p.TransferSvc,
		purchasingSvc:  p.PurchasingSvc,
		cycleCountSvc:  p.CycleCountSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.TenantContext(), s.ActorContext())

	v1.POST("/quotes", s.Quote)
	v1.POST("/checkouts", s.Checkout)
	v1.GET("/sales/:id", s.GetSale)

	v1.POST("/reservations", s.CreateReservation)
	v1.GET("/reservations", s.ListReservations)
	v1.GET("/reservations/:id", s.GetReservation)
	v1.POST("/reservations/:id/release", s.ReleaseReservation)

	v1.GET("/stores/:store_id/stock", s.ListStock)
	v1.GET("/stores/:store_id/stock/:variant_id", s.GetStock)
	v1.GET("/stores/:store_id/stock/:variant_id/ledger", s.ListLedger)
	v1.POST("/stock/adjustments", s.AdjustStock)

	v1.POST("/transfers", s.DispatchTransfer)
	v1.GET("/transfers/:id", s.GetTransfer)
	v1.POST("/transfers/:id/receive", s.ReceiveTransfer)
	v1.POST("/transfers/:id/cancel", s.CancelTransfer)

	v1.POST("/purchase-orders", s.CreatePurchaseOrder)
	v1.GET("/purchase-orders/:id", s.GetPurchaseOrder)
	v1.POST("/purchase-orders/:id/receive", s.ReceivePurchaseOrder)
	v1.POST("/purchase-orders/:id/cancel", s.CancelPurchaseOrder)

	v1.POST("/cycle-counts", s.StartCycleCount)
	v1.GET("/cycle-counts/:id", s.GetCycleCount)
	v1.POST("/cycle-counts/:id/lines", s.RecordCycleCount)
	v1.POST("/cycle-counts/:id/finalize", s.FinalizeCycleCount)
	v1.POST("/cycle-counts/:id/cancel", s.CancelCycleCount)
}
