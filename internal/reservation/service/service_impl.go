package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/kasira/internal/catalog/domain"
	"github.com/smallbiznis/kasira/internal/clock"
	invdomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	"github.com/smallbiznis/kasira/internal/observability/metrics"
	"github.com/smallbiznis/kasira/internal/reservation/domain"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

// DefaultTTL bounds how long a hold lives when the caller does not say.
const DefaultTTL = 15 * time.Minute

const sweepBatchSize = 100

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Node      *snowflake.Node
	Clock     clock.Clock
	Tenants   tenantdomain.Repository
	Catalog   catalogdomain.Repository
	Repo      domain.Repository
	Inventory invdomain.Service
	Locks     *lock.Manager
	Metrics   *metrics.Metrics `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	node      *snowflake.Node
	clock     clock.Clock
	tenants   tenantdomain.Repository
	catalog   catalogdomain.Repository
	repo      domain.Repository
	inventory invdomain.Service
	locks     *lock.Manager
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("reservation.service"),
		node:      p.Node,
		clock:     p.Clock,
		tenants:   p.Tenants,
		catalog:   p.Catalog,
		repo:      p.Repo,
		inventory: p.Inventory,
		locks:     p.Locks,
		metrics:   p.Metrics,
	}
}

func (s *service) Reserve(ctx context.Context, req domain.ReserveRequest) (*domain.Reservation, error) {
	if req.TenantID == 0 || req.StoreID == 0 || len(req.Lines) == 0 {
		return nil, domain.ErrInvalidReservation
	}

	// Duplicate variants collapse into one line so there is one hold per
	// position.
	merged := make(map[snowflake.ID]int64)
	for _, line := range req.Lines {
		if line.VariantID == 0 || line.Quantity <= 0 {
			return nil, domain.ErrInvalidReservation
		}
		merged[line.VariantID] += line.Quantity
	}
	variants := make([]snowflake.ID, 0, len(merged))
	for v := range merged {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

	// Store and variants must belong to the tenant before any position is
	// touched; otherwise a hold against a foreign or unknown position
	// would seed an empty inventory row under lock.
	tenant, err := s.tenants.FindTenant(ctx, s.db, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrInvalidTenant
	}
	store, err := s.tenants.FindStore(ctx, s.db, req.TenantID, req.StoreID)
	if err != nil {
		return nil, err
	}
	if store == nil || !store.Active {
		return nil, tenantdomain.ErrStoreNotFound
	}
	resolved, err := s.catalog.FindVariants(ctx, s.db, req.TenantID, variants)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if rv, ok := resolved[v]; !ok || !rv.Active {
			return nil, catalogdomain.ErrUnknownVariant
		}
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	keys := make([]invdomain.Key, 0, len(variants))
	for _, v := range variants {
		keys = append(keys, invdomain.Key{StoreID: req.StoreID, VariantID: v})
	}
	release := s.locks.Acquire(keys...)
	defer release()

	res := &domain.Reservation{
		ID:        s.node.Generate(),
		TenantID:  req.TenantID,
		StoreID:   req.StoreID,
		Status:    domain.StatusActive,
		ExpiresAt: s.clock.Now().Add(ttl),
	}
	for _, v := range variants {
		res.Lines = append(res.Lines, domain.ReservationLine{
			ID:        s.node.Generate(),
			VariantID: v,
			Quantity:  merged[v],
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range res.Lines {
			key := invdomain.Key{StoreID: req.StoreID, VariantID: line.VariantID}
			if err := s.inventory.ReserveStockTx(ctx, tx, req.TenantID, key, line.Quantity, tenant.AllowBackorders); err != nil {
				return err
			}
		}
		return s.repo.Create(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReservationTransition(ctx, "reserve")
	s.log.Info("reservation placed",
		zap.Int64("reservation_id", int64(res.ID)),
		zap.Int64("store_id", int64(req.StoreID)),
		zap.Int("lines", len(res.Lines)),
		zap.Time("expires_at", res.ExpiresAt),
	)
	return res, nil
}

func (s *service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.Reservation, error) {
	res, err := s.repo.Find(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, domain.ErrReservationNotFound
	}
	return res, nil
}

func (s *service) List(ctx context.Context, req domain.ListRequest) ([]*domain.Reservation, *pagination.PageInfo, error) {
	return s.repo.List(ctx, s.db, req.TenantID, req.StoreID, req.Status, req.Pagination)
}

func (s *service) Release(ctx context.Context, tenantID, id snowflake.ID) (*domain.Reservation, error) {
	res, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	release := s.locks.Acquire(lineKeys(res)...)
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrReservationNotFound
		}
		if locked.Status != domain.StatusActive {
			return domain.ErrReservationState
		}
		if err := s.giveBack(ctx, tx, locked, invdomain.RefReservationRelease); err != nil {
			return err
		}
		res = locked
		return s.repo.UpdateStatus(ctx, tx, id, domain.StatusReleased)
	})
	if err != nil {
		return nil, err
	}

	res.Status = domain.StatusReleased
	s.metrics.RecordReservationTransition(ctx, "release")
	s.log.Info("reservation released", zap.Int64("reservation_id", int64(id)))
	return res, nil
}

func (s *service) CommitTx(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.Reservation, error) {
	res, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, domain.ErrReservationNotFound
	}
	if res.Status != domain.StatusActive {
		return nil, domain.ErrReservationState
	}
	if s.clock.Now().After(res.ExpiresAt) {
		return nil, domain.ErrReservationExpired
	}

	if err := s.repo.UpdateStatus(ctx, tx, id, domain.StatusCommitted); err != nil {
		return nil, err
	}
	res.Status = domain.StatusCommitted

	s.metrics.RecordReservationTransition(ctx, "commit")
	return res, nil
}

func (s *service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.DueIDs(ctx, s.db, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, d := range due {
		if err := s.expireOne(ctx, d.TenantID, d.ID, now); err != nil {
			// One stuck reservation should not stall the sweep.
			s.log.Warn("reservation expiry failed",
				zap.Int64("reservation_id", int64(d.ID)),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *service) expireOne(ctx context.Context, tenantID, id snowflake.ID, now time.Time) error {
	res, err := s.repo.Find(ctx, s.db, tenantID, id)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	release := s.locks.Acquire(lineKeys(res)...)
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		// Someone committed or released it since the scan; nothing to do.
		if locked == nil || locked.Status != domain.StatusActive || locked.ExpiresAt.After(now) {
			return nil
		}
		if err := s.giveBack(ctx, tx, locked, invdomain.RefReservationExpire); err != nil {
			return err
		}
		return s.repo.UpdateStatus(ctx, tx, id, domain.StatusExpired)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordReservationTransition(ctx, "expire")
	s.log.Info("reservation expired", zap.Int64("reservation_id", int64(id)))
	return nil
}

func (s *service) giveBack(ctx context.Context, tx *gorm.DB, res *domain.Reservation, refType string) error {
	for _, line := range res.Lines {
		key := invdomain.Key{StoreID: res.StoreID, VariantID: line.VariantID}
		if err := s.inventory.ReleaseReservedTx(ctx, tx, res.TenantID, key, line.Quantity, refType, res.ID); err != nil {
			return err
		}
	}
	return nil
}

func lineKeys(res *domain.Reservation) []invdomain.Key {
	keys := make([]invdomain.Key, 0, len(res.Lines))
	for _, line := range res.Lines {
		keys = append(keys, invdomain.Key{StoreID: res.StoreID, VariantID: line.VariantID})
	}
	return keys
}
