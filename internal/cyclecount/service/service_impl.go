package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/cyclecount/domain"
	invdomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Node      *snowflake.Node
	Tenants   tenantdomain.Repository
	Repo      domain.Repository
	Inventory invdomain.Service
	Locks     *lock.Manager
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	node      *snowflake.Node
	tenants   tenantdomain.Repository
	repo      domain.Repository
	inventory invdomain.Service
	locks     *lock.Manager
}

func New(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("cyclecount.service"),
		node:      p.Node,
		tenants:   p.Tenants,
		repo:      p.Repo,
		inventory: p.Inventory,
		locks:     p.Locks,
	}
}

func (s *service) Start(ctx context.Context, req domain.StartRequest) (*domain.CycleCount, error) {
	if req.TenantID == 0 || req.StoreID == 0 {
		return nil, domain.ErrInvalidCount
	}
	store, err := s.tenants.FindStore(ctx, s.db, req.TenantID, req.StoreID)
	if err != nil {
		return nil, err
	}
	if store == nil || !store.Active {
		return nil, tenantdomain.ErrStoreNotFound
	}

	c := &domain.CycleCount{
		ID:       s.node.Generate(),
		TenantID: req.TenantID,
		StoreID:  req.StoreID,
		Status:   domain.StatusOpen,
		Note:     req.Note,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cycle count started",
		zap.Int64("count_id", int64(c.ID)),
		zap.Int64("store_id", int64(req.StoreID)),
	)
	return c, nil
}

func (s *service) Record(ctx context.Context, req domain.RecordRequest) (*domain.CycleCount, error) {
	if len(req.Counts) == 0 {
		return nil, domain.ErrInvalidCount
	}
	for variantID, qty := range req.Counts {
		if variantID == 0 || qty < 0 {
			return nil, domain.ErrInvalidCount
		}
	}

	var c *domain.CycleCount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, req.TenantID, req.CountID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrCountNotFound
		}
		if locked.Status != domain.StatusOpen {
			return domain.ErrCountState
		}

		variants := make([]snowflake.ID, 0, len(req.Counts))
		for v := range req.Counts {
			variants = append(variants, v)
		}
		sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

		for _, variantID := range variants {
			line := &domain.CycleCountLine{
				ID:         s.node.Generate(),
				CountID:    locked.ID,
				VariantID:  variantID,
				CountedQty: req.Counts[variantID],
			}
			if err := s.repo.UpsertLine(ctx, tx, line); err != nil {
				return err
			}
		}

		c, err = s.repo.Find(ctx, tx, req.TenantID, req.CountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) Finalize(ctx context.Context, tenantID, id snowflake.ID) (*domain.CycleCount, error) {
	c, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, domain.ErrInvalidCount
	}

	keys := make([]invdomain.Key, 0, len(c.Lines))
	for _, line := range c.Lines {
		keys = append(keys, invdomain.Key{StoreID: c.StoreID, VariantID: line.VariantID})
	}
	release := s.locks.Acquire(keys...)
	defer release()

	adjusted := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrCountNotFound
		}
		if locked.Status != domain.StatusOpen {
			return domain.ErrCountState
		}

		for i := range locked.Lines {
			line := &locked.Lines[i]
			key := invdomain.Key{StoreID: locked.StoreID, VariantID: line.VariantID}

			// On-hand snaps to the counted truth; the ledger records the
			// correction, if any.
			entry, err := s.inventory.SetOnHandTx(ctx, tx, tenantID, key, line.CountedQty, invdomain.RefCycleCount, locked.ID)
			if err != nil {
				return err
			}
			if entry != nil {
				line.Delta = entry.Delta
				adjusted++
			}
			if err := s.repo.SaveLineDelta(ctx, tx, line); err != nil {
				return err
			}
		}

		c = locked
		return s.repo.UpdateStatus(ctx, tx, id, domain.StatusFinalized)
	})
	if err != nil {
		return nil, err
	}

	c.Status = domain.StatusFinalized
	s.log.Info("cycle count finalized",
		zap.Int64("count_id", int64(id)),
		zap.Int("lines", len(c.Lines)),
		zap.Int("adjusted", adjusted),
	)
	return c, nil
}

func (s *service) Cancel(ctx context.Context, tenantID, id snowflake.ID) (*domain.CycleCount, error) {
	var c *domain.CycleCount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrCountNotFound
		}
		if locked.Status != domain.StatusOpen {
			return domain.ErrCountState
		}
		locked.Status = domain.StatusCancelled
		c = locked
		return s.repo.UpdateStatus(ctx, tx, id, domain.StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cycle count cancelled", zap.Int64("count_id", int64(id)))
	return c, nil
}

func (s *service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.CycleCount, error) {
	c, err := s.repo.Find(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrCountNotFound
	}
	return c, nil
}
