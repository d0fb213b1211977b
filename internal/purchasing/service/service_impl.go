package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	invdomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	"github.com/smallbiznis/kasira/internal/purchasing/domain"
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
		log:       p.Log.Named("purchasing.service"),
		node:      p.Node,
		tenants:   p.Tenants,
		repo:      p.Repo,
		inventory: p.Inventory,
		locks:     p.Locks,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.PurchaseOrder, error) {
	if req.TenantID == 0 || req.StoreID == 0 || req.Supplier == "" || len(req.Lines) == 0 {
		return nil, domain.ErrInvalidOrder
	}
	store, err := s.tenants.FindStore(ctx, s.db, req.TenantID, req.StoreID)
	if err != nil {
		return nil, err
	}
	if store == nil || !store.Active {
		return nil, tenantdomain.ErrStoreNotFound
	}

	merged := make(map[snowflake.ID]int64)
	for _, line := range req.Lines {
		if line.VariantID == 0 || line.Quantity <= 0 {
			return nil, domain.ErrInvalidOrder
		}
		merged[line.VariantID] += line.Quantity
	}
	variants := make([]snowflake.ID, 0, len(merged))
	for v := range merged {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

	po := &domain.PurchaseOrder{
		ID:       s.node.Generate(),
		TenantID: req.TenantID,
		StoreID:  req.StoreID,
		Supplier: req.Supplier,
		Status:   domain.StatusOpen,
		Note:     req.Note,
	}
	for _, v := range variants {
		po.Lines = append(po.Lines, domain.PurchaseOrderLine{
			ID:         s.node.Generate(),
			VariantID:  v,
			OrderedQty: merged[v],
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, po)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase order created",
		zap.Int64("order_id", int64(po.ID)),
		zap.Int64("store_id", int64(req.StoreID)),
		zap.String("supplier", req.Supplier),
		zap.Int("lines", len(po.Lines)),
	)
	return po, nil
}

func (s *service) Receive(ctx context.Context, req domain.ReceiveRequest) (*domain.PurchaseOrder, error) {
	if len(req.Received) == 0 {
		return nil, domain.ErrInvalidOrder
	}

	po, err := s.Get(ctx, req.TenantID, req.OrderID)
	if err != nil {
		return nil, err
	}

	keys := make([]invdomain.Key, 0, len(po.Lines))
	for _, line := range po.Lines {
		keys = append(keys, invdomain.Key{StoreID: po.StoreID, VariantID: line.VariantID})
	}
	release := s.locks.Acquire(keys...)
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, req.TenantID, req.OrderID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrOrderNotFound
		}
		if locked.Status != domain.StatusOpen && locked.Status != domain.StatusPartial {
			return domain.ErrOrderState
		}

		byVariant := make(map[snowflake.ID]*domain.PurchaseOrderLine, len(locked.Lines))
		for i := range locked.Lines {
			byVariant[locked.Lines[i].VariantID] = &locked.Lines[i]
		}

		for variantID, qty := range req.Received {
			line, ok := byVariant[variantID]
			if !ok || qty <= 0 || qty > line.Outstanding() {
				return domain.ErrReceiveExceeds
			}
			line.ReceivedQty += qty
			if err := s.repo.SaveLine(ctx, tx, line); err != nil {
				return err
			}
			if _, err := s.inventory.ApplyMovementTx(ctx, tx, invdomain.Movement{
				TenantID:  req.TenantID,
				StoreID:   locked.StoreID,
				VariantID: variantID,
				Delta:     qty,
				RefType:   invdomain.RefPurchaseReceipt,
				RefID:     locked.ID,
			}); err != nil {
				return err
			}
		}

		status := domain.StatusReceived
		for _, line := range locked.Lines {
			if line.Outstanding() > 0 {
				status = domain.StatusPartial
				break
			}
		}
		locked.Status = status
		po = locked
		return s.repo.UpdateStatus(ctx, tx, locked.ID, status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase order receipt booked",
		zap.Int64("order_id", int64(po.ID)),
		zap.String("status", string(po.Status)),
	)
	return po, nil
}

func (s *service) Cancel(ctx context.Context, tenantID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	var po *domain.PurchaseOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrOrderNotFound
		}
		if locked.Status != domain.StatusOpen {
			return domain.ErrOrderState
		}
		locked.Status = domain.StatusCancelled
		po = locked
		return s.repo.UpdateStatus(ctx, tx, id, domain.StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase order cancelled", zap.Int64("order_id", int64(id)))
	return po, nil
}

func (s *service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	po, err := s.repo.Find(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, domain.ErrOrderNotFound
	}
	return po, nil
}
