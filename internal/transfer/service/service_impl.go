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
	tenantdomain "github.com/smallbiznis/kasira/internal/tenant/domain"
	"github.com/smallbiznis/kasira/internal/transfer/domain"
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
		log:       p.Log.Named("transfer.service"),
		node:      p.Node,
		tenants:   p.Tenants,
		repo:      p.Repo,
		inventory: p.Inventory,
		locks:     p.Locks,
	}
}

func (s *service) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Transfer, error) {
	if req.TenantID == 0 || req.FromStoreID == 0 || req.ToStoreID == 0 ||
		req.FromStoreID == req.ToStoreID || len(req.Lines) == 0 {
		return nil, domain.ErrInvalidTransfer
	}
	for _, storeID := range []snowflake.ID{req.FromStoreID, req.ToStoreID} {
		store, err := s.tenants.FindStore(ctx, s.db, req.TenantID, storeID)
		if err != nil {
			return nil, err
		}
		if store == nil || !store.Active {
			return nil, tenantdomain.ErrStoreNotFound
		}
	}

	merged := make(map[snowflake.ID]int64)
	for _, line := range req.Lines {
		if line.VariantID == 0 || line.Quantity <= 0 {
			return nil, domain.ErrInvalidTransfer
		}
		merged[line.VariantID] += line.Quantity
	}
	variants := make([]snowflake.ID, 0, len(merged))
	for v := range merged {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

	t := &domain.Transfer{
		ID:          s.node.Generate(),
		TenantID:    req.TenantID,
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		Status:      domain.StatusInTransit,
		Note:        req.Note,
	}
	keys := make([]invdomain.Key, 0, len(variants))
	for _, v := range variants {
		t.Lines = append(t.Lines, domain.TransferLine{
			ID:        s.node.Generate(),
			VariantID: v,
			SentQty:   merged[v],
		})
		keys = append(keys, invdomain.Key{StoreID: req.FromStoreID, VariantID: v})
	}

	release := s.locks.Acquire(keys...)
	defer release()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range t.Lines {
			if _, err := s.inventory.ApplyMovementTx(ctx, tx, invdomain.Movement{
				TenantID:  req.TenantID,
				StoreID:   req.FromStoreID,
				VariantID: line.VariantID,
				Delta:     -line.SentQty,
				RefType:   invdomain.RefTransferOut,
				RefID:     t.ID,
			}); err != nil {
				return err
			}
		}
		return s.repo.Create(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("transfer dispatched",
		zap.Int64("transfer_id", int64(t.ID)),
		zap.Int64("from_store_id", int64(req.FromStoreID)),
		zap.Int64("to_store_id", int64(req.ToStoreID)),
		zap.Int("lines", len(t.Lines)),
	)
	return t, nil
}

func (s *service) Receive(ctx context.Context, req domain.ReceiveRequest) (*domain.Transfer, error) {
	if len(req.Received) == 0 {
		return nil, domain.ErrInvalidTransfer
	}

	t, err := s.Get(ctx, req.TenantID, req.TransferID)
	if err != nil {
		return nil, err
	}

	keys := make([]invdomain.Key, 0, len(t.Lines))
	for _, line := range t.Lines {
		keys = append(keys, invdomain.Key{StoreID: t.ToStoreID, VariantID: line.VariantID})
	}
	release := s.locks.Acquire(keys...)
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, req.TenantID, req.TransferID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrTransferNotFound
		}
		if locked.Status != domain.StatusInTransit && locked.Status != domain.StatusPartial {
			return domain.ErrTransferState
		}

		byVariant := make(map[snowflake.ID]*domain.TransferLine, len(locked.Lines))
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
				StoreID:   locked.ToStoreID,
				VariantID: variantID,
				Delta:     qty,
				RefType:   invdomain.RefTransferIn,
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
		t = locked
		return s.repo.UpdateStatus(ctx, tx, locked.ID, status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("transfer receipt booked",
		zap.Int64("transfer_id", int64(t.ID)),
		zap.String("status", string(t.Status)),
	)
	return t, nil
}

func (s *service) Cancel(ctx context.Context, tenantID, id snowflake.ID) (*domain.Transfer, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	keys := make([]invdomain.Key, 0, len(t.Lines))
	for _, line := range t.Lines {
		keys = append(keys, invdomain.Key{StoreID: t.FromStoreID, VariantID: line.VariantID})
	}
	release := s.locks.Acquire(keys...)
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrTransferNotFound
		}
		if locked.Status != domain.StatusInTransit && locked.Status != domain.StatusPartial {
			return domain.ErrTransferState
		}

		// Stock still in transit goes back where it came from; quantities
		// already received stay on the destination's books.
		for _, line := range locked.Lines {
			outstanding := line.Outstanding()
			if outstanding == 0 {
				continue
			}
			if _, err := s.inventory.ApplyMovementTx(ctx, tx, invdomain.Movement{
				TenantID:  tenantID,
				StoreID:   locked.FromStoreID,
				VariantID: line.VariantID,
				Delta:     outstanding,
				RefType:   invdomain.RefTransferIn,
				RefID:     locked.ID,
			}); err != nil {
				return err
			}
		}

		t = locked
		return s.repo.UpdateStatus(ctx, tx, id, domain.StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	t.Status = domain.StatusCancelled
	s.log.Info("transfer cancelled", zap.Int64("transfer_id", int64(id)))
	return t, nil
}

func (s *service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.Transfer, error) {
	t, err := s.repo.Find(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTransferNotFound
	}
	return t, nil
}
