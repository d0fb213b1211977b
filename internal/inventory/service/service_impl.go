package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/inventory/domain"
	"github.com/smallbiznis/kasira/internal/inventory/lock"
	"github.com/smallbiznis/kasira/internal/observability/metrics"
	"github.com/smallbiznis/kasira/internal/tenantctx"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Locks   *lock.Manager
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	locks   *lock.Manager
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("inventory.service"),
		repo:    p.Repo,
		locks:   p.Locks,
		metrics: p.Metrics,
	}
}

func (s *service) ApplyMovement(ctx context.Context, m domain.Movement) (*domain.StockLedgerEntry, error) {
	if err := validateMovement(m); err != nil {
		return nil, err
	}

	release := s.locks.Acquire(m.Key())
	defer release()

	var entry *domain.StockLedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.ApplyMovementTx(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ApplyMovementTx(ctx context.Context, tx *gorm.DB, m domain.Movement) (*domain.StockLedgerEntry, error) {
	if err := validateMovement(m); err != nil {
		return nil, err
	}

	item, err := s.repo.FindForUpdate(ctx, tx, m.TenantID, m.Key())
	if err != nil {
		return nil, err
	}

	if m.Delta < 0 && !m.AllowNegative {
		available := item.Available()
		if available < -m.Delta {
			s.metrics.RecordInsufficientStock(ctx, m.RefType)
			return nil, &domain.InsufficientStockError{
				StoreID:   m.StoreID,
				VariantID: m.VariantID,
				Requested: -m.Delta,
				Available: available,
			}
		}
	}

	item.OnHand += m.Delta
	if err := s.repo.Save(ctx, tx, item); err != nil {
		return nil, err
	}

	entry := &domain.StockLedgerEntry{
		TenantID:     m.TenantID,
		StoreID:      m.StoreID,
		VariantID:    m.VariantID,
		Delta:        m.Delta,
		BalanceAfter: item.OnHand,
		RefType:      m.RefType,
		RefID:        m.RefID,
		Note:         m.Note,
		Actor:        ledgerActor(ctx, m.Actor),
	}
	if err := s.repo.AppendLedger(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordLedgerEntry(ctx, m.RefType)
	s.log.Debug("stock movement applied",
		zap.Int64("store_id", int64(m.StoreID)),
		zap.Int64("variant_id", int64(m.VariantID)),
		zap.Int64("delta", m.Delta),
		zap.Int64("balance_after", item.OnHand),
		zap.String("ref_type", m.RefType),
	)
	return entry, nil
}

func (s *service) ReserveStockTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key domain.Key, qty int64, allowNegative bool) error {
	if qty <= 0 {
		return domain.ErrInvalidMovement
	}

	item, err := s.repo.FindForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return err
	}

	if !allowNegative {
		available := item.Available()
		if available < qty {
			s.metrics.RecordInsufficientStock(ctx, domain.RefReservationCommit)
			return &domain.InsufficientStockError{
				StoreID:   key.StoreID,
				VariantID: key.VariantID,
				Requested: qty,
				Available: available,
			}
		}
	}

	item.Reserved += qty
	return s.repo.Save(ctx, tx, item)
}

func (s *service) ReleaseReservedTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key domain.Key, qty int64, refType string, refID snowflake.ID) error {
	if qty <= 0 || refType == "" {
		return domain.ErrInvalidMovement
	}

	item, err := s.repo.FindForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return err
	}

	// Releasing floors the counter at zero rather than failing, so a
	// corrupted counter can never wedge the release path.
	released := qty
	if item.Reserved < qty {
		s.log.Warn("reserved counter below release quantity",
			zap.Int64("store_id", int64(key.StoreID)),
			zap.Int64("variant_id", int64(key.VariantID)),
			zap.Int64("reserved", item.Reserved),
			zap.Int64("release_qty", qty),
		)
		released = item.Reserved
	}

	item.Reserved -= released
	if err := s.repo.Save(ctx, tx, item); err != nil {
		return err
	}

	// On-hand is unchanged; the zero-delta row leaves an audit trail of
	// the hold being given back.
	entry := &domain.StockLedgerEntry{
		TenantID:     tenantID,
		StoreID:      key.StoreID,
		VariantID:    key.VariantID,
		Delta:        0,
		BalanceAfter: item.OnHand,
		RefType:      refType,
		RefID:        refID,
		Actor:        ledgerActor(ctx, ""),
	}
	if err := s.repo.AppendLedger(ctx, tx, entry); err != nil {
		return err
	}

	s.metrics.RecordLedgerEntry(ctx, refType)
	return nil
}

func (s *service) CommitReservedTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key domain.Key, qty int64, refID snowflake.ID) (*domain.StockLedgerEntry, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidMovement
	}

	item, err := s.repo.FindForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if item.Reserved < qty {
		return nil, domain.ErrReservedExceeded
	}

	item.Reserved -= qty
	item.OnHand -= qty
	if err := s.repo.Save(ctx, tx, item); err != nil {
		return nil, err
	}

	entry := &domain.StockLedgerEntry{
		TenantID:     tenantID,
		StoreID:      key.StoreID,
		VariantID:    key.VariantID,
		Delta:        -qty,
		BalanceAfter: item.OnHand,
		RefType:      domain.RefReservationCommit,
		RefID:        refID,
		Actor:        ledgerActor(ctx, ""),
	}
	if err := s.repo.AppendLedger(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordLedgerEntry(ctx, domain.RefReservationCommit)
	return entry, nil
}

func (s *service) SetOnHandTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key domain.Key, quantity int64, refType string, refID snowflake.ID) (*domain.StockLedgerEntry, error) {
	if refType == "" {
		return nil, domain.ErrInvalidMovement
	}

	item, err := s.repo.FindForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return nil, err
	}

	delta := quantity - item.OnHand
	if delta == 0 {
		return nil, nil
	}

	item.OnHand = quantity
	if err := s.repo.Save(ctx, tx, item); err != nil {
		return nil, err
	}

	entry := &domain.StockLedgerEntry{
		TenantID:     tenantID,
		StoreID:      key.StoreID,
		VariantID:    key.VariantID,
		Delta:        delta,
		BalanceAfter: quantity,
		RefType:      refType,
		RefID:        refID,
		Actor:        ledgerActor(ctx, ""),
	}
	if err := s.repo.AppendLedger(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordLedgerEntry(ctx, refType)
	return entry, nil
}

func (s *service) GetStock(ctx context.Context, tenantID snowflake.ID, key domain.Key) (*domain.StockLevel, error) {
	item, err := s.repo.Find(ctx, s.db, tenantID, key)
	if err != nil {
		return nil, err
	}
	level := &domain.StockLevel{StoreID: key.StoreID, VariantID: key.VariantID}
	if item != nil {
		level.OnHand = item.OnHand
		level.Reserved = item.Reserved
		level.Available = item.Available()
	}
	return level, nil
}

func (s *service) ListStock(ctx context.Context, tenantID, storeID snowflake.ID) ([]*domain.StockLevel, error) {
	items, err := s.repo.ListByStore(ctx, s.db, tenantID, storeID)
	if err != nil {
		return nil, err
	}
	levels := make([]*domain.StockLevel, 0, len(items))
	for _, item := range items {
		levels = append(levels, &domain.StockLevel{
			StoreID:   item.StoreID,
			VariantID: item.VariantID,
			OnHand:    item.OnHand,
			Reserved:  item.Reserved,
			Available: item.Available(),
		})
	}
	return levels, nil
}

func (s *service) ListLedger(ctx context.Context, tenantID snowflake.ID, key domain.Key, p pagination.Pagination) ([]*domain.StockLedgerEntry, *pagination.PageInfo, error) {
	return s.repo.ListLedger(ctx, s.db, tenantID, key, p)
}

// ledgerActor resolves who gets recorded on a ledger row: an explicit
// actor wins, otherwise the principal resolved onto the request context.
func ledgerActor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	actor, _ := tenantctx.ActorFromContext(ctx)
	return actor
}

func validateMovement(m domain.Movement) error {
	if m.Delta == 0 || m.RefType == "" || m.TenantID == 0 || m.StoreID == 0 || m.VariantID == 0 {
		return domain.ErrInvalidMovement
	}
	return nil
}
