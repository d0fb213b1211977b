package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/kasira/internal/reservation/domain"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, res *domain.Reservation) error {
	if err := tx.WithContext(ctx).Create(res).Error; err != nil {
		return err
	}
	for i := range res.Lines {
		res.Lines[i].ReservationID = res.ID
	}
	return tx.WithContext(ctx).Create(res.Lines).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Reservation, error) {
	var res domain.Reservation
	err := db.WithContext(ctx).Raw(`
SELECT *
FROM reservations
WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, db, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.Reservation, error) {
	var res domain.Reservation
	err := tx.WithContext(ctx).Raw(`
SELECT *
FROM reservations
WHERE tenant_id = ? AND id = ?
FOR UPDATE`, tenantID, id).Scan(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, tx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) loadLines(ctx context.Context, db *gorm.DB, res *domain.Reservation) error {
	return db.WithContext(ctx).
		Where("reservation_id = ?", res.ID).
		Order("id ASC").
		Find(&res.Lines).Error
}

func (r *repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status) error {
	return tx.WithContext(ctx).Exec(`
UPDATE reservations
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, status, id).Error
}

func (r *repository) List(ctx context.Context, db *gorm.DB, tenantID, storeID snowflake.ID, status domain.Status, p pagination.Pagination) ([]*domain.Reservation, *pagination.PageInfo, error) {
	limit := p.Limit()

	q := db.WithContext(ctx).
		Where("tenant_id = ? AND store_id = ?", tenantID, storeID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, err
		}
		if cursor.ID != "" {
			id, err := strconv.ParseInt(cursor.ID, 10, 64)
			if err != nil {
				return nil, nil, err
			}
			q = q.Where("id < ?", id)
		}
	}

	var reservations []*domain.Reservation
	if err := q.Order("id DESC").Limit(limit + 1).Find(&reservations).Error; err != nil {
		return nil, nil, err
	}

	pageInfo, reservations := pagination.BuildCursorPageInfo(reservations, limit, func(res *domain.Reservation) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: res.ID.String()})
		return token
	})
	return reservations, pageInfo, nil
}

func (r *repository) DueIDs(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.DueReservation, error) {
	var due []domain.DueReservation
	err := db.WithContext(ctx).Raw(`
SELECT id, tenant_id
FROM reservations
WHERE status = ? AND expires_at <= ?
ORDER BY expires_at ASC
LIMIT ?`, domain.StatusActive, now, limit).Scan(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}
