package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/kasira/internal/cyclecount/domain"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, c *domain.CycleCount) error {
	return tx.WithContext(ctx).Create(c).Error
}

func (r *repository) Find(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.CycleCount, error) {
	var c domain.CycleCount
	err := db.WithContext(ctx).Raw(`
SELECT *
FROM cycle_counts
WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, db, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) FindForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.CycleCount, error) {
	var c domain.CycleCount
	err := tx.WithContext(ctx).Raw(`
SELECT *
FROM cycle_counts
WHERE tenant_id = ? AND id = ?
FOR UPDATE`, tenantID, id).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	if err := r.loadLines(ctx, tx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) loadLines(ctx context.Context, db *gorm.DB, c *domain.CycleCount) error {
	return db.WithContext(ctx).
		Where("count_id = ?", c.ID).
		Order("variant_id ASC").
		Find(&c.Lines).Error
}

func (r *repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status) error {
	return tx.WithContext(ctx).Exec(`
UPDATE cycle_counts
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, status, id).Error
}

func (r *repository) UpsertLine(ctx context.Context, tx *gorm.DB, line *domain.CycleCountLine) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "count_id"}, {Name: "variant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"counted_qty"}),
		}).
		Create(line).Error
}

func (r *repository) SaveLineDelta(ctx context.Context, tx *gorm.DB, line *domain.CycleCountLine) error {
	return tx.WithContext(ctx).Exec(`
UPDATE cycle_count_lines
SET delta = ?
WHERE id = ?`, line.Delta, line.ID).Error
}
