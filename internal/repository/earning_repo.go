package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/pulse_server/internal/model"
)

type EarningRepository struct {
	db *gorm.DB
}

func NewEarningRepository(db *gorm.DB) *EarningRepository {
	return &EarningRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *EarningRepository) WithTx(tx *gorm.DB) *EarningRepository {
	return &EarningRepository{db: tx}
}

// Append 追加一条收入，同一 event_id 只会写入一次
func (r *EarningRepository) Append(ctx context.Context, earning *model.Earning) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(earning)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Sum 汇总创作者在 [from, to) 区间的收入，零值表示不限
func (r *EarningRepository) Sum(ctx context.Context, creatorID int64, from, to time.Time) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&model.Earning{}).Where("creator_id = ?", creatorID)
	if !from.IsZero() {
		query = query.Where("recorded_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("recorded_at < ?", to)
	}
	err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

// ListByCreator 分页获取收入流水
func (r *EarningRepository) ListByCreator(ctx context.Context, creatorID int64, page, pageSize int) ([]*model.Earning, int64, error) {
	var total int64
	var earnings []*model.Earning

	query := r.db.WithContext(ctx).Model(&model.Earning{}).Where("creator_id = ?", creatorID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("recorded_at DESC").Offset(offset).Limit(pageSize).Find(&earnings).Error
	return earnings, total, err
}

// CountBySource 统计某来源的收入条数
func (r *EarningRepository) CountBySource(ctx context.Context, sourceType, sourceID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Earning{}).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Count(&count).Error
	return count, err
}
