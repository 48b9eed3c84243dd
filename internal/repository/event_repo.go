package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/pulse_server/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

// IsProcessed 检查事件是否已处理
func (r *EventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed 写入处理标记，返回 false 表示并发投递中已被其他请求写入
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID, eventType, outcome string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		Outcome:     outcome,
		ProcessedAt: at,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountProcessed 统计某事件的处理标记数量
func (r *EventRepository) CountProcessed(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count, err
}

// SaveUnresolved 记录无法关联的事件，重复写入忽略
func (r *EventRepository) SaveUnresolved(ctx context.Context, ev *model.UnresolvedEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(ev).Error
}

// ListUnresolved 分页获取待对账事件
func (r *EventRepository) ListUnresolved(ctx context.Context, page, pageSize int) ([]*model.UnresolvedEvent, int64, error) {
	var total int64
	var events []*model.UnresolvedEvent

	query := r.db.WithContext(ctx).Model(&model.UnresolvedEvent{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&events).Error
	return events, total, err
}
