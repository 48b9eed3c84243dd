package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/pulse_server/internal/model"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *EntitlementRepository) WithTx(tx *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: tx}
}

var pairConflict = []clause.Column{{Name: "subscriber_id"}, {Name: "creator_id"}}

// UpsertActive 按 (subscriber_id, creator_id) 冲突更新为 active，用于首次购买和续订。
// 仍为 active 的授权不会被缩短：过期时间取新旧较晚者，永久授权保持永久。
func (r *EntitlementRepository) UpsertActive(ctx context.Context, ent *model.Entitlement) error {
	ent.Status = model.EntitlementActive
	stampTimes(ent)

	// MySQL 按顺序求值，expires_at 必须在 status 之前
	set := clause.Set{
		{Column: clause.Column{Name: "expires_at"}, Value: gorm.Expr(
			"CASE WHEN entitlements.status = ? AND entitlements.expires_at IS NULL THEN NULL"+
				" WHEN entitlements.status = ? AND entitlements.expires_at > ? THEN entitlements.expires_at"+
				" ELSE ? END",
			model.EntitlementActive, model.EntitlementActive, ent.ExpiresAt, ent.ExpiresAt)},
		{Column: clause.Column{Name: "status"}, Value: ent.Status},
		{Column: clause.Column{Name: "source_event_id"}, Value: ent.SourceEventID},
		{Column: clause.Column{Name: "updated_at"}, Value: ent.UpdatedAt},
	}
	if ent.ProcessorSubscriptionID != "" {
		set = append(set, clause.Assignment{Column: clause.Column{Name: "processor_subscription_id"}, Value: ent.ProcessorSubscriptionID})
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   pairConflict,
		DoUpdates: set,
	}).Create(ent).Error
}

// subscriptionOwned 授权未绑定订阅或绑定的就是事件中的订阅
const subscriptionOwned = "(entitlements.processor_subscription_id IS NULL" +
	" OR entitlements.processor_subscription_id = ''" +
	" OR entitlements.processor_subscription_id = ?)"

// UpsertStatus 只更新状态，保留原有过期时间（取消订阅）。
// 授权已换绑到新订阅时，旧订阅的事件不生效。
func (r *EntitlementRepository) UpsertStatus(ctx context.Context, ent *model.Entitlement) error {
	stampTimes(ent)
	guarded := func(column string, value interface{}) clause.Assignment {
		return clause.Assignment{
			Column: clause.Column{Name: column},
			Value: gorm.Expr("CASE WHEN "+subscriptionOwned+" THEN ? ELSE entitlements."+column+" END",
				ent.ProcessorSubscriptionID, value),
		}
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: pairConflict,
		DoUpdates: clause.Set{
			guarded("status", ent.Status),
			guarded("source_event_id", ent.SourceEventID),
			guarded("updated_at", ent.UpdatedAt),
		},
	}).Create(ent).Error
}

// stampTimes 冲突更新语句在 Create 之前构造，时间戳需提前填好
func stampTimes(ent *model.Entitlement) {
	now := time.Now().UTC()
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = now
	}
	if ent.UpdatedAt.IsZero() {
		ent.UpdatedAt = now
	}
}

// GetByPair 查询授权，不存在时返回 nil, nil
func (r *EntitlementRepository) GetByPair(ctx context.Context, subscriberID, creatorID int64) (*model.Entitlement, error) {
	var ent model.Entitlement
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ?", subscriberID, creatorID).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ent, nil
}

// ListBySubscriber 获取订阅者的全部授权
func (r *EntitlementRepository) ListBySubscriber(ctx context.Context, subscriberID int64) ([]*model.Entitlement, error) {
	var ents []*model.Entitlement
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("updated_at DESC").
		Find(&ents).Error
	return ents, err
}

// CountExpiredActive 统计已过期但仍标记为 active 的授权
func (r *EntitlementRepository) CountExpiredActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Entitlement{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.EntitlementActive, now).
		Count(&count).Error
	return count, err
}

// MarkExpired 将已过期的 active 授权落库为 expired
func (r *EntitlementRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Entitlement{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.EntitlementActive, now).
		Updates(map[string]interface{}{
			"status":     model.EntitlementExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
