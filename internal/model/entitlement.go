package model

import (
	"time"
)

// 订阅状态
const (
	EntitlementActive   = "active"
	EntitlementExpired  = "expired"
	EntitlementCanceled = "canceled"
)

// Entitlement 订阅者对创作者付费内容的访问授权，每个 (subscriber, creator) 只有一行
type Entitlement struct {
	ID                      int64      `gorm:"primaryKey" json:"id"`
	SubscriberID            int64      `gorm:"not null;uniqueIndex:idx_entitlement_pair,priority:1" json:"subscriber_id"`
	CreatorID               int64      `gorm:"not null;uniqueIndex:idx_entitlement_pair,priority:2;index" json:"creator_id"`
	Status                  string     `gorm:"size:20;not null;default:active;index" json:"status"` // active, expired, canceled
	ExpiresAt               *time.Time `gorm:"index" json:"expires_at,omitempty"`
	SourceEventID           string     `gorm:"size:255;not null" json:"source_event_id"`
	ProcessorSubscriptionID string     `gorm:"size:255;index" json:"processor_subscription_id,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}

// IsActiveAt 过期按读取时间惰性判断，不回写状态
func (e *Entitlement) IsActiveAt(now time.Time) bool {
	if e == nil || e.Status != EntitlementActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// EffectiveStatus 返回读取时刻的实际状态
func (e *Entitlement) EffectiveStatus(now time.Time) string {
	if e.Status == EntitlementActive && !e.IsActiveAt(now) {
		return EntitlementExpired
	}
	return e.Status
}
