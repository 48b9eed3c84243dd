package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/internal/model"
)

// TestContent 创建测试内容，默认仅订阅者可看
func TestContent(t *testing.T, db *gorm.DB, creatorID int64, opts ...func(*model.Content)) *model.Content {
	t.Helper()

	price := int64(999)
	content := &model.Content{
		CreatorID:   creatorID,
		Title:       fmt.Sprintf("Test Video %d", time.Now().UnixNano()%10000),
		PriceType:   model.PriceTypeSubscriberOnly,
		PriceAmount: &price,
		StreamURL:   "https://cdn.example.com/videos/test.m3u8",
	}

	for _, opt := range opts {
		opt(content)
	}

	if err := db.Create(content).Error; err != nil {
		t.Fatalf("Failed to create test content: %v", err)
	}

	return content
}

// WithPriceType 设置定价类型
func WithPriceType(priceType string) func(*model.Content) {
	return func(c *model.Content) {
		c.PriceType = priceType
		if priceType == model.PriceTypeFree {
			c.PriceAmount = nil
		}
	}
}

// WithObjectKey 设置存储对象
func WithObjectKey(key string) func(*model.Content) {
	return func(c *model.Content) {
		c.ObjectKey = key
	}
}

// TestEntitlement 创建测试授权，默认 active 且一个月后过期
func TestEntitlement(t *testing.T, db *gorm.DB, subscriberID, creatorID int64, opts ...func(*model.Entitlement)) *model.Entitlement {
	t.Helper()

	expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour)
	ent := &model.Entitlement{
		SubscriberID:  subscriberID,
		CreatorID:     creatorID,
		Status:        model.EntitlementActive,
		ExpiresAt:     &expiresAt,
		SourceEventID: fmt.Sprintf("evt_fixture_%d", time.Now().UnixNano()),
	}

	for _, opt := range opts {
		opt(ent)
	}

	if err := db.Create(ent).Error; err != nil {
		t.Fatalf("Failed to create test entitlement: %v", err)
	}

	return ent
}

// WithEntitlementStatus 设置授权状态
func WithEntitlementStatus(status string) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.Status = status
	}
}

// WithExpiresAt 设置过期时间，nil 表示永久
func WithExpiresAt(at *time.Time) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.ExpiresAt = at
	}
}

// WithSubscriptionID 设置绑定的支付平台订阅
func WithSubscriptionID(id string) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.ProcessorSubscriptionID = id
	}
}

var fixtureSeq atomic.Int64

// TestEarning 创建测试收入
func TestEarning(t *testing.T, db *gorm.DB, creatorID, amount int64, recordedAt time.Time) *model.Earning {
	t.Helper()

	earning := &model.Earning{
		CreatorID:  creatorID,
		Amount:     amount,
		Currency:   "usd",
		SourceType: model.SourceSubscription,
		SourceID:   "sub_fixture",
		EventID:    fmt.Sprintf("evt_earning_%d", fixtureSeq.Add(1)),
		RecordedAt: recordedAt.UTC(),
	}

	if err := db.Create(earning).Error; err != nil {
		t.Fatalf("Failed to create test earning: %v", err)
	}

	return earning
}
