package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/model/dto"
	"github.com/qs3c/pulse_server/internal/pkg/cache"
	"github.com/qs3c/pulse_server/internal/pkg/metrics"
	"github.com/qs3c/pulse_server/internal/pkg/pubsub"
	"github.com/qs3c/pulse_server/internal/repository"
)

type entitlementKey struct {
	subscriberID int64
	creatorID    int64
}

// EntitlementService 授权判定，读穿透缓存，缓存过期时间即授权状态的最大延迟
type EntitlementService struct {
	repo    *repository.EntitlementRepository
	cache   *cache.TTLCache[entitlementKey, *model.Entitlement]
	metrics *metrics.Collector
	log     *zap.Logger
	now     func() time.Time
}

func NewEntitlementService(
	repo *repository.EntitlementRepository,
	cacheSize int,
	cacheTTL time.Duration,
	metrics *metrics.Collector,
	log *zap.Logger,
) (*EntitlementService, error) {
	c, err := cache.NewTTL[entitlementKey, *model.Entitlement](cacheSize, cacheTTL)
	if err != nil {
		return nil, err
	}
	return &EntitlementService{
		repo:    repo,
		cache:   c,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}, nil
}

// Evaluate 判定观看者能否播放内容，只读不写
func (s *EntitlementService) Evaluate(ctx context.Context, subscriberID int64, content *model.Content) (string, error) {
	if content.PriceType == model.PriceTypeFree {
		return model.DecisionAllow, nil
	}
	if subscriberID <= 0 {
		return model.DecisionRequirePayment, nil
	}

	ent, err := s.lookup(ctx, subscriberID, content.CreatorID)
	if err != nil {
		return "", err
	}

	return model.EvaluateAccess(content.PriceType, ent, s.now()), nil
}

// lookup 查询授权，未找到的结果同样缓存
func (s *EntitlementService) lookup(ctx context.Context, subscriberID, creatorID int64) (*model.Entitlement, error) {
	key := entitlementKey{subscriberID: subscriberID, creatorID: creatorID}
	if ent, ok := s.cache.Get(key); ok {
		s.metrics.CacheLookup(true)
		return ent, nil
	}
	s.metrics.CacheLookup(false)

	ent, err := s.repo.GetByPair(ctx, subscriberID, creatorID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, ent)
	return ent, nil
}

// Invalidate 失效本地缓存
func (s *EntitlementService) Invalidate(subscriberID, creatorID int64) {
	s.cache.Remove(entitlementKey{subscriberID: subscriberID, creatorID: creatorID})
}

// HandleChanged 处理其他实例广播的授权变更
func (s *EntitlementService) HandleChanged(msg *pubsub.EntitlementChangedMessage) {
	s.Invalidate(msg.SubscriberID, msg.CreatorID)
}

// ListForSubscriber 获取订阅者的授权列表，状态按当前时间计算
func (s *EntitlementService) ListForSubscriber(ctx context.Context, subscriberID int64) ([]*dto.EntitlementItem, error) {
	ents, err := s.repo.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]*dto.EntitlementItem, 0, len(ents))
	for _, e := range ents {
		items = append(items, &dto.EntitlementItem{
			CreatorID: e.CreatorID,
			Status:    e.EffectiveStatus(now),
			ExpiresAt: e.ExpiresAt,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return items, nil
}

// SweepExpired 将已过期的 active 授权落库为 expired，dryRun 时只统计
func (s *EntitlementService) SweepExpired(ctx context.Context, dryRun bool) (int64, error) {
	now := s.now().UTC()
	if dryRun {
		return s.repo.CountExpiredActive(ctx, now)
	}

	n, err := s.repo.MarkExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	s.metrics.ExpiredSwept(n)
	if n > 0 {
		s.log.Info("expired entitlements swept", zap.Int64("count", n))
	}
	return n, nil
}
