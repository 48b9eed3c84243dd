package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/pkg/metrics"
	"github.com/qs3c/pulse_server/internal/pkg/payment"
	"github.com/qs3c/pulse_server/internal/pkg/pubsub"
	"github.com/qs3c/pulse_server/internal/repository"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrLedgerWrite      = errors.New("ledger write failed")
)

// OutcomeDuplicate 事件已处理过，不产生任何写入
const OutcomeDuplicate = "duplicate"

// 结账 metadata 中的购买类型
const (
	PurchaseSubscription = "subscription"
	PurchasePayPerView   = "ppv"
	PurchaseTip          = "tip"
)

// defaultAccessDays 单次购买未指定 access_days 时的观看期
const defaultAccessDays = 1

// errAlreadyMarked 并发投递时另一请求已写入处理标记，用于回滚事务
var errAlreadyMarked = errors.New("event already marked")

// IngestResult 事件处理结果
type IngestResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"` // applied, ignored, unresolved, duplicate
}

// ChangePublisher 授权变更广播
type ChangePublisher interface {
	PublishEntitlementChanged(ctx context.Context, msg *pubsub.EntitlementChangedMessage) error
}

// plan 事件解析后待落库的变更
type plan struct {
	outcome  string
	reason   string
	metadata map[string]string

	entitlement *model.Entitlement
	statusOnly  bool
	earning     *model.Earning
}

func ignored() *plan {
	return &plan{outcome: model.EventOutcomeIgnored}
}

// maxReasonLen 与 unresolved_events.reason 列宽一致
const maxReasonLen = 255

func unresolved(reason string, metadata map[string]string) *plan {
	if len(reason) > maxReasonLen {
		reason = strings.ToValidUTF8(reason[:maxReasonLen], "")
	}
	return &plan{outcome: model.EventOutcomeUnresolved, reason: reason, metadata: metadata}
}

// IngestionService 支付事件入口：验签、去重、写授权和收入、最后写处理标记
type IngestionService struct {
	db              *gorm.DB
	processor       payment.Processor
	entitlementRepo *repository.EntitlementRepository
	eventRepo       *repository.EventRepository
	earnings        *EarningService
	entitlements    *EntitlementService
	publisher       ChangePublisher
	metrics         *metrics.Collector
	log             *zap.Logger
	timeout         time.Duration
	now             func() time.Time
}

func NewIngestionService(
	db *gorm.DB,
	processor payment.Processor,
	entitlementRepo *repository.EntitlementRepository,
	eventRepo *repository.EventRepository,
	earnings *EarningService,
	entitlements *EntitlementService,
	publisher ChangePublisher,
	metrics *metrics.Collector,
	log *zap.Logger,
	timeout time.Duration,
) *IngestionService {
	return &IngestionService{
		db:              db,
		processor:       processor,
		entitlementRepo: entitlementRepo,
		eventRepo:       eventRepo,
		earnings:        earnings,
		entitlements:    entitlements,
		publisher:       publisher,
		metrics:         metrics,
		log:             log,
		timeout:         timeout,
		now:             time.Now,
	}
}

// Ingest 处理一次 webhook 投递，返回错误时支付平台会重试
func (s *IngestionService) Ingest(ctx context.Context, payload []byte, signatureHeader string) (*IngestResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.IngestDuration(time.Since(start).Seconds())
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	event, err := s.processor.ParseEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.WebhookFailure("signature")
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.ID == "" {
		s.metrics.WebhookFailure("signature")
		return nil, fmt.Errorf("%w: missing event id", ErrInvalidSignature)
	}

	result := &IngestResult{EventID: event.ID, EventType: event.Type}

	processed, err := s.eventRepo.IsProcessed(ctx, event.ID)
	if err != nil {
		s.metrics.WebhookFailure("storage")
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if processed {
		result.Outcome = OutcomeDuplicate
		s.metrics.WebhookEvent(event.Type, result.Outcome)
		s.log.Debug("duplicate event skipped", zap.String("event_id", event.ID))
		return result, nil
	}

	p, err := s.resolve(ctx, event)
	if err != nil {
		s.metrics.WebhookFailure("processor")
		return nil, err
	}

	if err := s.apply(ctx, event, p); err != nil {
		if errors.Is(err, errAlreadyMarked) {
			result.Outcome = OutcomeDuplicate
			s.metrics.WebhookEvent(event.Type, result.Outcome)
			return result, nil
		}
		s.metrics.WebhookFailure("storage")
		s.log.Error("ledger write failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	result.Outcome = p.outcome
	s.metrics.WebhookEvent(event.Type, p.outcome)

	switch p.outcome {
	case model.EventOutcomeApplied:
		s.afterApplied(ctx, event, p)
	case model.EventOutcomeUnresolved:
		s.log.Warn("payment event could not be correlated",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("reason", p.reason))
	case model.EventOutcomeIgnored:
		if p.reason != "" {
			s.log.Info("stale payment event ignored",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.String("reason", p.reason))
		}
	}

	return result, nil
}

// resolve 只读阶段：解析事件并决定要写什么，必要时向支付平台拉取订阅
func (s *IngestionService) resolve(ctx context.Context, event *payment.Event) (*plan, error) {
	if event.DecodeErr != nil {
		return unresolved("malformed payload: "+event.DecodeErr.Error(), nil), nil
	}

	switch event.Type {
	case payment.EventCheckoutCompleted:
		return s.resolveCheckout(ctx, event)
	case payment.EventSubscriptionUpdated:
		return s.resolveSubscriptionUpdated(event)
	case payment.EventSubscriptionDeleted:
		return s.resolveSubscriptionDeleted(event)
	case payment.EventInvoicePaid:
		return s.resolveInvoicePaid(ctx, event)
	default:
		return ignored(), nil
	}
}

func (s *IngestionService) resolveCheckout(ctx context.Context, event *payment.Event) (*plan, error) {
	cs := event.Checkout
	if cs == nil {
		return unresolved("missing checkout session object", nil), nil
	}

	subscriberID, creatorID, reason := parseCorrelation(cs.Metadata)
	if reason != "" {
		return unresolved(reason, cs.Metadata), nil
	}

	purchase := cs.Metadata["type"]
	if purchase == "" {
		switch cs.Mode {
		case payment.ModeSubscription:
			purchase = PurchaseSubscription
		case payment.ModePayment:
			purchase = PurchasePayPerView
		}
	}

	p := &plan{
		outcome: model.EventOutcomeApplied,
		entitlement: &model.Entitlement{
			SubscriberID:  subscriberID,
			CreatorID:     creatorID,
			SourceEventID: event.ID,
		},
		earning: &model.Earning{
			CreatorID: creatorID,
			Amount:    cs.AmountTotal,
			Currency:  cs.Currency,
			EventID:   event.ID,
		},
	}

	switch purchase {
	case PurchaseSubscription:
		sub, err := s.expandSubscription(ctx, cs.Subscription)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return unresolved("missing subscription", cs.Metadata), nil
		}
		if sub.CurrentPeriodEnd <= 0 {
			return unresolved("missing subscription period end", cs.Metadata), nil
		}
		expiresAt := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		p.entitlement.ExpiresAt = &expiresAt
		p.entitlement.ProcessorSubscriptionID = sub.ID
		p.earning.SourceType = model.SourceSubscription
		p.earning.SourceID = sub.ID

	case PurchasePayPerView:
		days, err := parseAccessDays(cs.Metadata["access_days"])
		if err != nil {
			return unresolved("invalid access_days", cs.Metadata), nil
		}
		if days == 0 {
			days = defaultAccessDays
		}
		expiresAt := event.Created.UTC().AddDate(0, 0, days)
		p.entitlement.ExpiresAt = &expiresAt
		p.earning.SourceType = model.SourcePayPerView
		p.earning.SourceID = paymentSourceID(cs)

	case PurchaseTip:
		// 打赏只记收入，不产生授权
		p.entitlement = nil
		p.earning.SourceType = model.SourceTip
		p.earning.SourceID = paymentSourceID(cs)

	default:
		return unresolved(fmt.Sprintf("unknown purchase type %q", purchase), cs.Metadata), nil
	}

	return p, nil
}

func paymentSourceID(cs *payment.CheckoutSession) string {
	if cs.PaymentIntentID != "" {
		return cs.PaymentIntentID
	}
	return cs.ID
}

func (s *IngestionService) resolveSubscriptionUpdated(event *payment.Event) (*plan, error) {
	sub := event.Subscription
	if sub == nil {
		return unresolved("missing subscription object", nil), nil
	}

	subscriberID, creatorID, reason := parseCorrelation(sub.Metadata)
	if reason != "" {
		return unresolved(reason, sub.Metadata), nil
	}

	ent := &model.Entitlement{
		SubscriberID:            subscriberID,
		CreatorID:               creatorID,
		SourceEventID:           event.ID,
		ProcessorSubscriptionID: sub.ID,
	}

	switch sub.Status {
	case "active", "trialing":
		if sub.CurrentPeriodEnd <= 0 {
			return unresolved("missing subscription period end", sub.Metadata), nil
		}
		expiresAt := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		ent.ExpiresAt = &expiresAt
		return &plan{outcome: model.EventOutcomeApplied, entitlement: ent}, nil
	case "canceled", "unpaid", "incomplete_expired":
		ent.Status = model.EntitlementCanceled
		return &plan{outcome: model.EventOutcomeApplied, entitlement: ent, statusOnly: true}, nil
	default:
		return ignored(), nil
	}
}

func (s *IngestionService) resolveSubscriptionDeleted(event *payment.Event) (*plan, error) {
	sub := event.Subscription
	if sub == nil {
		return unresolved("missing subscription object", nil), nil
	}

	subscriberID, creatorID, reason := parseCorrelation(sub.Metadata)
	if reason != "" {
		return unresolved(reason, sub.Metadata), nil
	}

	return &plan{
		outcome: model.EventOutcomeApplied,
		entitlement: &model.Entitlement{
			SubscriberID:            subscriberID,
			CreatorID:               creatorID,
			Status:                  model.EntitlementCanceled,
			SourceEventID:           event.ID,
			ProcessorSubscriptionID: sub.ID,
		},
		statusOnly: true,
	}, nil
}

// resolveInvoicePaid 只处理周期续费，首期账单由 checkout 事件覆盖
func (s *IngestionService) resolveInvoicePaid(ctx context.Context, event *payment.Event) (*plan, error) {
	inv := event.Invoice
	if inv == nil {
		return unresolved("missing invoice object", nil), nil
	}
	if inv.BillingReason != payment.BillingReasonCycle {
		return ignored(), nil
	}

	sub, err := s.expandSubscription(ctx, inv.Subscription)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return unresolved("missing subscription", nil), nil
	}

	subscriberID, creatorID, reason := parseCorrelation(sub.Metadata)
	if reason != "" {
		return unresolved(reason, sub.Metadata), nil
	}
	if sub.CurrentPeriodEnd <= 0 {
		return unresolved("missing subscription period end", sub.Metadata), nil
	}

	expiresAt := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	return &plan{
		outcome: model.EventOutcomeApplied,
		entitlement: &model.Entitlement{
			SubscriberID:            subscriberID,
			CreatorID:               creatorID,
			ExpiresAt:               &expiresAt,
			SourceEventID:           event.ID,
			ProcessorSubscriptionID: sub.ID,
		},
		earning: &model.Earning{
			CreatorID:  creatorID,
			Amount:     inv.AmountPaid,
			Currency:   inv.Currency,
			SourceType: model.SourceSubscription,
			SourceID:   sub.ID,
			EventID:    event.ID,
		},
	}, nil
}

// expandSubscription 事件中未展开的订阅需要向支付平台拉取
func (s *IngestionService) expandSubscription(ctx context.Context, sub *payment.Subscription) (*payment.Subscription, error) {
	if sub == nil || sub.ID == "" {
		return nil, nil
	}
	if sub.Expanded() {
		return sub, nil
	}

	full, err := s.processor.GetSubscription(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	return full, nil
}

// apply 在一个事务内写入授权、收入和处理标记，标记最后写入
func (s *IngestionService) apply(ctx context.Context, event *payment.Event, p *plan) error {
	now := s.now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entitlementRepo := s.entitlementRepo.WithTx(tx)
		eventRepo := s.eventRepo.WithTx(tx)

		switch p.outcome {
		case model.EventOutcomeApplied:
			if p.entitlement != nil {
				p.entitlement.CreatedAt = now
				p.entitlement.UpdatedAt = now
				var err error
				if p.statusOnly {
					err = entitlementRepo.UpsertStatus(ctx, p.entitlement)
				} else {
					err = entitlementRepo.UpsertActive(ctx, p.entitlement)
				}
				if err != nil {
					return err
				}

				stored, err := entitlementRepo.GetByPair(ctx, p.entitlement.SubscriberID, p.entitlement.CreatorID)
				if err != nil {
					return err
				}
				if stored == nil {
					return fmt.Errorf("entitlement (%d, %d) missing after upsert", p.entitlement.SubscriberID, p.entitlement.CreatorID)
				}
				if stored.SourceEventID != event.ID {
					// 授权已绑定到其他订阅，旧订阅的事件不生效
					p.outcome = model.EventOutcomeIgnored
					p.reason = "entitlement bound to subscription " + stored.ProcessorSubscriptionID
					p.entitlement = nil
				} else {
					p.entitlement = stored
				}
			}
			if p.earning != nil {
				p.earning.RecordedAt = now
				if _, err := s.earnings.WithTx(tx).Record(ctx, p.earning); err != nil {
					return err
				}
			}

		case model.EventOutcomeUnresolved:
			if err := eventRepo.SaveUnresolved(ctx, &model.UnresolvedEvent{
				EventID:   event.ID,
				EventType: event.Type,
				Reason:    p.reason,
				Metadata:  metadataJSON(p.metadata),
				Payload:   payloadJSON(event.Raw),
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		marked, err := eventRepo.MarkProcessed(ctx, event.ID, event.Type, p.outcome, now)
		if err != nil {
			return err
		}
		if !marked {
			return errAlreadyMarked
		}
		return nil
	})
}

// afterApplied 失效缓存并广播，失败只记录日志
func (s *IngestionService) afterApplied(ctx context.Context, event *payment.Event, p *plan) {
	ent := p.entitlement
	if ent == nil {
		return
	}

	s.entitlements.Invalidate(ent.SubscriberID, ent.CreatorID)

	s.log.Info("entitlement updated",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int64("subscriber_id", ent.SubscriberID),
		zap.Int64("creator_id", ent.CreatorID),
		zap.String("status", ent.Status))

	if s.publisher == nil {
		return
	}
	msg := &pubsub.EntitlementChangedMessage{
		SubscriberID: ent.SubscriberID,
		CreatorID:    ent.CreatorID,
		Status:       ent.Status,
		ExpiresAt:    ent.ExpiresAt,
		EventID:      event.ID,
	}
	if err := s.publisher.PublishEntitlementChanged(ctx, msg); err != nil {
		s.log.Warn("failed to publish entitlement change",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// parseCorrelation 校验 metadata 中的订阅者和创作者，兼容旧的 userId/creatorId 键
func parseCorrelation(meta map[string]string) (subscriberID, creatorID int64, reason string) {
	subscriberRaw := firstNonEmpty(meta["subscriber_id"], meta["userId"])
	creatorRaw := firstNonEmpty(meta["creator_id"], meta["creatorId"])

	if subscriberRaw == "" || creatorRaw == "" {
		return 0, 0, "missing subscriber or creator in metadata"
	}

	subscriberID, err := strconv.ParseInt(subscriberRaw, 10, 64)
	if err != nil || subscriberID <= 0 {
		return 0, 0, "invalid subscriber id in metadata"
	}
	creatorID, err = strconv.ParseInt(creatorRaw, 10, 64)
	if err != nil || creatorID <= 0 {
		return 0, 0, "invalid creator id in metadata"
	}
	if subscriberID == creatorID {
		return 0, 0, "subscriber and creator are the same"
	}

	return subscriberID, creatorID, ""
}

func parseAccessDays(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("invalid access_days %q", raw)
	}
	return days, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func metadataJSON(meta map[string]string) datatypes.JSON {
	if meta == nil {
		return datatypes.JSON("{}")
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

func payloadJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

// ListUnresolved 分页获取待人工对账的事件
func (s *IngestionService) ListUnresolved(ctx context.Context, page, pageSize int) ([]*model.UnresolvedEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.eventRepo.ListUnresolved(ctx, page, pageSize)
}
