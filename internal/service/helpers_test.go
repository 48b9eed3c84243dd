package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/pkg/payment"
	"github.com/qs3c/pulse_server/internal/pkg/pubsub"
	"github.com/qs3c/pulse_server/internal/pkg/watermark"
	"github.com/qs3c/pulse_server/internal/repository"
	"github.com/qs3c/pulse_server/internal/testutil"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []*pubsub.EntitlementChangedMessage
	err      error
}

func (p *fakePublisher) PublishEntitlementChanged(ctx context.Context, msg *pubsub.EntitlementChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type testEnv struct {
	db           *gorm.DB
	processor    *testutil.FakeProcessor
	publisher    *fakePublisher
	entitlements *EntitlementService
	earnings     *EarningService
	ingestion    *IngestionService
	checkout     *CheckoutService
	playback     *PlaybackService

	entitlementRepo *repository.EntitlementRepository
	eventRepo       *repository.EventRepository
	earningRepo     *repository.EarningRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	log := zap.NewNop()
	processor := testutil.NewFakeProcessor()
	publisher := &fakePublisher{}

	entitlementRepo := repository.NewEntitlementRepository(db)
	eventRepo := repository.NewEventRepository(db)
	earningRepo := repository.NewEarningRepository(db)
	contentRepo := repository.NewContentRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)

	entitlements, err := NewEntitlementService(entitlementRepo, 100, time.Minute, nil, log)
	require.NoError(t, err)
	earnings := NewEarningService(earningRepo)

	ingestion := NewIngestionService(db, processor, entitlementRepo, eventRepo, earnings, entitlements, publisher, nil, log, 5*time.Second)

	checkout := NewCheckoutService(processor, contentRepo, &config.StripeConfig{
		SuccessURL:         "https://app.example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          "https://app.example.com/cancel",
		RequestTimeoutSecs: 2,
		Offers: map[string]config.OfferConfig{
			"monthly": {PriceID: "price_monthly", Type: "subscription"},
			"single":  {PriceID: "price_single", Type: "ppv", AccessDays: 2},
			"coffee":  {PriceID: "price_coffee", Type: "tip"},
			"broken":  {PriceID: "price_broken", Type: "gift"},
		},
	}, nil, log)

	issuer, err := watermark.NewIssuer("test-watermark-secret", watermark.Options{})
	require.NoError(t, err)
	playback := NewPlaybackService(contentRepo, playbackRepo, entitlements, issuer, nil, time.Hour, nil, log)

	return &testEnv{
		db:              db,
		processor:       processor,
		publisher:       publisher,
		entitlements:    entitlements,
		earnings:        earnings,
		ingestion:       ingestion,
		checkout:        checkout,
		playback:        playback,
		entitlementRepo: entitlementRepo,
		eventRepo:       eventRepo,
		earningRepo:     earningRepo,
	}
}

// setNow 固定所有服务的时钟
func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.entitlements.now = clock
	e.ingestion.now = clock
	e.playback.now = clock
}

// deliver 以正确签名投递事件
func (e *testEnv) deliver(t *testing.T, event *payment.Event) (*IngestResult, error) {
	t.Helper()
	return e.ingestion.Ingest(context.Background(), testutil.EncodeEvent(t, event), testutil.FakeSignature)
}

func subscriptionMeta(subscriberID, creatorID string) map[string]string {
	return map[string]string{
		"subscriber_id": subscriberID,
		"creator_id":    creatorID,
		"offer_id":      "monthly",
		"type":          "subscription",
	}
}

func checkoutEvent(id string, meta map[string]string, sub *payment.Subscription, amount int64) *payment.Event {
	return &payment.Event{
		ID:      id,
		Type:    payment.EventCheckoutCompleted,
		Created: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Checkout: &payment.CheckoutSession{
			ID:           "cs_" + id,
			Mode:         payment.ModeSubscription,
			AmountTotal:  amount,
			Currency:     "usd",
			Metadata:     meta,
			Subscription: sub,
		},
	}
}

func expandedSub(id string, periodEnd time.Time, meta map[string]string) *payment.Subscription {
	return &payment.Subscription{
		ID:               id,
		Status:           "active",
		CurrentPeriodEnd: periodEnd.Unix(),
		Metadata:         meta,
	}
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Count(&n).Error)
	return n
}
