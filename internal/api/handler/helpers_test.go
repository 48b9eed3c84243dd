package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/api/middleware"
	"github.com/qs3c/pulse_server/internal/pkg/pubsub"
	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/pkg/watermark"
	"github.com/qs3c/pulse_server/internal/repository"
	"github.com/qs3c/pulse_server/internal/service"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-handler"

type nopPublisher struct{}

func (nopPublisher) PublishEntitlementChanged(ctx context.Context, msg *pubsub.EntitlementChangedMessage) error {
	return nil
}

// testContext 处理器测试依赖
type testContext struct {
	DB        *gorm.DB
	Processor *testutil.FakeProcessor

	Entitlements *service.EntitlementService
	Earnings     *service.EarningService
	Ingestion    *service.IngestionService
	Checkout     *service.CheckoutService
	Playback     *service.PlaybackService
}

func setupServices(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	log := zap.NewNop()
	processor := testutil.NewFakeProcessor()

	entitlementRepo := repository.NewEntitlementRepository(db)
	contentRepo := repository.NewContentRepository(db)

	entitlements, err := service.NewEntitlementService(entitlementRepo, 100, time.Second, nil, log)
	require.NoError(t, err)
	earnings := service.NewEarningService(repository.NewEarningRepository(db))

	ingestion := service.NewIngestionService(db, processor, entitlementRepo, repository.NewEventRepository(db),
		earnings, entitlements, nopPublisher{}, nil, log, 5*time.Second)

	checkout := service.NewCheckoutService(processor, contentRepo, &config.StripeConfig{
		SuccessURL: "https://app.example.com/success",
		CancelURL:  "https://app.example.com/cancel",
		Offers: map[string]config.OfferConfig{
			"monthly": {PriceID: "price_monthly", Type: "subscription"},
		},
	}, nil, log)

	issuer, err := watermark.NewIssuer("handler-watermark-secret", watermark.Options{})
	require.NoError(t, err)
	playback := service.NewPlaybackService(contentRepo, repository.NewPlaybackRepository(db),
		entitlements, issuer, nil, time.Hour, nil, log)

	return &testContext{
		DB:           db,
		Processor:    processor,
		Entitlements: entitlements,
		Earnings:     earnings,
		Ingestion:    ingestion,
		Checkout:     checkout,
		Playback:     playback,
	}
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID > 0 {
			c.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data should be an object")
	return data
}
