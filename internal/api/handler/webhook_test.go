package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/pkg/payment"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func postWebhook(router http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func webhookRouter(tc *testContext) *gin.Engine {
	router := gin.New()
	router.POST("/webhooks/stripe", NewWebhookHandler(tc.Ingestion, zap.NewNop()).Stripe)
	return router
}

func completedCheckout(id string) *payment.Event {
	return &payment.Event{
		ID:      id,
		Type:    payment.EventCheckoutCompleted,
		Created: time.Now().UTC(),
		Checkout: &payment.CheckoutSession{
			ID:          "cs_" + id,
			Mode:        payment.ModeSubscription,
			AmountTotal: 999,
			Currency:    "usd",
			Metadata: map[string]string{
				"subscriber_id": "1",
				"creator_id":    "2",
				"type":          "subscription",
			},
			Subscription: &payment.Subscription{
				ID:               "sub_1",
				Status:           "active",
				CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).Unix(),
			},
		},
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWebhookHandler_Applied(t *testing.T) {
	tc := setupServices(t)
	router := webhookRouter(tc)
	payload := testutil.EncodeEvent(t, completedCheckout("evt_1"))

	w := postWebhook(router, payload, testutil.FakeSignature)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, model.EventOutcomeApplied, body["outcome"])

	// 重投
	w = postWebhook(router, payload, testutil.FakeSignature)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decodeBody(t, w)["outcome"])

	var earnings int64
	require.NoError(t, tc.DB.Model(&model.Earning{}).Count(&earnings).Error)
	assert.Equal(t, int64(1), earnings)
}

func TestWebhookHandler_BadSignature(t *testing.T) {
	tc := setupServices(t)
	payload := testutil.EncodeEvent(t, completedCheckout("evt_1"))

	for _, sig := range []string{"", "t=1,v1=forged"} {
		w := postWebhook(webhookRouter(tc), payload, sig)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, decodeBody(t, w)["error"])
	}

	var n int64
	require.NoError(t, tc.DB.Model(&model.ProcessedEvent{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestWebhookHandler_UndecodableObjectAccepted(t *testing.T) {
	tc := setupServices(t)
	tc.Processor.DecodeErr = errors.New("json: cannot unmarshal number into metadata of type string")

	w := postWebhook(webhookRouter(tc), testutil.EncodeEvent(t, completedCheckout("evt_bad")), testutil.FakeSignature)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.EventOutcomeUnresolved, decodeBody(t, w)["outcome"])

	var unresolved model.UnresolvedEvent
	require.NoError(t, tc.DB.First(&unresolved, "event_id = ?", "evt_bad").Error)
	assert.Contains(t, unresolved.Reason, "malformed payload")
}

func TestWebhookHandler_StorageFailure(t *testing.T) {
	tc := setupServices(t)
	sqlDB, err := tc.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := postWebhook(webhookRouter(tc), testutil.EncodeEvent(t, completedCheckout("evt_1")), testutil.FakeSignature)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["error"])
}

func TestWebhookHandler_PayloadTooLarge(t *testing.T) {
	tc := setupServices(t)

	w := postWebhook(webhookRouter(tc), bytes.Repeat([]byte("a"), maxWebhookBody+1), testutil.FakeSignature)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
