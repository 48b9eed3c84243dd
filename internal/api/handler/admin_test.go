package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func adminRouter(tc *testContext) *gin.Engine {
	h := NewAdminHandler(tc.Playback, tc.Ingestion, tc.Entitlements)
	router := gin.New()
	router.GET("/admin/watermarks/:token", h.TraceWatermark)
	router.GET("/admin/events/unresolved", h.ListUnresolvedEvents)
	router.POST("/admin/entitlements/sweep", h.SweepExpired)
	return router
}

func TestAdminHandler_TraceWatermark(t *testing.T) {
	tc := setupServices(t)
	content := testutil.TestContent(t, tc.DB, 2, testutil.WithPriceType(model.PriceTypeFree))

	grant, err := tc.Playback.Authorize(context.Background(), 9, content.ID)
	require.NoError(t, err)

	w := performRequest(adminRouter(tc), "GET", "/admin/watermarks/"+grant.Overlay.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, parseResponse(t, w))
	assert.Equal(t, float64(9), data["viewer_id"])
	assert.Equal(t, grant.SessionID, data["session_id"])
	assert.Equal(t, float64(content.ID), data["content_id"])

	w = performRequest(adminRouter(tc), "GET", "/admin/watermarks/AAAA-BBBB-CCCC-DDDD", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_ListUnresolvedEvents(t *testing.T) {
	tc := setupServices(t)
	event := completedCheckout("evt_orphan")
	event.Checkout.Metadata = map[string]string{"type": "subscription"}

	_, err := tc.Ingestion.Ingest(context.Background(), testutil.EncodeEvent(t, event), testutil.FakeSignature)
	require.NoError(t, err)

	w := performRequest(adminRouter(tc), "GET", "/admin/events/unresolved", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := dataMap(t, parseResponse(t, w))
	assert.Equal(t, float64(1), data["total"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "evt_orphan", items[0].(map[string]interface{})["event_id"])
}

func TestAdminHandler_SweepExpired(t *testing.T) {
	tc := setupServices(t)
	past := time.Now().UTC().Add(-time.Hour)
	testutil.TestEntitlement(t, tc.DB, 1, 2, testutil.WithExpiresAt(&past))
	testutil.TestEntitlement(t, tc.DB, 1, 3)

	for _, tt := range []struct {
		query     string
		wantCount float64
	}{
		{"?dry_run=true", 1},
		{"", 1},
		{"", 0},
	} {
		w := performRequest(adminRouter(tc), "POST", "/admin/entitlements/sweep"+tt.query, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tt.wantCount, dataMap(t, parseResponse(t, w))["count"], fmt.Sprintf("query %q", tt.query))
	}
}
