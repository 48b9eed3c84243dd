package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/testutil"
)

func playbackRouter(tc *testContext, userID int64) *gin.Engine {
	h := NewPlaybackHandler(tc.Playback)
	router := gin.New()
	router.Use(mockAuth(userID))
	router.POST("/playback/:content_id/authorize", h.Authorize)
	router.GET("/playback/sessions/:session_id/overlay", h.Overlay)
	return router
}

func TestPlaybackHandler_Authorize(t *testing.T) {
	t.Run("require payment", func(t *testing.T) {
		tc := setupServices(t)
		content := testutil.TestContent(t, tc.DB, 2)

		w := performRequest(playbackRouter(tc, 1), "POST", fmt.Sprintf("/playback/%d/authorize", content.ID), nil)
		resp := parseResponse(t, w)

		assert.Equal(t, http.StatusOK, w.Code)
		data := dataMap(t, resp)
		assert.Equal(t, model.DecisionRequirePayment, data["decision"])
		assert.Equal(t, float64(2), data["creator_id"])
		assert.Equal(t, float64(999), data["price"])
		assert.Nil(t, data["overlay"])
	})

	t.Run("allow with overlay", func(t *testing.T) {
		tc := setupServices(t)
		content := testutil.TestContent(t, tc.DB, 2)
		testutil.TestEntitlement(t, tc.DB, 1, 2)

		w := performRequest(playbackRouter(tc, 1), "POST", fmt.Sprintf("/playback/%d/authorize", content.ID), nil)
		resp := parseResponse(t, w)

		assert.Equal(t, http.StatusOK, w.Code)
		data := dataMap(t, resp)
		assert.Equal(t, model.DecisionAllow, data["decision"])
		assert.NotEmpty(t, data["session_id"])
		assert.Equal(t, content.StreamURL, data["stream_url"])

		overlay, ok := data["overlay"].(map[string]interface{})
		require.True(t, ok)
		assert.NotEmpty(t, overlay["token"])
		assert.Equal(t, float64(-45), overlay["rotation_deg"])
	})

	t.Run("anonymous on free content", func(t *testing.T) {
		tc := setupServices(t)
		content := testutil.TestContent(t, tc.DB, 2, testutil.WithPriceType(model.PriceTypeFree))

		w := performRequest(playbackRouter(tc, 0), "POST", fmt.Sprintf("/playback/%d/authorize", content.ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.DecisionAllow, dataMap(t, parseResponse(t, w))["decision"])
	})

	t.Run("content not found", func(t *testing.T) {
		tc := setupServices(t)

		w := performRequest(playbackRouter(tc, 1), "POST", "/playback/999/authorize", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
	})

	t.Run("bad content id", func(t *testing.T) {
		tc := setupServices(t)

		w := performRequest(playbackRouter(tc, 1), "POST", "/playback/abc/authorize", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPlaybackHandler_Overlay(t *testing.T) {
	tc := setupServices(t)
	content := testutil.TestContent(t, tc.DB, 2, testutil.WithPriceType(model.PriceTypeFree))

	w := performRequest(playbackRouter(tc, 1), "POST", fmt.Sprintf("/playback/%d/authorize", content.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	grant := dataMap(t, parseResponse(t, w))
	sessionID := grant["session_id"].(string)
	token := grant["overlay"].(map[string]interface{})["token"]

	t.Run("layout", func(t *testing.T) {
		w := performRequest(playbackRouter(tc, 1), "GET",
			"/playback/sessions/"+sessionID+"/overlay?width=300&height=150", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		data := dataMap(t, parseResponse(t, w))
		assert.Equal(t, float64(300), data["width"])
		assert.Len(t, data["tiles"], 18)
		assert.Equal(t, token, data["overlay"].(map[string]interface{})["token"])
	})

	t.Run("bad dimensions", func(t *testing.T) {
		for _, query := range []string{"", "?width=abc&height=1", "?width=0&height=100"} {
			w := performRequest(playbackRouter(tc, 1), "GET",
				"/playback/sessions/"+sessionID+"/overlay"+query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, query)
		}
	})

	t.Run("other viewer", func(t *testing.T) {
		w := performRequest(playbackRouter(tc, 2), "GET",
			"/playback/sessions/"+sessionID+"/overlay?width=300&height=150", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("expired", func(t *testing.T) {
		require.NoError(t, tc.DB.Model(&model.PlaybackSession{}).
			Where("id = ?", sessionID).
			Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

		w := performRequest(playbackRouter(tc, 1), "GET",
			"/playback/sessions/"+sessionID+"/overlay?width=300&height=150", nil)
		assert.Equal(t, http.StatusGone, w.Code)
	})
}
