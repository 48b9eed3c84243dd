package dto

import "time"

// PlaybackResponse 播放授权结果
type PlaybackResponse struct {
	Decision  string       `json:"decision"` // allow, require_payment
	ContentID int64        `json:"content_id"`
	CreatorID int64        `json:"creator_id"`
	PriceType string       `json:"price_type"`
	Price     *int64       `json:"price,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	StreamURL string       `json:"stream_url,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Overlay   *OverlayInfo `json:"overlay,omitempty"`
}

// OverlayInfo 水印渲染参数
type OverlayInfo struct {
	Token       string  `json:"token"`
	Text        string  `json:"text"`
	Font        string  `json:"font"`
	Color       string  `json:"color"`
	Opacity     float64 `json:"opacity"`
	Pitch       int     `json:"pitch"`
	RotationDeg int     `json:"rotation_deg"`
	Render      string  `json:"render"`
}

// OverlayLayoutResponse 指定画布尺寸下的水印平铺位置
type OverlayLayoutResponse struct {
	Overlay   OverlayInfo `json:"overlay"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	TilePitch int         `json:"tile_pitch"` // 超大画布时大于 overlay.pitch
	Tiles     [][2]int    `json:"tiles"`
}

// WatermarkTraceResponse 水印溯源结果
type WatermarkTraceResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ViewerID  int64     `json:"viewer_id"`
	Anonymous bool      `json:"anonymous"`
	ContentID int64     `json:"content_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
