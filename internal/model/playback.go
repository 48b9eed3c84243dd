package model

import (
	"time"
)

// PlaybackSession 一次授权播放，记录水印 token 以便泄露后溯源
type PlaybackSession struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	ViewerID    int64     `gorm:"not null;index" json:"viewer_id"` // 0 表示匿名
	ContentID   int64     `gorm:"not null;index" json:"content_id"`
	SessionSalt string    `gorm:"size:64;not null" json:"-"`
	Token       string    `gorm:"size:32;not null;uniqueIndex" json:"token"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PlaybackSession) TableName() string {
	return "playback_sessions"
}
