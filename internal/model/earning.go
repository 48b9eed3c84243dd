package model

import (
	"time"
)

// 收入来源
const (
	SourceSubscription = "subscription"
	SourcePayPerView   = "ppv"
	SourceTip          = "tip"
)

// Earning 创作者收入流水，只追加不修改
type Earning struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	CreatorID  int64     `gorm:"not null;index:idx_earning_creator_time,priority:1" json:"creator_id"`
	Amount     int64     `gorm:"not null" json:"amount"`
	Currency   string    `gorm:"size:10" json:"currency"`
	SourceType string    `gorm:"size:20;not null" json:"source_type"` // subscription, ppv
	SourceID   string    `gorm:"size:255;not null;index" json:"source_id"`
	EventID    string    `gorm:"size:255;not null;uniqueIndex" json:"event_id"`
	RecordedAt time.Time `gorm:"not null;index:idx_earning_creator_time,priority:2" json:"recorded_at"`
}

func (Earning) TableName() string {
	return "earnings"
}
