package model

import (
	"time"
)

// 内容定价类型
const (
	PriceTypeFree           = "free"
	PriceTypePayPerView     = "ppv"
	PriceTypeSubscriberOnly = "subscriber_only"
)

// Content 已发布的视频，由发布流程写入，这里只读
type Content struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	CreatorID   int64     `gorm:"not null;index" json:"creator_id"`
	Title       string    `gorm:"size:200" json:"title"`
	PriceType   string    `gorm:"size:20;not null;default:free" json:"price_type"` // free, ppv, subscriber_only
	PriceAmount *int64    `json:"price_amount,omitempty"`
	ObjectKey   string    `gorm:"size:500" json:"-"`
	StreamURL   string    `gorm:"size:500" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Content) TableName() string {
	return "contents"
}
