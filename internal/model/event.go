package model

import (
	"time"

	"gorm.io/datatypes"
)

// 事件处理结果
const (
	EventOutcomeApplied    = "applied"
	EventOutcomeIgnored    = "ignored"
	EventOutcomeUnresolved = "unresolved"
)

// ProcessedEvent 已处理的支付事件标记，event_id 全局唯一
type ProcessedEvent struct {
	EventID     string    `gorm:"primaryKey;size:255" json:"event_id"`
	EventType   string    `gorm:"size:100;not null;index" json:"event_type"`
	Outcome     string    `gorm:"size:20;not null" json:"outcome"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// UnresolvedEvent 无法关联到授权对象的支付事件，留待人工对账
type UnresolvedEvent struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	EventID   string         `gorm:"size:255;not null;uniqueIndex" json:"event_id"`
	EventType string         `gorm:"size:100;not null" json:"event_type"`
	Reason    string         `gorm:"size:255;not null" json:"reason"`
	Metadata  datatypes.JSON `json:"metadata"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (UnresolvedEvent) TableName() string {
	return "unresolved_events"
}
