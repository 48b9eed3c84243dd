package dto

import "time"

// EntitlementItem 用户当前的订阅授权
type EntitlementItem struct {
	CreatorID int64      `json:"creator_id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
