package dto

import "time"

// EarningsSummaryResponse 收入汇总
type EarningsSummaryResponse struct {
	CreatorID int64      `json:"creator_id"`
	Total     int64      `json:"total"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// EarningItem 收入流水
type EarningItem struct {
	ID         int64     `json:"id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	RecordedAt time.Time `json:"recorded_at"`
}
