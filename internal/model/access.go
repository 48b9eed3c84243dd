package model

import (
	"time"
)

// 播放决策
const (
	DecisionAllow          = "allow"
	DecisionRequirePayment = "require_payment"
)

// EvaluateAccess 访问判定规则：免费内容直接放行，付费内容要求授权有效且未过期
func EvaluateAccess(priceType string, ent *Entitlement, now time.Time) string {
	if priceType == PriceTypeFree {
		return DecisionAllow
	}
	if ent.IsActiveAt(now) {
		return DecisionAllow
	}
	return DecisionRequirePayment
}
