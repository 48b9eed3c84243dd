package dto

// CreateCheckoutRequest 创建支付会话请求
type CreateCheckoutRequest struct {
	OfferID   string `json:"offer_id" binding:"required"`
	CreatorID int64  `json:"creator_id" binding:"required"`
	ContentID int64  `json:"content_id"`
}

// CreateCheckoutResponse 支付会话，前端跳转到 redirect_url 完成支付
type CreateCheckoutResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}
