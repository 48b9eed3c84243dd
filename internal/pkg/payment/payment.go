package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnavailable      = errors.New("payment processor unavailable")
)

// 支付平台事件类型
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
)

// 结账模式
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// BillingReasonCycle 订阅周期续费产生的账单
const BillingReasonCycle = "subscription_cycle"

// Processor 支付平台客户端
type Processor interface {
	// ParseEvent 校验签名并解析事件，签名不通过返回 ErrInvalidSignature；
	// 数据对象解析失败时仍返回事件，错误放在 Event.DecodeErr
	ParseEvent(payload []byte, signatureHeader string) (*Event, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, params *CheckoutParams) (*CheckoutSessionHandle, error)
}

// Event 已验签的支付事件，按类型只填充对应对象
type Event struct {
	ID      string
	Type    string
	Created time.Time

	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *Invoice

	// DecodeErr 签名有效但数据对象无法解析，此时类型对象均为 nil
	DecodeErr error `json:"-"`

	Raw []byte
}

type CheckoutSession struct {
	ID                string
	Mode              string
	AmountTotal       int64
	Currency          string
	PaymentIntentID   string
	ClientReferenceID string
	Metadata          map[string]string
	// Subscription 未展开时只有 ID
	Subscription *Subscription
}

type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd int64
	Metadata         map[string]string
}

// Expanded 是否携带完整订阅对象
func (s *Subscription) Expanded() bool {
	return s != nil && s.Status != "" && s.CurrentPeriodEnd > 0
}

type Invoice struct {
	ID            string
	BillingReason string
	AmountPaid    int64
	Currency      string
	Subscription  *Subscription
}

// CheckoutParams 创建结账会话参数
type CheckoutParams struct {
	Mode              string
	PriceID           string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

// CheckoutSessionHandle 结账会话，RedirectURL 为支付页面地址
type CheckoutSessionHandle struct {
	SessionID   string
	RedirectURL string
}
