package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	defaultTolerance      = 300 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// StripeConfig Stripe 适配器配置
type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	Tolerance      time.Duration
	RequestTimeout time.Duration
	// BackendURL 非空时覆盖 API 地址，用于测试
	BackendURL string
}

// StripeProcessor 基于 stripe-go 的 Processor 实现
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

// NewStripeProcessor 创建 Stripe 客户端，关闭 SDK 自带重试，超时由调用方 context 和 http 客户端共同约束
func NewStripeProcessor(cfg StripeConfig, log *zap.Logger) *StripeProcessor {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.RequestTimeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.Sugar(),
	}
	if cfg.BackendURL != "" {
		backendConfig.URL = stripe.String(cfg.BackendURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	return &StripeProcessor{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.Tolerance,
	}
}

// ParseEvent 校验 Stripe-Signature 并解析事件
func (p *StripeProcessor) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{
		ID:      raw.ID,
		Type:    string(raw.Type),
		Created: time.Unix(raw.Created, 0).UTC(),
		Raw:     payload,
	}
	if raw.Data == nil {
		return event, nil
	}

	if err := decodeObject(event, raw.Data.Raw); err != nil {
		event.Checkout, event.Subscription, event.Invoice = nil, nil, nil
		event.DecodeErr = err
	}
	return event, nil
}

func decodeObject(event *Event, data json.RawMessage) error {
	switch event.Type {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(data, &cs); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		event.Checkout = convertCheckoutSession(&cs)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(data, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		event.Subscription = convertSubscription(&sub)
	case EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		event.Invoice = &Invoice{
			ID:            inv.ID,
			BillingReason: string(inv.BillingReason),
			AmountPaid:    inv.AmountPaid,
			Currency:      string(inv.Currency),
			Subscription:  convertSubscription(inv.Subscription),
		}
	}
	return nil
}

// GetSubscription 拉取订阅详情
func (p *StripeProcessor) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return convertSubscription(sub), nil
}

// CreateCheckoutSession 创建托管结账页面，metadata 同时写入订阅或支付对象，便于后续事件关联
func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in *CheckoutParams) (*CheckoutSessionHandle, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(in.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	if in.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(in.ClientReferenceID)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	switch in.Mode {
	case ModeSubscription:
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: copyMetadata(in.Metadata),
		}
	case ModePayment:
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(in.Metadata),
		}
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &CheckoutSessionHandle{
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

func convertCheckoutSession(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:                cs.ID,
		Mode:              string(cs.Mode),
		AmountTotal:       cs.AmountTotal,
		Currency:          string(cs.Currency),
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
		Subscription:      convertSubscription(cs.Subscription),
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out
}

func convertSubscription(sub *stripe.Subscription) *Subscription {
	if sub == nil || sub.ID == "" {
		return nil
	}
	return &Subscription{
		ID:               sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		Metadata:         sub.Metadata,
	}
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
