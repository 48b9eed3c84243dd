package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qs3c/pulse_server/internal/pkg/payment"
)

// FakeSignature 假支付平台接受的签名头
const FakeSignature = "t=0,v1=fake"

// FakeProcessor 内存实现的 payment.Processor
type FakeProcessor struct {
	mu sync.Mutex

	Subscriptions   map[string]*payment.Subscription
	SubscriptionErr error

	CheckoutErr   error
	CheckoutDelay time.Duration
	CheckoutCalls []*payment.CheckoutParams

	// DecodeErr 非空时模拟签名有效但数据对象解析失败
	DecodeErr error

	GetSubscriptionCalls int
	sessionSeq           int
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{
		Subscriptions: make(map[string]*payment.Subscription),
	}
}

// EncodeEvent 序列化事件作为 webhook 请求体
func EncodeEvent(t *testing.T, event *payment.Event) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	return data
}

func (f *FakeProcessor) ParseEvent(payload []byte, signatureHeader string) (*payment.Event, error) {
	if signatureHeader != FakeSignature {
		return nil, payment.ErrInvalidSignature
	}
	var event payment.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}
	event.Raw = payload

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DecodeErr != nil {
		event.Checkout, event.Subscription, event.Invoice = nil, nil, nil
		event.DecodeErr = f.DecodeErr
	}
	return &event, nil
}

// AddSubscription 注册可被拉取的订阅
func (f *FakeProcessor) AddSubscription(sub *payment.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscriptions[sub.ID] = sub
}

func (f *FakeProcessor) GetSubscription(ctx context.Context, id string) (*payment.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GetSubscriptionCalls++
	if f.SubscriptionErr != nil {
		return nil, f.SubscriptionErr
	}
	sub, ok := f.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("%w: no such subscription %s", payment.ErrUnavailable, id)
	}
	copied := *sub
	return &copied, nil
}

func (f *FakeProcessor) CreateCheckoutSession(ctx context.Context, params *payment.CheckoutParams) (*payment.CheckoutSessionHandle, error) {
	if f.CheckoutDelay > 0 {
		select {
		case <-time.After(f.CheckoutDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", payment.ErrUnavailable, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.CheckoutCalls = append(f.CheckoutCalls, params)
	if f.CheckoutErr != nil {
		return nil, f.CheckoutErr
	}
	f.sessionSeq++
	id := fmt.Sprintf("cs_test_%d", f.sessionSeq)
	return &payment.CheckoutSessionHandle{
		SessionID:   id,
		RedirectURL: "https://checkout.example.com/pay/" + id,
	}, nil
}

// LastCheckout 最近一次创建会话的参数
func (f *FakeProcessor) LastCheckout() *payment.CheckoutParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.CheckoutCalls) == 0 {
		return nil
	}
	return f.CheckoutCalls[len(f.CheckoutCalls)-1]
}
