package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelEntitlementChanged = "entitlement_changed"
)

// MessageTypeEntitlementUpdated 推送给客户端的消息类型
const MessageTypeEntitlementUpdated = "entitlement_updated"

// EntitlementChangedMessage 授权变更通知，各实例据此失效本地缓存并推送给在线订阅者
type EntitlementChangedMessage struct {
	Type         string     `json:"type"`
	SubscriberID int64      `json:"subscriber_id"`
	CreatorID    int64      `json:"creator_id"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	EventID      string     `json:"event_id,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEntitlementChanged 发布授权变更
func (p *Publisher) PublishEntitlementChanged(ctx context.Context, msg *EntitlementChangedMessage) error {
	msg.Type = MessageTypeEntitlementUpdated

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement message: %w", err)
	}

	return p.client.Publish(ctx, ChannelEntitlementChanged, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅授权变更，阻塞直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*EntitlementChangedMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelEntitlementChanged)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var changed EntitlementChangedMessage
			if err := json.Unmarshal([]byte(msg.Payload), &changed); err != nil {
				continue // 忽略解析错误
			}

			handler(&changed)
		}
	}
}
