package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TypeEntitlementUpdated 授权变更推送
const TypeEntitlementUpdated = "entitlement_updated"

const writeWait = 5 * time.Second

// Hub 按订阅者分组的在线连接
type Hub struct {
	// 每个订阅者可以有多个连接（多标签页、多设备）
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	log     *zap.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EntitlementUpdate 推送给订阅者的授权快照，Status 为推送时刻的有效状态
type EntitlementUpdate struct {
	CreatorID int64      `json:"creator_id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	EventID   string     `json:"event_id,omitempty"`
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.log.Debug("ws subscriber connected",
		zap.Int64("subscriber_id", client.UserID),
		zap.Int("conns", len(h.clients[client.UserID])))
}

// Unregister 可重复调用
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) bool {
	conns, ok := h.clients[client.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[client]; !ok {
		return false
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	return true
}

// PushEntitlement 推送授权变更，返回送达的连接数
func (h *Hub) PushEntitlement(subscriberID int64, update EntitlementUpdate) int {
	delivered, err := h.send(subscriberID, &Message{Type: TypeEntitlementUpdated, Data: update})
	if err != nil {
		h.log.Warn("encode entitlement update failed",
			zap.Int64("subscriber_id", subscriberID),
			zap.Error(err))
	}
	return delivered
}

// SendToUser 向订阅者的所有连接发送消息，不在线时直接返回
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	_, err := h.send(userID, msg)
	return err
}

// send 写失败的连接会被关闭并移除，读循环随后退出
func (h *Hub) send(userID int64, msg *Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	conns := h.clients[userID]
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []*Client
	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.log.Warn("ws write failed",
				zap.Int64("subscriber_id", userID),
				zap.String("type", msg.Type),
				zap.Error(err))
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, c := range failed {
			if h.removeLocked(c) {
				c.Conn.Close()
			}
		}
		h.mu.Unlock()
	}
	return delivered, nil
}

// IsOnline 订阅者是否有在线连接
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount 在线连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
