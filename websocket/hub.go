package websocket

import (
	"log"
	"sync"

	"github.com/KiiTuNp/SUPERvote/models"
)

// 每个订阅的发送缓冲大小；慢客户端填满缓冲后被断开，
// 重连后通过房间状态接口补齐全量状态
const subscriptionBuffer = 256

// Subscription 一个房间事件订阅
// C 上按变更提交顺序收到该房间的所有事件，通道关闭表示订阅被移除
type Subscription struct {
	RoomID string
	send   chan []byte
	hub    *Hub
	once   sync.Once
}

// C 返回事件接收通道
func (s *Subscription) C() <-chan []byte {
	return s.send
}

// Hub 维护按房间分组的订阅集合并向订阅者广播事件
type Hub struct {
	// 已注册的订阅，按房间码分组
	subscriptions map[string]map[*Subscription]bool

	// 互斥锁保护subscriptions map
	mu sync.RWMutex
}

// NewHub 创建一个新的Hub
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*Subscription]bool),
	}
}

// Subscribe 订阅一个房间的事件流
func (h *Hub) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		RoomID: roomID,
		send:   make(chan []byte, subscriptionBuffer),
		hub:    h,
	}

	h.mu.Lock()
	if _, ok := h.subscriptions[roomID]; !ok {
		h.subscriptions[roomID] = make(map[*Subscription]bool)
	}
	h.subscriptions[roomID][sub] = true
	total := len(h.subscriptions[roomID])
	h.mu.Unlock()

	log.Printf("Client subscribed to room %s, total clients: %d", roomID, total)
	return sub
}

// Unsubscribe 移除订阅并关闭其通道，重复调用是安全的
func (h *Hub) Unsubscribe(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		if subs, ok := h.subscriptions[sub.RoomID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subscriptions, sub.RoomID)
			}
		}
		h.mu.Unlock()
		close(sub.send)

		log.Printf("Client unsubscribed from room %s", sub.RoomID)
	})
}

// Publish 向房间的所有订阅者广播事件
// 在Coordinator的串行门内同步调用，因此每个订阅者看到的事件顺序
// 与变更提交顺序一致；投递是尽力而为，不保证慢客户端不丢事件
func (h *Hub) Publish(roomID string, event *models.Event) {
	payload, err := event.ToJSON()
	if err != nil {
		log.Printf("Error converting event to JSON: %v", err)
		return
	}

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscriptions[roomID]))
	for sub := range h.subscriptions[roomID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var dropped []*Subscription
	for _, sub := range subs {
		select {
		case sub.send <- payload:
		default:
			// 发送缓冲已满，断开该订阅者
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		h.Unsubscribe(sub)
	}
}

// PublishRaw 广播已序列化的事件载荷
// 跨实例转发来的事件在本实例不重新构造，原样投递
func (h *Hub) PublishRaw(roomID string, payload []byte) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscriptions[roomID]))
	for sub := range h.subscriptions[roomID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var dropped []*Subscription
	for _, sub := range subs {
		select {
		case sub.send <- payload:
		default:
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		h.Unsubscribe(sub)
	}
}

// CloseRoom 移除房间的全部订阅（房间清除后调用）
func (h *Hub) CloseRoom(roomID string) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subscriptions[roomID]))
	for sub := range h.subscriptions[roomID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.Unsubscribe(sub)
	}
}

// SubscriberCount 返回房间当前订阅者数量
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[roomID])
}
