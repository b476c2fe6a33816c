package mq

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoomEventMessage 跨实例转发的房间事件信封
type RoomEventMessage struct {
	MessageID  string          `json:"message_id"` // 用于幂等性处理
	InstanceID string          `json:"instance_id"`
	RoomID     string          `json:"room_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  int64           `json:"timestamp"`
}

// DeliverFunc 把转发来的事件投递给本实例订阅者
type DeliverFunc func(roomID string, payload []byte)

// relayBackend 事件转发后端
type relayBackend interface {
	// Publish 发布一条序列化后的事件信封，roomID用于分区保序
	Publish(roomID string, data []byte) error
	// StartConsumer 启动消费循环，收到的每条信封交给handle
	StartConsumer(handle func(data []byte)) error
	// Close 关闭后端连接
	Close()
}

// EventRelay 跨实例事件中继
// 单实例部署时不需要：事件在本地hub内广播即可。多实例部署时
// 参与者可能订阅在另一个实例上，提交的事件经MQ转发到所有实例，
// 各实例跳过自己发出的消息后原样投递给本地订阅者。
type EventRelay struct {
	instanceID string
	backend    relayBackend
	deliver    DeliverFunc

	// 已处理消息ID集合，消费侧幂等
	seenMu sync.Mutex
	seen   map[string]time.Time
}

// 已处理消息ID的保留时间
const seenRetention = 10 * time.Minute

// NewEventRelay 按MQ_BACKEND选择后端并启动消费者
// 取值rocketmq/redis/disabled；空值自动探测：先RocketMQ后Redis，
// 都不可用时返回nil中继，调用方按单实例模式继续运行
func NewEventRelay(deliver DeliverFunc) (*EventRelay, error) {
	backendName := os.Getenv("MQ_BACKEND")

	var backend relayBackend
	var err error

	switch backendName {
	case "disabled":
		log.Println("事件中继已禁用")
		return nil, nil
	case "rocketmq":
		backend, err = newRocketMQBackend()
		if err != nil {
			return nil, fmt.Errorf("初始化RocketMQ后端失败: %w", err)
		}
	case "redis":
		backend, err = newRedisBackend()
		if err != nil {
			return nil, fmt.Errorf("初始化Redis MQ后端失败: %w", err)
		}
	case "":
		// 自动探测
		backend, err = newRocketMQBackend()
		if err != nil {
			log.Printf("RocketMQ不可用: %v，尝试Redis MQ", err)
			backend, err = newRedisBackend()
			if err != nil {
				log.Printf("Redis MQ不可用: %v，事件中继关闭", err)
				return nil, nil
			}
		}
	default:
		return nil, fmt.Errorf("未知的MQ后端: %s", backendName)
	}

	relay := &EventRelay{
		instanceID: uuid.NewString(),
		backend:    backend,
		deliver:    deliver,
		seen:       make(map[string]time.Time),
	}

	if err := backend.StartConsumer(relay.consume); err != nil {
		backend.Close()
		return nil, fmt.Errorf("启动事件消费者失败: %w", err)
	}

	log.Printf("事件中继已启动: instance=%s", relay.instanceID)
	return relay, nil
}

// RelayEvent 把本实例提交的事件转发到其他实例
func (r *EventRelay) RelayEvent(roomID string, payload []byte) error {
	msg := RoomEventMessage{
		MessageID:  uuid.NewString(),
		InstanceID: r.instanceID,
		RoomID:     roomID,
		Payload:    payload,
		Timestamp:  time.Now().Unix(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化事件信封失败: %w", err)
	}

	return r.backend.Publish(roomID, data)
}

// consume 处理一条转发来的信封
func (r *EventRelay) consume(data []byte) {
	var msg RoomEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("解析事件信封失败: %v", err)
		return
	}

	// 跳过本实例发出的消息，本地hub已经广播过
	if msg.InstanceID == r.instanceID {
		return
	}

	if r.alreadySeen(msg.MessageID) {
		log.Printf("重复事件消息，跳过: %s", msg.MessageID)
		return
	}

	r.deliver(msg.RoomID, msg.Payload)
}

// alreadySeen 消费侧幂等检查，顺带清理过期记录
func (r *EventRelay) alreadySeen(messageID string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()

	now := time.Now()
	for id, seen := range r.seen {
		if now.Sub(seen) > seenRetention {
			delete(r.seen, id)
		}
	}

	if _, ok := r.seen[messageID]; ok {
		return true
	}
	r.seen[messageID] = now
	return false
}

// Close 关闭中继
func (r *EventRelay) Close() {
	if r == nil || r.backend == nil {
		return
	}
	r.backend.Close()
	log.Println("事件中继已关闭")
}
