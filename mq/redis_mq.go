package mq

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis Pub/Sub频道名称
const roomEventChannel = "room_events"

// redisBackend 基于Redis Pub/Sub的事件转发后端
// 事件需要广播给所有实例而不是分摊给某一个消费者，
// Pub/Sub天然是广播语义；投递不持久化，实例短暂掉线期间
// 错过的事件由客户端重连后的状态查询补齐
type redisBackend struct {
	client   *redis.Client
	ctx      context.Context
	cancel   context.CancelFunc
	pubsub   *redis.PubSub
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// newRedisBackend 创建Redis连接并测试可用性
func newRedisBackend() (*redisBackend, error) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")

	log.Printf("初始化Redis MQ, 地址: %s", redisAddr)

	client := redis.NewClient(&redis.Options{
		Addr:        redisAddr,
		Password:    redisPassword,
		DB:          0,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 5 * time.Second,
		PoolSize:    20,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	log.Println("Redis MQ初始化成功")
	return &redisBackend{client: client, ctx: ctx, cancel: cancel}, nil
}

// Publish 发布事件信封到广播频道
// Pub/Sub是单频道FIFO，同连接发布顺序即所有订阅者的接收顺序
func (b *redisBackend) Publish(roomID string, data []byte) error {
	if err := b.client.Publish(b.ctx, roomEventChannel, data).Err(); err != nil {
		return fmt.Errorf("发布事件消息失败: %w", err)
	}
	return nil
}

// StartConsumer 启动订阅循环
func (b *redisBackend) StartConsumer(handle func(data []byte)) error {
	b.pubsub = b.client.Subscribe(b.ctx, roomEventChannel)

	// 确认订阅建立成功
	if _, err := b.pubsub.Receive(b.ctx); err != nil {
		return fmt.Errorf("订阅事件频道失败: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ch := b.pubsub.Channel()
		for {
			select {
			case <-b.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle([]byte(msg.Payload))
			}
		}
	}()

	log.Println("Redis事件消费者启动成功")
	return nil
}

// Close 停止订阅并关闭连接
func (b *redisBackend) Close() {
	b.stopOnce.Do(func() {
		b.cancel()
		if b.pubsub != nil {
			b.pubsub.Close()
		}
		b.wg.Wait()
		b.client.Close()
		log.Println("Redis MQ已关闭")
	})
}
