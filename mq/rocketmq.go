package mq

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// 主题常量
const (
	TopicRoomEvents = "room_events"
)

// rocketMQBackend 基于RocketMQ的事件转发后端
// 用roomID做分区键，同一房间的事件进入同一队列，跨实例仍保序
type rocketMQBackend struct {
	producer rocketmq.Producer
	consumer rocketmq.PushConsumer
}

// newRocketMQBackend 创建并启动RocketMQ生产者
func newRocketMQBackend() (*rocketMQBackend, error) {
	nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
	if nameServerAddr == "" {
		nameServerAddr = "localhost:9876"
	}

	log.Printf("初始化RocketMQ连接, 地址: %s", nameServerAddr)

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServerAddr}),
		producer.WithGroupName("room_event_producer"),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("创建RocketMQ生产者失败: %w", err)
	}

	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("启动RocketMQ生产者失败: %w", err)
	}

	log.Println("RocketMQ生产者初始化成功")
	return &rocketMQBackend{producer: p}, nil
}

// Publish 发布事件信封，roomID作为分区键保证同房间顺序
func (b *rocketMQBackend) Publish(roomID string, data []byte) error {
	message := primitive.NewMessage(TopicRoomEvents, data)
	message.WithTag("room_event")
	message.WithShardingKey(roomID)

	res, err := b.producer.SendSync(context.Background(), message)
	if err != nil {
		return fmt.Errorf("发送事件消息失败: %w", err)
	}

	log.Printf("事件消息已发送: MsgID=%s 队列=%s", res.MsgID, res.MessageQueue.String())
	return nil
}

// StartConsumer 启动顺序消费者
// 广播模式：每个实例都收到全部事件，各自投递给本地订阅者
func (b *rocketMQBackend) StartConsumer(handle func(data []byte)) error {
	nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
	if nameServerAddr == "" {
		nameServerAddr = "localhost:9876"
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{nameServerAddr}),
		consumer.WithGroupName("room_event_consumer"),
		consumer.WithConsumerModel(consumer.BroadCasting),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
		consumer.WithConsumerOrder(true),
	)
	if err != nil {
		return fmt.Errorf("创建消息消费者失败: %w", err)
	}

	err = c.Subscribe(TopicRoomEvents, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: "room_event",
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, msg := range msgs {
			handle(msg.Body)
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("订阅主题失败: %w", err)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}

	b.consumer = c
	log.Println("RocketMQ事件消费者启动成功")
	return nil
}

// Close 关闭生产者和消费者
func (b *rocketMQBackend) Close() {
	if b.consumer != nil {
		if err := b.consumer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ消费者失败: %v", err)
		}
	}
	if b.producer != nil {
		if err := b.producer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ生产者失败: %v", err)
		} else {
			log.Println("RocketMQ生产者已关闭")
		}
	}
}
