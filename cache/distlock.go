package cache

import (
	"log"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

var (
	// rs 全局的Redsync实例
	rs     *redsync.Redsync
	rsOnce sync.Once
)

// 房间码预占锁的持有时间
const codeLockExpiry = 5 * time.Second

// initDistLock 初始化分布式锁，Redis不可用时rs保持nil
func initDistLock() {
	rsOnce.Do(func() {
		client, err := GetClient()
		if err != nil {
			log.Printf("分布式锁不可用，降级为直接执行: %v", err)
			return
		}

		pool := goredis.NewPool(client)
		rs = redsync.New(pool)
		log.Println("分布式锁初始化成功")
	})
}

// WithRoomCodeLock 在自定义房间码的预占锁内执行action
// 多实例部署时收窄同码并发创建的竞争窗口；存储层唯一索引仍是最终仲裁，
// 因此锁不可用或获取失败时直接执行action是安全的
func WithRoomCodeLock(code string, action func() error) error {
	initDistLock()

	if rs == nil {
		return action()
	}

	mutex := rs.NewMutex("lock:room_code:"+code,
		redsync.WithExpiry(codeLockExpiry),
		redsync.WithTries(5),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)

	if err := mutex.Lock(); err != nil {
		log.Printf("获取房间码锁失败，直接执行: code=%s err=%v", code, err)
		return action()
	}
	defer func() {
		if _, err := mutex.Unlock(); err != nil {
			log.Printf("释放房间码锁失败: code=%s err=%v", code, err)
		}
	}()

	return action()
}
