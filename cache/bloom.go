package cache

import (
	"context"
	"hash/fnv"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// 房间码布隆过滤器
// 加入房间是未鉴权入口，恶意或手误的假房间码会直接打到数据库；
// 布隆过滤器在存储层之前挡掉确定不存在的码。误判方向是安全的：
// "可能存在"会继续走数据库查询，"确定不存在"绝不误伤真实房间。

const (
	bloomKey       = "bloom:room_codes"
	bloomHashCount = 5
	bloomBits      = 1 << 24
	bloomTTL       = 48 * time.Hour
)

// bloomHash 计算第seed个哈希位
func bloomHash(item string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(item))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(bloomBits))
}

// AddRoomCode 把房间码加入布隆过滤器，尽力而为
func AddRoomCode(code string) {
	if !initialized {
		return
	}

	if mockMode {
		mockMutex.Lock()
		mockBloom[code] = true
		mockMutex.Unlock()
		return
	}

	pipe := redisClient.Pipeline()
	for i := 0; i < bloomHashCount; i++ {
		pipe.SetBit(redisCtx, bloomKey, bloomHash(code, i), 1)
	}
	pipe.Expire(redisCtx, bloomKey, bloomTTL)

	if _, err := pipe.Exec(redisCtx); err != nil {
		log.Printf("布隆过滤器写入失败: code=%s err=%v", code, err)
	}
}

// MightContainRoom 检查房间码是否可能存在
// 过滤器不可用或任何错误都按"可能存在"放行，绝不误杀真实房间
func MightContainRoom(code string) bool {
	if !initialized {
		return true
	}

	if mockMode {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		// 模拟模式下过滤器为空视为未预热，放行
		if len(mockBloom) == 0 {
			return true
		}
		return mockBloom[code]
	}

	// 过滤器键不存在说明尚未预热，放行
	exists, err := redisClient.Exists(redisCtx, bloomKey).Result()
	if err != nil || exists == 0 {
		return true
	}

	pipe := redisClient.Pipeline()
	cmds := make([]*redis.IntCmd, 0, bloomHashCount)
	for i := 0; i < bloomHashCount; i++ {
		cmds = append(cmds, pipe.GetBit(redisCtx, bloomKey, bloomHash(code, i)))
	}

	if _, err := pipe.Exec(redisCtx); err != nil {
		log.Printf("布隆过滤器查询失败: code=%s err=%v", code, err)
		return true
	}

	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false
		}
	}
	return true
}

// WarmRoomCodes 用现存活跃房间码预热过滤器（启动时调用）
func WarmRoomCodes(ctx context.Context, codes []string) {
	if !initialized || len(codes) == 0 {
		return
	}
	for _, code := range codes {
		select {
		case <-ctx.Done():
			return
		default:
		}
		AddRoomCode(code)
	}
	log.Printf("布隆过滤器预热完成: %d个房间码", len(codes))
}
