package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/KiiTuNp/SUPERvote/models"

	"github.com/redis/go-redis/v9"
)

// 房间状态缓存
// 状态查询是全场最热的读路径，短TTL缓存即可挡掉大部分数据库查询；
// 任何房间变更都会主动失效对应的键，过期抖动防止集中失效

func statusKey(roomID string) string {
	return fmt.Sprintf("room:%s:status", roomID)
}

// GetRoomStatus 读取房间状态缓存，未命中或不可用时返回nil
func GetRoomStatus(roomID string) *models.RoomStatus {
	if !initialized {
		return nil
	}

	key := statusKey(roomID)
	var data string

	if mockMode {
		val, ok := mockGet(key)
		if !ok {
			return nil
		}
		data = val
	} else {
		val, err := redisClient.Get(redisCtx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			log.Printf("读取状态缓存失败: room=%s err=%v", roomID, err)
			return nil
		}
		data = val
	}

	var status models.RoomStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		log.Printf("解析状态缓存失败: room=%s err=%v", roomID, err)
		DeleteRoomStatus(roomID)
		return nil
	}
	return &status
}

// SetRoomStatus 写入房间状态缓存，尽力而为
func SetRoomStatus(roomID string, status *models.RoomStatus) {
	if !initialized || status == nil {
		return
	}

	data, err := json.Marshal(status)
	if err != nil {
		return
	}

	// 抖动过期时间，防止缓存雪崩
	ttl := time.Duration(float64(statusExpiration) * (1 + jitterFactor*(0.5-rand.Float64())))

	if mockMode {
		mockSet(statusKey(roomID), string(data), ttl)
		return
	}

	if err := redisClient.Set(redisCtx, statusKey(roomID), string(data), ttl).Err(); err != nil {
		log.Printf("写入状态缓存失败: room=%s err=%v", roomID, err)
	}
}

// DeleteRoomStatus 失效房间状态缓存
func DeleteRoomStatus(roomID string) {
	if !initialized {
		return
	}

	if mockMode {
		mockDel(statusKey(roomID))
		return
	}

	if err := redisClient.Del(redisCtx, statusKey(roomID)).Err(); err != nil {
		log.Printf("删除状态缓存失败: room=%s err=%v", roomID, err)
	}
}
