package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// 全局Redis客户端
var (
	redisClient *redis.Client
	redisCtx    = context.Background()
	initOnce    sync.Once
	initialized bool
)

var (
	// 房间状态缓存过期时间
	statusExpiration = 30 * time.Second
	// 缓存时间抖动系数，防止同时失效
	jitterFactor = 0.2
)

// InitRedis 初始化Redis连接
// 连接失败不阻止服务启动：自动降级到进程内模拟模式，
// 缓存、布隆过滤器和分布式锁都按单实例语义继续工作
func InitRedis() error {
	var initErr error

	initOnce.Do(func() {
		// 检查是否强制使用模拟模式
		if os.Getenv("REDIS_MOCK") == "true" {
			log.Println("强制使用Redis模拟模式")
			mockMode = true
			initialized = true
			return
		}

		redisAddr := os.Getenv("REDIS_ADDR")
		redisPassword := os.Getenv("REDIS_PASSWORD")
		redisDb := 0

		if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				redisDb = db
			}
		}

		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}

		log.Printf("初始化Redis连接, 地址: %s", redisAddr)

		options := &redis.Options{
			Addr:        redisAddr,
			Password:    redisPassword,
			DB:          redisDb,
			DialTimeout: 3 * time.Second,
			ReadTimeout: 3 * time.Second,
			PoolSize:    10,
		}

		client := redis.NewClient(options)

		if _, err := client.Ping(redisCtx).Result(); err != nil {
			log.Printf("Redis连接失败: %v，将使用模拟模式", err)
			mockMode = true
			initialized = true
			return
		}

		redisClient = client
		initialized = true
		mockMode = false
		log.Println("Redis连接初始化成功")
	})

	return initErr
}

// GetClient 获取Redis客户端实例
func GetClient() (*redis.Client, error) {
	if !initialized {
		return nil, fmt.Errorf("Redis客户端未初始化")
	}
	if mockMode {
		return nil, ErrRedisNotAvailable
	}
	return redisClient, nil
}

// IsMockMode 当前是否处于模拟模式
func IsMockMode() bool {
	return mockMode
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	if initialized && !mockMode && redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("关闭Redis连接错误: %v", err)
		}
		log.Println("Redis连接已关闭")
	}
}
