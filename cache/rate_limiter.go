package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断请求是否允许通过
	Allow(ctx context.Context) (bool, error)
}

// TokenBucketRateLimiter Redis令牌桶限流器
// 多实例共享同一个桶，限流对整个集群生效
type TokenBucketRateLimiter struct {
	key   string
	rate  int // 每秒生成的令牌数量
	burst int // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(key string, ratePerSec, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		key:   fmt.Sprintf("rate_limit:%s", key),
		rate:  ratePerSec,
		burst: burst,
	}
}

// 令牌桶算法的Lua脚本，取令牌和补令牌在Redis侧原子完成
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local period = 1

local tokens_key = key .. ":tokens"
local timestamp_key = key .. ":ts"

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or 0)

local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1

redis.call("setex", tokens_key, period * 2, new_tokens)
redis.call("setex", timestamp_key, period * 2, now)

return 1
`

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context) (bool, error) {
	client, err := GetClient()
	if err != nil {
		return false, err
	}

	now := time.Now().Unix()
	result, err := client.Eval(ctx, tokenBucketScript, []string{l.key}, now, l.rate, l.burst).Result()
	if err != nil {
		return false, err
	}

	return result.(int64) == 1, nil
}

// LocalRateLimiter 进程内令牌桶，Redis不可用时的降级实现
type LocalRateLimiter struct {
	limiter *rate.Limiter
}

// NewLocalRateLimiter 创建进程内令牌桶限流器
func NewLocalRateLimiter(ratePerSec, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Allow 判断请求是否允许通过
func (l *LocalRateLimiter) Allow(ctx context.Context) (bool, error) {
	return l.limiter.Allow(), nil
}

// ClientRateLimiter 按客户端区分的限流器：全局桶+每客户端桶
// Redis可用时用共享令牌桶，否则退化为进程内x/time限流
type ClientRateLimiter struct {
	mu            sync.Mutex
	keyPrefix     string
	rate          int
	burst         int
	useRedis      bool
	globalLimiter RateLimiter
	clients       map[string]RateLimiter
}

// NewClientRateLimiter 创建客户端级别限流器
func NewClientRateLimiter(keyPrefix string, globalRate, globalBurst, clientRate, clientBurst int) *ClientRateLimiter {
	useRedis := initialized && !mockMode

	var global RateLimiter
	if useRedis {
		global = NewTokenBucketRateLimiter(keyPrefix+":global", globalRate, globalBurst)
	} else {
		global = NewLocalRateLimiter(globalRate, globalBurst)
		log.Println("限流器使用进程内模式")
	}

	return &ClientRateLimiter{
		keyPrefix:     keyPrefix,
		rate:          clientRate,
		burst:         clientBurst,
		useRedis:      useRedis,
		globalLimiter: global,
		clients:       make(map[string]RateLimiter),
	}
}

// Allow 判断某客户端的请求是否允许通过，先过全局桶再过客户端桶
// Redis临时出错时放行，限流是保护手段而不是正确性约束
func (l *ClientRateLimiter) Allow(ctx context.Context, clientID string) bool {
	allowed, err := l.globalLimiter.Allow(ctx)
	if err != nil {
		log.Printf("全局限流检查失败，放行: %v", err)
		return true
	}
	if !allowed {
		return false
	}

	allowed, err = l.clientLimiter(clientID).Allow(ctx)
	if err != nil {
		log.Printf("客户端限流检查失败，放行: client=%s err=%v", clientID, err)
		return true
	}
	return allowed
}

func (l *ClientRateLimiter) clientLimiter(clientID string) RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.clients[clientID]; ok {
		return limiter
	}

	var limiter RateLimiter
	if l.useRedis {
		limiter = NewTokenBucketRateLimiter(l.keyPrefix+":client:"+clientID, l.rate, l.burst)
	} else {
		limiter = NewLocalRateLimiter(l.rate, l.burst)
	}
	l.clients[clientID] = limiter
	return limiter
}
