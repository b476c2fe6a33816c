package cache

import "errors"

// ErrRedisNotAvailable 模拟模式下请求真实客户端时返回
// 调用方据此走进程内降级路径
var ErrRedisNotAvailable = errors.New("Redis不可用")
