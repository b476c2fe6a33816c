package cache

import (
	"sync"
	"time"
)

// 模拟模式相关变量
// Redis不可用时整个包退化为进程内实现，语义对调用方透明
var (
	mockMode  bool
	mockMutex sync.Mutex
	mockData  = make(map[string]mockEntry)
	mockBloom = make(map[string]bool)
)

type mockEntry struct {
	value     string
	expiresAt time.Time // 零值表示不过期
}

func mockGet(key string) (string, bool) {
	mockMutex.Lock()
	defer mockMutex.Unlock()

	entry, ok := mockData[key]
	if !ok {
		return "", false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(mockData, key)
		return "", false
	}
	return entry.value, true
}

func mockSet(key, value string, ttl time.Duration) {
	mockMutex.Lock()
	defer mockMutex.Unlock()

	entry := mockEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	mockData[key] = entry
}

func mockDel(key string) {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	delete(mockData, key)
}

// ResetMock 清空模拟存储（测试用）
func ResetMock() {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	mockData = make(map[string]mockEntry)
	mockBloom = make(map[string]bool)
}

// InitMockForTest 强制进入模拟模式（测试用）
func InitMockForTest() {
	mockMode = true
	initialized = true
	ResetMock()
}
