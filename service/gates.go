package service

import "sync"

// roomGates 每房间一把串行锁
// 同一房间的变更操作排队执行，不同房间互不阻塞；
// 房间被清除后对应的锁随之退役
type roomGates struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newRoomGates() *roomGates {
	return &roomGates{locks: make(map[string]*sync.Mutex)}
}

// lock 获取房间锁并返回解锁函数
// 拿到锁后复核注册表：等待期间房间可能已被清除并重建（同码新房间
// 会注册新锁），持有退役的锁不构成串行权，换当前注册的锁重试
func (g *roomGates) lock(roomID string) func() {
	for {
		g.mu.RLock()
		m, ok := g.locks[roomID]
		g.mu.RUnlock()

		if !ok {
			g.mu.Lock()
			m, ok = g.locks[roomID]
			if !ok {
				m = &sync.Mutex{}
				g.locks[roomID] = m
			}
			g.mu.Unlock()
		}

		m.Lock()

		g.mu.RLock()
		current := g.locks[roomID]
		g.mu.RUnlock()
		if current == m {
			return m.Unlock
		}

		m.Unlock()
	}
}

// remove 移除房间锁，调用方须持有该锁且保证不再以旧房间身份进入
func (g *roomGates) remove(roomID string) {
	g.mu.Lock()
	delete(g.locks, roomID)
	g.mu.Unlock()
}
