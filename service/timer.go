package service

import (
	"log"
	"sync"
	"time"
)

// ExpiryFunc 定时器到期回调，经由Coordinator的串行路径结束投票
type ExpiryFunc func(roomID, pollID string)

// PollTimers 每个Active定时投票一个一次性到期定时器
// 到期回调与手动结束走同一个串行入口，谁先到达谁生效，另一方成为no-op
type PollTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer         // pollID -> 定时器
	rooms  map[string]map[string]struct{} // roomID -> 该房间的pollID集合
}

// NewPollTimers 创建定时器调度器
func NewPollTimers() *PollTimers {
	return &PollTimers{
		timers: make(map[string]*time.Timer),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Schedule 注册到期回调，同一投票重复注册会先取消旧定时器
func (t *PollTimers) Schedule(roomID, pollID string, fireAt time.Time, fire ExpiryFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[pollID]; ok {
		old.Stop()
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	t.timers[pollID] = time.AfterFunc(delay, func() {
		// 先注销自身，再回调；回调内的StopPoll是幂等的，
		// 与手动结束的竞争由房间串行门裁决
		t.remove(roomID, pollID)
		fire(roomID, pollID)
	})

	if _, ok := t.rooms[roomID]; !ok {
		t.rooms[roomID] = make(map[string]struct{})
	}
	t.rooms[roomID][pollID] = struct{}{}

	log.Printf("已注册投票定时器: room=%s poll=%s fire_at=%s", roomID, pollID, fireAt.Format(time.RFC3339))
}

// Cancel 取消投票的定时器
// 回调已开始执行时取消是无害的no-op，由StopPoll的幂等性兜底
func (t *PollTimers) Cancel(roomID, pollID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[pollID]; ok {
		timer.Stop()
	}
	t.removeLocked(roomID, pollID)
}

// CancelRoom 取消房间全部定时器（清除房间时调用）
func (t *PollTimers) CancelRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pollID := range t.rooms[roomID] {
		if timer, ok := t.timers[pollID]; ok {
			timer.Stop()
			delete(t.timers, pollID)
		}
	}
	delete(t.rooms, roomID)
}

// Pending 返回当前待触发的定时器数量
func (t *PollTimers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *PollTimers) remove(roomID, pollID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(roomID, pollID)
}

func (t *PollTimers) removeLocked(roomID, pollID string) {
	delete(t.timers, pollID)
	if polls, ok := t.rooms[roomID]; ok {
		delete(polls, pollID)
		if len(polls) == 0 {
			delete(t.rooms, roomID)
		}
	}
}
