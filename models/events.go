package models

import "encoding/json"

// 事件类型，与前端协议保持一致
const (
	EventParticipantUpdate   = "participant_update"   // 参与者数量变化
	EventParticipantApproved = "participant_approved" // 参与者被批准
	EventParticipantDenied   = "participant_denied"   // 参与者被拒绝
	EventNewPoll             = "new_poll"             // 新投票创建（草稿）
	EventPollStarted         = "poll_started"         // 投票开始
	EventPollStopped         = "poll_stopped"         // 投票手动结束
	EventPollAutoStopped     = "poll_auto_stopped"    // 投票定时结束
	EventVoteUpdate          = "vote_update"          // 计票更新（携带完整计票）
	EventRoomClosed          = "room_closed"          // 房间已生成报告并清除
)

// Event 房间内广播的事件消息
// 同一房间的事件按变更提交顺序投递给每个订阅者
type Event struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"room_id"`
	Payload interface{} `json:"payload,omitempty"`
}

// ToJSON 将事件转换为JSON字节数组
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParticipantUpdatePayload 参与者数量变化
type ParticipantUpdatePayload struct {
	ParticipantCount int64 `json:"participant_count"`
	PendingCount     int64 `json:"pending_count"`
}

// ParticipantDecisionPayload 审批结果，参与者据此识别自己
// 事件是房间级广播，只携带参与者ID，绝不携带会话token：
// token是以参与者身份投票的凭证，仅在加入响应中返回给本人
type ParticipantDecisionPayload struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
}

// PollStartedPayload 投票开始
type PollStartedPayload struct {
	PollID       string   `json:"poll_id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	TimerMinutes int      `json:"timer_minutes,omitempty"`
	ExpiresAt    string   `json:"expires_at,omitempty"`
}

// PollStoppedPayload 投票结束（手动或定时）
type PollStoppedPayload struct {
	PollID  string `json:"poll_id"`
	Message string `json:"message,omitempty"`
}

// VoteUpdatePayload 完整的当前计票，不包含个人选择
type VoteUpdatePayload struct {
	PollID     string           `json:"poll_id"`
	VoteCounts map[string]int64 `json:"vote_counts"`
	TotalVotes int64            `json:"total_votes"`
}

// NewPollPayload 新建草稿投票
type NewPollPayload struct {
	PollID   string   `json:"poll_id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}
