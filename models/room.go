package models

import (
	"time"
)

// 参与者审批状态
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"  // 待审批
	ApprovalApproved ApprovalStatus = "approved" // 已批准
	ApprovalDenied   ApprovalStatus = "denied"   // 已拒绝
)

// 投票状态机：draft -> active -> closed，不可逆
type PollStatus string

const (
	PollStatusDraft  PollStatus = "draft"  // 草稿，尚未开始
	PollStatusActive PollStatus = "active" // 进行中，可投票
	PollStatusClosed PollStatus = "closed" // 已结束，终态
)

// 投票结束原因
type StopReason string

const (
	StopReasonManual StopReason = "manual" // 组织者手动结束
	StopReasonTimer  StopReason = "timer"  // 定时器到期自动结束
)

// 房间码规则：3-10位大写字母数字
const (
	RoomCodeMinLen = 3
	RoomCodeMaxLen = 10

	// 输入长度上限
	MaxParticipantNameLen = 50
	MaxQuestionLen        = 500
	MaxOptionLen          = 200
	MaxPollOptions        = 20

	// 定时器范围（分钟）
	MinTimerMinutes = 1
	MaxTimerMinutes = 60
)

// Room 会议房间，整个投票会话的隔离单元
type Room struct {
	Code          string    `gorm:"primaryKey;size:10" json:"room_id"`
	OrganizerName string    `gorm:"not null;size:100" json:"organizer_name"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `gorm:"index" json:"last_activity"`
	IsActive      bool      `gorm:"default:true;index" json:"is_active"`
}

// Participant 房间参与者
// SessionToken 是参与者的会话凭证，仅返回给本人，不对其他参与者暴露
type Participant struct {
	ID           string         `gorm:"primaryKey;size:36" json:"participant_id"`
	RoomCode     string         `gorm:"not null;size:10;index;uniqueIndex:idx_room_name" json:"room_id"`
	Name         string         `gorm:"not null;size:50" json:"participant_name"`
	NameLower    string         `gorm:"not null;size:50;uniqueIndex:idx_room_name" json:"-"`
	SessionToken string         `gorm:"not null;size:36;uniqueIndex" json:"-"`
	Status       ApprovalStatus `gorm:"not null;default:'pending';index" json:"approval_status"`
	JoinedAt     time.Time      `json:"joined_at"`
}

// Terminal 判断审批状态是否已是终态
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalDenied
}

// Poll 一个问题及其选项，只在Active状态下可投票
type Poll struct {
	ID           string       `gorm:"primaryKey;size:36" json:"poll_id"`
	RoomCode     string       `gorm:"not null;size:10;index" json:"room_id"`
	Question     string       `gorm:"not null;size:500" json:"question"`
	Status       PollStatus   `gorm:"not null;default:'draft';index" json:"status"`
	TimerMinutes int          `gorm:"default:0" json:"timer_minutes,omitempty"` // 0表示无定时器
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	ExpiresAt    *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	ClosedReason StopReason   `gorm:"size:10" json:"closed_reason,omitempty"`
	Options      []PollOption `gorm:"foreignKey:PollID" json:"options"`
}

// PollOption 投票选项及其计票
type PollOption struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	PollID   string `gorm:"not null;size:36;index;uniqueIndex:idx_poll_option" json:"-"`
	Position int    `gorm:"not null" json:"-"` // 创建时的顺序
	Label    string `gorm:"not null;size:200;uniqueIndex:idx_poll_option" json:"label"`
	Votes    int64  `gorm:"not null;default:0" json:"votes"`
}

// PollVoter 已投票参与者集合
// 只记录"该参与者投过票"，不记录选了哪个选项——匿名性是硬性约束
type PollVoter struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	PollID        string    `gorm:"not null;size:36;uniqueIndex:idx_poll_voter" json:"poll_id"`
	ParticipantID string    `gorm:"not null;size:36;uniqueIndex:idx_poll_voter" json:"participant_id"`
	VotedAt       time.Time `json:"voted_at"`
}

// HasOption 检查选项是否属于该投票
func (p *Poll) HasOption(label string) bool {
	for _, opt := range p.Options {
		if opt.Label == label {
			return true
		}
	}
	return false
}

// TotalVotes 当前总票数
func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, opt := range p.Options {
		total += opt.Votes
	}
	return total
}

// VoteCounts 返回选项到票数的映射（按创建顺序遍历Options可得有序结果）
func (p *Poll) VoteCounts() map[string]int64 {
	counts := make(map[string]int64, len(p.Options))
	for _, opt := range p.Options {
		counts[opt.Label] = opt.Votes
	}
	return counts
}
