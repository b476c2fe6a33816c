package models

import "time"

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	OrganizerName string `json:"organizer_name" binding:"required,max=100"`
	CustomRoomID  string `json:"custom_room_id"`
}

// JoinRoomRequest 加入房间请求
type JoinRoomRequest struct {
	RoomID          string `json:"room_id" binding:"required"`
	ParticipantName string `json:"participant_name" binding:"required,max=50"`
}

// JoinRoomResponse 加入房间响应，token只返回给本人
type JoinRoomResponse struct {
	ParticipantID    string         `json:"participant_id"`
	ParticipantToken string         `json:"participant_token"`
	ParticipantName  string         `json:"participant_name"`
	RoomID           string         `json:"room_id"`
	ApprovalStatus   ApprovalStatus `json:"approval_status"`
	OrganizerName    string         `json:"organizer_name"`
}

// CreatePollRequest 创建投票请求
type CreatePollRequest struct {
	RoomID       string   `json:"room_id" binding:"required"`
	Question     string   `json:"question" binding:"required,max=500"`
	Options      []string `json:"options" binding:"required,min=2,max=20,dive,required,max=200"`
	TimerMinutes int      `json:"timer_minutes"`
}

// PollActionRequest 开始/结束投票请求，操作按房间串行
type PollActionRequest struct {
	RoomID string `json:"room_id" binding:"required"`
}

// ParticipantDecisionRequest 审批参与者请求
type ParticipantDecisionRequest struct {
	RoomID string `json:"room_id" binding:"required"`
}

// VoteSubmitRequest 提交投票请求
type VoteSubmitRequest struct {
	ParticipantToken string `json:"participant_token" binding:"required"`
	SelectedOption   string `json:"selected_option" binding:"required"`
}

// RoomStatus 房间状态快照
type RoomStatus struct {
	RoomID           string        `json:"room_id"`
	OrganizerName    string        `json:"organizer_name"`
	ParticipantCount int64         `json:"participant_count"`
	ApprovedCount    int64         `json:"approved_count"`
	PendingCount     int64         `json:"pending_count"`
	TotalPolls       int64         `json:"total_polls"`
	ActivePolls      []PollSummary `json:"active_polls"`
	ActivePollCount  int           `json:"active_poll_count"`
}

// PollSummary 投票摘要（状态查询和列表用）
type PollSummary struct {
	PollID       string           `json:"poll_id"`
	Question     string           `json:"question"`
	Options      []string         `json:"options"`
	Status       PollStatus       `json:"status"`
	TimerMinutes int              `json:"timer_minutes,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	VoteCounts   map[string]int64 `json:"vote_counts"`
	TotalVotes   int64            `json:"total_votes"`
}

// ParticipantView 对外的参与者信息，不含会话token
type ParticipantView struct {
	ParticipantID   string         `json:"participant_id"`
	ParticipantName string         `json:"participant_name"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	JoinedAt        time.Time      `json:"joined_at"`
}

// Report 终期报告，生成后房间数据即被清除
type Report struct {
	RoomID        string              `json:"room_id"`
	OrganizerName string              `json:"organizer_name"`
	CreatedAt     time.Time           `json:"created_at"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Participants  []ParticipantView   `json:"participants"`
	Polls         []ReportPollResult  `json:"polls"`
	Summary       ReportParticipation `json:"summary"`
}

// ReportPollResult 单个投票的最终结果
type ReportPollResult struct {
	PollID      string             `json:"poll_id"`
	Question    string             `json:"question"`
	Status      PollStatus         `json:"status"`
	OptionStats []ReportOptionStat `json:"option_stats"`
	TotalVotes  int64              `json:"total_votes"`
}

// ReportOptionStat 选项票数及百分比
type ReportOptionStat struct {
	Label      string  `json:"label"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// ReportParticipation 参与者统计
type ReportParticipation struct {
	TotalParticipants int `json:"total_participants"`
	ApprovedCount     int `json:"approved_count"`
	PendingCount      int `json:"pending_count"`
	DeniedCount       int `json:"denied_count"`
}
