package service

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/KiiTuNp/SUPERvote/cache"
	"github.com/KiiTuNp/SUPERvote/models"
	"github.com/KiiTuNp/SUPERvote/repository"
	"github.com/KiiTuNp/SUPERvote/websocket"

	"github.com/google/uuid"
)

// 房间码规则：3-10位大写字母数字
var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

// 随机房间码生成的最大尝试次数
const maxCodeAttempts = 5

// EventRelay 跨实例事件转发接口，由mq适配器实现；为nil时仅本地广播
type EventRelay interface {
	RelayEvent(roomID string, payload []byte) error
}

// RoomService 房间协调器
// 每个房间的全部变更操作经过该房间的串行门，任一时刻至多一个变更在执行；
// 不同房间完全并行。定时器回调与手动操作共用同一入口。
type RoomService struct {
	repo   repository.RoomRepository
	hub    *websocket.Hub
	timers *PollTimers
	relay  EventRelay

	gates *roomGates
}

// NewRoomService 创建房间协调器
func NewRoomService(repo repository.RoomRepository, hub *websocket.Hub) *RoomService {
	return &RoomService{
		repo:   repo,
		hub:    hub,
		timers: NewPollTimers(),
		gates:  newRoomGates(),
	}
}

// SetEventRelay 挂接跨实例事件转发（可选）
func (s *RoomService) SetEventRelay(relay EventRelay) {
	s.relay = relay
}

// Timers 返回定时器调度器（路由层的兜底扫描需要）
func (s *RoomService) Timers() *PollTimers {
	return s.timers
}

// CreateRoom 创建房间
// 自定义房间码校验3-10位字母数字并转大写；房间码在活跃房间中全局唯一，
// 由存储层唯一索引仲裁，两端并发创建同码房间只有一个成功
func (s *RoomService) CreateRoom(ctx context.Context, organizerName, customCode string) (*models.Room, error) {
	organizerName = strings.TrimSpace(organizerName)
	if organizerName == "" {
		return nil, ErrInvalidName
	}

	if customCode = strings.ToUpper(strings.TrimSpace(customCode)); customCode != "" {
		if !roomCodePattern.MatchString(customCode) {
			return nil, ErrInvalidRoomCode
		}

		var room *models.Room
		// 多实例部署时用分布式锁收窄同码竞争窗口；
		// 唯一索引仍然是最终仲裁，锁不可用时直接走插入
		err := cache.WithRoomCodeLock(customCode, func() error {
			var lockErr error
			room, lockErr = s.insertRoom(ctx, organizerName, customCode)
			return lockErr
		})
		if err != nil {
			return nil, err
		}
		return room, nil
	}

	// 随机房间码：uuid前8位十六进制转大写，冲突时重试
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		room, err := s.insertRoom(ctx, organizerName, code)
		if errors.Is(err, ErrRoomCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
	return nil, ErrRoomCodeTaken
}

func (s *RoomService) insertRoom(ctx context.Context, organizerName, code string) (*models.Room, error) {
	now := time.Now()
	room := &models.Room{
		Code:          code,
		OrganizerName: organizerName,
		CreatedAt:     now,
		LastActivity:  now,
		IsActive:      true,
	}

	err := s.repo.InsertRoom(ctx, room)
	if errors.Is(err, repository.ErrCodeTaken) {
		return nil, ErrRoomCodeTaken
	}
	if err != nil {
		return nil, s.infra(err)
	}

	cache.AddRoomCode(code)
	log.Printf("房间已创建: code=%s organizer=%s", code, organizerName)
	return room, nil
}

// JoinRoom 加入房间，初始状态为待审批
// (房间,名字)唯一，名字比较不区分大小写
func (s *RoomService) JoinRoom(ctx context.Context, roomID, name string) (*models.Participant, *models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > models.MaxParticipantNameLen {
		return nil, nil, ErrInvalidName
	}

	// 布隆过滤器快速路径：确定不存在的房间码直接拒绝
	if !cache.MightContainRoom(roomID) {
		return nil, nil, ErrRoomNotFound
	}

	unlock := s.gates.lock(roomID)
	defer unlock()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	participant := &models.Participant{
		ID:           uuid.NewString(),
		RoomCode:     room.Code,
		Name:         name,
		NameLower:    strings.ToLower(name),
		SessionToken: uuid.NewString(),
		Status:       models.ApprovalPending,
		JoinedAt:     time.Now(),
	}

	err = s.repo.InsertParticipant(ctx, participant)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, nil, ErrDuplicateName
	}
	if err != nil {
		return nil, nil, s.infra(err)
	}

	s.touch(ctx, room.Code)
	s.publishParticipantUpdate(ctx, room.Code)

	return participant, room, nil
}

// ApproveParticipant 批准参与者
// 已处于终态（已批准或已拒绝）时是幂等no-op
func (s *RoomService) ApproveParticipant(ctx context.Context, roomID, participantID string) error {
	return s.decideParticipant(ctx, roomID, participantID, models.ApprovalApproved)
}

// DenyParticipant 拒绝参与者，同样幂等
func (s *RoomService) DenyParticipant(ctx context.Context, roomID, participantID string) error {
	return s.decideParticipant(ctx, roomID, participantID, models.ApprovalDenied)
}

func (s *RoomService) decideParticipant(ctx context.Context, roomID, participantID string, decision models.ApprovalStatus) error {
	unlock := s.gates.lock(roomID)
	defer unlock()

	if _, err := s.getRoom(ctx, roomID); err != nil {
		return err
	}

	participant, err := s.repo.GetParticipant(ctx, roomID, participantID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrParticipantNotFound
	}
	if err != nil {
		return s.infra(err)
	}

	// 终态不再变更：误拒的参与者需用新名字重新加入
	if participant.Status.Terminal() {
		return nil
	}

	if err := s.repo.UpdateParticipantStatus(ctx, participantID, decision); err != nil {
		return s.infra(err)
	}

	eventType := models.EventParticipantApproved
	if decision == models.ApprovalDenied {
		eventType = models.EventParticipantDenied
	}
	s.publish(roomID, &models.Event{
		Type:   eventType,
		RoomID: roomID,
		Payload: models.ParticipantDecisionPayload{
			ParticipantID:   participant.ID,
			ParticipantName: participant.Name,
		},
	})

	s.touch(ctx, roomID)
	s.publishParticipantUpdate(ctx, roomID)
	return nil
}

// CreatePoll 创建草稿投票
// 选项至少2个至多20个，去除首尾空白后非空且互不重复
func (s *RoomService) CreatePoll(ctx context.Context, roomID, question string, options []string, timerMinutes int) (*models.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" || len(question) > models.MaxQuestionLen {
		return nil, ErrInvalidPoll
	}

	cleaned := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" || len(opt) > models.MaxOptionLen || seen[opt] {
			return nil, ErrInvalidPoll
		}
		seen[opt] = true
		cleaned = append(cleaned, opt)
	}
	if len(cleaned) < 2 || len(cleaned) > models.MaxPollOptions {
		return nil, ErrInvalidPoll
	}

	if timerMinutes != 0 && (timerMinutes < models.MinTimerMinutes || timerMinutes > models.MaxTimerMinutes) {
		return nil, ErrInvalidTimer
	}

	unlock := s.gates.lock(roomID)
	defer unlock()

	if _, err := s.getRoom(ctx, roomID); err != nil {
		return nil, err
	}

	poll := &models.Poll{
		ID:           uuid.NewString(),
		RoomCode:     roomID,
		Question:     question,
		Status:       models.PollStatusDraft,
		TimerMinutes: timerMinutes,
		CreatedAt:    time.Now(),
	}
	for i, opt := range cleaned {
		poll.Options = append(poll.Options, models.PollOption{
			Position: i,
			Label:    opt,
		})
	}

	if err := s.repo.InsertPoll(ctx, poll); err != nil {
		return nil, s.infra(err)
	}

	s.publish(roomID, &models.Event{
		Type:   models.EventNewPoll,
		RoomID: roomID,
		Payload: models.NewPollPayload{
			PollID:   poll.ID,
			Question: poll.Question,
			Options:  cleaned,
		},
	})

	s.touch(ctx, roomID)
	return poll, nil
}

// StartPoll 开始投票
// 只有Draft状态会转为Active；已Active或已Closed时是no-op成功，
// 绝不会把已结束的投票重新打开
func (s *RoomService) StartPoll(ctx context.Context, roomID, pollID string) error {
	unlock := s.gates.lock(roomID)
	defer unlock()

	poll, err := s.getPoll(ctx, roomID, pollID)
	if err != nil {
		return err
	}

	if poll.Status != models.PollStatusDraft {
		return nil
	}

	now := time.Now()
	poll.Status = models.PollStatusActive
	poll.StartedAt = &now
	if poll.TimerMinutes > 0 {
		expires := now.Add(time.Duration(poll.TimerMinutes) * time.Minute)
		poll.ExpiresAt = &expires
	}

	if err := s.repo.UpdatePoll(ctx, poll); err != nil {
		return s.infra(err)
	}

	// 定时器在状态落库后注册；回调重新进入同一串行入口
	if poll.ExpiresAt != nil {
		s.timers.Schedule(roomID, pollID, *poll.ExpiresAt, s.onTimerExpired)
	}

	payload := models.PollStartedPayload{
		PollID:       poll.ID,
		Question:     poll.Question,
		Options:      optionLabels(poll),
		TimerMinutes: poll.TimerMinutes,
	}
	if poll.ExpiresAt != nil {
		payload.ExpiresAt = poll.ExpiresAt.Format(time.RFC3339)
	}
	s.publish(roomID, &models.Event{
		Type:    models.EventPollStarted,
		RoomID:  roomID,
		Payload: payload,
	})

	s.touch(ctx, roomID)
	return nil
}

// StopPoll 结束投票
// 已Closed时是no-op：手动结束与定时到期谁先通过串行门谁生效，
// 另一方不产生第二个终态事件
func (s *RoomService) StopPoll(ctx context.Context, roomID, pollID string, reason models.StopReason) error {
	unlock := s.gates.lock(roomID)
	defer unlock()

	poll, err := s.getPoll(ctx, roomID, pollID)
	if err != nil {
		return err
	}

	if poll.Status != models.PollStatusActive {
		return nil
	}

	now := time.Now()
	poll.Status = models.PollStatusClosed
	poll.ClosedAt = &now
	poll.ClosedReason = reason

	if err := s.repo.UpdatePoll(ctx, poll); err != nil {
		return s.infra(err)
	}

	// 在串行步骤内同步取消定时器，手动结束与定时触发不存在双赢窗口
	s.timers.Cancel(roomID, pollID)

	eventType := models.EventPollStopped
	message := ""
	if reason == models.StopReasonTimer {
		eventType = models.EventPollAutoStopped
		message = "Poll automatically stopped due to timer"
	}
	s.publish(roomID, &models.Event{
		Type:   eventType,
		RoomID: roomID,
		Payload: models.PollStoppedPayload{
			PollID:  pollID,
			Message: message,
		},
	})

	s.touch(ctx, roomID)
	return nil
}

// onTimerExpired 定时器到期回调
// 房间可能已被清除，找不到房间或投票时静默记日志，不向上抛错
func (s *RoomService) onTimerExpired(roomID, pollID string) {
	err := s.StopPoll(context.Background(), roomID, pollID, models.StopReasonTimer)
	if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrPollNotFound) {
		log.Printf("定时器触发时投票已不存在: room=%s poll=%s", roomID, pollID)
		return
	}
	if err != nil {
		log.Printf("定时结束投票失败: room=%s poll=%s err=%v", roomID, pollID, err)
	}
}

// CastVote 投出匿名一票
// 检查与计数在房间串行门内作为一个原子步骤完成：
// 同一参与者的N个并发请求恰有一个成功，其余返回已投票
func (s *RoomService) CastVote(ctx context.Context, roomID, pollID, participantID, option string) (*models.Poll, error) {
	option = strings.TrimSpace(option)

	unlock := s.gates.lock(roomID)
	defer unlock()

	poll, err := s.getPoll(ctx, roomID, pollID)
	if err != nil {
		return nil, err
	}
	if poll.Status != models.PollStatusActive {
		return nil, ErrPollNotActive
	}

	participant, err := s.repo.GetParticipant(ctx, roomID, participantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, s.infra(err)
	}
	if participant.Status != models.ApprovalApproved {
		return nil, ErrNotApproved
	}

	if !poll.HasOption(option) {
		return nil, ErrInvalidOption
	}

	voted, err := s.repo.HasVoted(ctx, pollID, participantID)
	if err != nil {
		return nil, s.infra(err)
	}
	if voted {
		return nil, ErrAlreadyVoted
	}

	// 登记标记+计数加一在一个存储事务内；唯一索引兜底重复投票
	err = s.repo.RecordVote(ctx, pollID, participantID, option)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrAlreadyVoted
	}
	if err != nil {
		return nil, s.infra(err)
	}

	// 重新读取计票并广播完整结果，不广播个人选择
	poll, err = s.getPoll(ctx, roomID, pollID)
	if err != nil {
		return nil, err
	}

	s.publish(roomID, &models.Event{
		Type:   models.EventVoteUpdate,
		RoomID: roomID,
		Payload: models.VoteUpdatePayload{
			PollID:     pollID,
			VoteCounts: poll.VoteCounts(),
			TotalVotes: poll.TotalVotes(),
		},
	})

	s.touch(ctx, roomID)
	return poll, nil
}

// GetParticipantByToken 按会话token解析参与者（传输层鉴权用）
func (s *RoomService) GetParticipantByToken(ctx context.Context, token string) (*models.Participant, error) {
	participant, err := s.repo.GetParticipantByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, s.infra(err)
	}
	return participant, nil
}

// GetRoomStatus 房间状态快照（纯读，不经过串行门）
// 结果可被Redis缓存，任何变更操作都会失效对应缓存
func (s *RoomService) GetRoomStatus(ctx context.Context, roomID string) (*models.RoomStatus, error) {
	if cached := cache.GetRoomStatus(roomID); cached != nil {
		return cached, nil
	}

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountParticipants(ctx, roomID, "")
	if err != nil {
		return nil, s.infra(err)
	}
	approved, err := s.repo.CountParticipants(ctx, roomID, models.ApprovalApproved)
	if err != nil {
		return nil, s.infra(err)
	}
	pending, err := s.repo.CountParticipants(ctx, roomID, models.ApprovalPending)
	if err != nil {
		return nil, s.infra(err)
	}

	polls, err := s.repo.ListPolls(ctx, roomID)
	if err != nil {
		return nil, s.infra(err)
	}

	status := &models.RoomStatus{
		RoomID:           room.Code,
		OrganizerName:    room.OrganizerName,
		ParticipantCount: total,
		ApprovedCount:    approved,
		PendingCount:     pending,
		TotalPolls:       int64(len(polls)),
	}
	for i := range polls {
		if polls[i].Status == models.PollStatusActive {
			status.ActivePolls = append(status.ActivePolls, pollSummary(&polls[i]))
		}
	}
	status.ActivePollCount = len(status.ActivePolls)

	cache.SetRoomStatus(roomID, status)
	return status, nil
}

// ListPolls 列出房间全部投票及计票（纯读）
func (s *RoomService) ListPolls(ctx context.Context, roomID string) ([]models.PollSummary, error) {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return nil, err
	}

	polls, err := s.repo.ListPolls(ctx, roomID)
	if err != nil {
		return nil, s.infra(err)
	}

	summaries := make([]models.PollSummary, 0, len(polls))
	for i := range polls {
		summaries = append(summaries, pollSummary(&polls[i]))
	}
	return summaries, nil
}

// ListParticipants 列出房间参与者（纯读，不含会话token）
func (s *RoomService) ListParticipants(ctx context.Context, roomID string) ([]models.ParticipantView, error) {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return nil, err
	}

	participants, err := s.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, s.infra(err)
	}

	views := make([]models.ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, models.ParticipantView{
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
			ApprovalStatus:  p.Status,
			JoinedAt:        p.JoinedAt,
		})
	}
	return views, nil
}

// getRoom 读取活跃房间，统一错误映射
func (s *RoomService) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, s.infra(err)
	}
	return room, nil
}

// getPoll 读取投票，统一错误映射；房间不存在时优先返回房间错误
func (s *RoomService) getPoll(ctx context.Context, roomID, pollID string) (*models.Poll, error) {
	poll, err := s.repo.GetPoll(ctx, roomID, pollID)
	if errors.Is(err, repository.ErrNotFound) {
		if _, roomErr := s.getRoom(ctx, roomID); roomErr != nil {
			return nil, roomErr
		}
		return nil, ErrPollNotFound
	}
	if err != nil {
		return nil, s.infra(err)
	}
	return poll, nil
}

// publish 在变更提交后同步广播事件，并转发到跨实例通道
func (s *RoomService) publish(roomID string, event *models.Event) {
	s.hub.Publish(roomID, event)

	if s.relay != nil {
		payload, err := event.ToJSON()
		if err != nil {
			return
		}
		if err := s.relay.RelayEvent(roomID, payload); err != nil {
			log.Printf("事件转发失败: room=%s type=%s err=%v", roomID, event.Type, err)
		}
	}
}

// publishParticipantUpdate 广播参与者数量变化
func (s *RoomService) publishParticipantUpdate(ctx context.Context, roomID string) {
	total, err := s.repo.CountParticipants(ctx, roomID, "")
	if err != nil {
		log.Printf("统计参与者失败: room=%s err=%v", roomID, err)
		return
	}
	pending, err := s.repo.CountParticipants(ctx, roomID, models.ApprovalPending)
	if err != nil {
		log.Printf("统计待审批参与者失败: room=%s err=%v", roomID, err)
		return
	}

	s.publish(roomID, &models.Event{
		Type:   models.EventParticipantUpdate,
		RoomID: roomID,
		Payload: models.ParticipantUpdatePayload{
			ParticipantCount: total,
			PendingCount:     pending,
		},
	})
}

// touch 更新房间活动时间并失效状态缓存，尽力而为
func (s *RoomService) touch(ctx context.Context, roomID string) {
	if err := s.repo.TouchRoom(ctx, roomID); err != nil {
		log.Printf("更新房间活动时间失败: room=%s err=%v", roomID, err)
	}
	cache.DeleteRoomStatus(roomID)
}

// infra 将存储层瞬时错误映射为统一的基础设施错误
func (s *RoomService) infra(err error) error {
	log.Printf("存储错误: %v", err)
	if errors.Is(err, repository.ErrStoreTimeout) {
		return ErrInfrastructure
	}
	return err
}

func optionLabels(poll *models.Poll) []string {
	labels := make([]string, 0, len(poll.Options))
	for _, opt := range poll.Options {
		labels = append(labels, opt.Label)
	}
	return labels
}

func pollSummary(poll *models.Poll) models.PollSummary {
	return models.PollSummary{
		PollID:       poll.ID,
		Question:     poll.Question,
		Options:      optionLabels(poll),
		Status:       poll.Status,
		TimerMinutes: poll.TimerMinutes,
		ExpiresAt:    poll.ExpiresAt,
		CreatedAt:    poll.CreatedAt,
		VoteCounts:   poll.VoteCounts(),
		TotalVotes:   poll.TotalVotes(),
	}
}
