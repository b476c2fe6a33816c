package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/KiiTuNp/SUPERvote/cache"
	"github.com/KiiTuNp/SUPERvote/models"
	"github.com/KiiTuNp/SUPERvote/repository"
)

// GenerateReportAndPurge 生成终期报告并清除房间
// 在房间串行门内完成：先在内存中固化完整快照，再删除全部持久数据。
// 报告一旦返回，房间即不存在，任何后续请求都按房间不存在处理。
// 快照成功但删除失败时仍返回报告，同时返回ErrPurgeFailed供调用方告警。
func (s *RoomService) GenerateReportAndPurge(ctx context.Context, roomID string) (*models.Report, error) {
	unlock := s.gates.lock(roomID)
	defer unlock()

	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// 清除前先停掉房间内所有定时器，避免回调追着已删除的数据跑
	s.timers.CancelRoom(roomID)

	report, err := s.buildReport(ctx, room)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteRoomData(ctx, roomID); err != nil {
		// 报告已固化，数据残留需要人工处理，大声记日志
		log.Printf("严重: 房间数据清除失败，存在数据残留: room=%s err=%v", roomID, err)
		return report, ErrPurgeFailed
	}

	s.publish(roomID, &models.Event{
		Type:    models.EventRoomClosed,
		RoomID:  roomID,
		Payload: map[string]string{"message": "Room closed by organizer"},
	})

	s.hub.CloseRoom(roomID)
	cache.DeleteRoomStatus(roomID)
	s.gates.remove(roomID)

	log.Printf("房间已清除: room=%s polls=%d participants=%d",
		roomID, len(report.Polls), len(report.Participants))
	return report, nil
}

// buildReport 在内存中固化房间的完整快照
func (s *RoomService) buildReport(ctx context.Context, room *models.Room) (*models.Report, error) {
	participants, err := s.repo.ListParticipants(ctx, room.Code)
	if err != nil {
		return nil, s.infra(err)
	}

	polls, err := s.repo.ListPolls(ctx, room.Code)
	if err != nil {
		return nil, s.infra(err)
	}

	report := &models.Report{
		RoomID:        room.Code,
		OrganizerName: room.OrganizerName,
		CreatedAt:     room.CreatedAt,
		GeneratedAt:   time.Now(),
	}

	for _, p := range participants {
		report.Participants = append(report.Participants, models.ParticipantView{
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
			ApprovalStatus:  p.Status,
			JoinedAt:        p.JoinedAt,
		})
		switch p.Status {
		case models.ApprovalApproved:
			report.Summary.ApprovedCount++
		case models.ApprovalPending:
			report.Summary.PendingCount++
		case models.ApprovalDenied:
			report.Summary.DeniedCount++
		}
	}
	report.Summary.TotalParticipants = len(participants)

	for i := range polls {
		report.Polls = append(report.Polls, pollResult(&polls[i]))
	}

	return report, nil
}

// pollResult 单个投票的最终结果，百分比保留一位小数
func pollResult(poll *models.Poll) models.ReportPollResult {
	result := models.ReportPollResult{
		PollID:     poll.ID,
		Question:   poll.Question,
		Status:     poll.Status,
		TotalVotes: poll.TotalVotes(),
	}
	for _, opt := range poll.Options {
		stat := models.ReportOptionStat{
			Label: opt.Label,
			Votes: opt.Votes,
		}
		if result.TotalVotes > 0 {
			stat.Percentage = float64(int64(float64(opt.Votes)/float64(result.TotalVotes)*1000+0.5)) / 10
		}
		result.OptionStats = append(result.OptionStats, stat)
	}
	return result
}

// SweepExpiredPolls 兜底扫描：进程重启后丢失的内存定时器由此补偿，
// 把已过期仍Active的投票按定时原因结束。由路由层周期调用。
func (s *RoomService) SweepExpiredPolls(ctx context.Context, limit int) int {
	polls, err := s.repo.ListExpiredActivePolls(ctx, time.Now(), limit)
	if err != nil {
		log.Printf("过期投票扫描失败: err=%v", err)
		return 0
	}

	closed := 0
	for i := range polls {
		err := s.StopPoll(ctx, polls[i].RoomCode, polls[i].ID, models.StopReasonTimer)
		if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrPollNotFound) {
			// 扫描后、结束前房间被清除，无事可做
			continue
		}
		if err != nil {
			log.Printf("兜底结束投票失败: room=%s poll=%s err=%v", polls[i].RoomCode, polls[i].ID, err)
			continue
		}
		closed++
	}
	if closed > 0 {
		log.Printf("兜底扫描结束了%d个过期投票", closed)
	}
	return closed
}

// SweepStaleRooms 清理长时间无活动的房间（不生成报告，直接删除）
func (s *RoomService) SweepStaleRooms(ctx context.Context, ttl time.Duration, limit int) int {
	cutoff := time.Now().Add(-ttl)
	rooms, err := s.repo.ListStaleRooms(ctx, cutoff, limit)
	if err != nil {
		log.Printf("过期房间扫描失败: err=%v", err)
		return 0
	}

	purged := 0
	for i := range rooms {
		roomID := rooms[i].Code
		unlock := s.gates.lock(roomID)

		s.timers.CancelRoom(roomID)
		if err := s.repo.DeleteRoomData(ctx, roomID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.Printf("清理过期房间失败: room=%s err=%v", roomID, err)
			}
			unlock()
			continue
		}

		s.publish(roomID, &models.Event{
			Type:    models.EventRoomClosed,
			RoomID:  roomID,
			Payload: map[string]string{"message": "Room closed due to inactivity"},
		})
		s.hub.CloseRoom(roomID)
		cache.DeleteRoomStatus(roomID)
		s.gates.remove(roomID)
		unlock()
		purged++
	}
	if purged > 0 {
		log.Printf("清理了%d个过期房间", purged)
	}
	return purged
}
