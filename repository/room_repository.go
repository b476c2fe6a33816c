package repository

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/KiiTuNp/SUPERvote/models"

	"gorm.io/gorm"
)

var (
	// 仓库层错误定义
	ErrNotFound     = errors.New("record not found")
	ErrCodeTaken    = errors.New("room code already taken")
	ErrDuplicate    = errors.New("duplicate record")
	ErrStoreTimeout = errors.New("store operation timed out")
)

const (
	// 存储操作超时上限
	storeTimeout = 5 * time.Second

	// 瞬时错误的有限重试次数
	maxRetries = 3
	retryDelay = 50 * time.Millisecond
)

// RoomRepository 房间持久化接口
// 所有写入都由Coordinator在房间串行门内调用，仓库本身不再做业务级并发控制
type RoomRepository interface {
	// 房间
	InsertRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	TouchRoom(ctx context.Context, code string) error
	ListStaleRooms(ctx context.Context, cutoff time.Time, limit int) ([]models.Room, error)
	ListActiveRoomCodes(ctx context.Context) ([]string, error)
	CountActiveRooms(ctx context.Context) (int64, error)

	// 参与者
	InsertParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, roomCode, participantID string) (*models.Participant, error)
	GetParticipantByToken(ctx context.Context, token string) (*models.Participant, error)
	UpdateParticipantStatus(ctx context.Context, participantID string, status models.ApprovalStatus) error
	ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error)
	CountParticipants(ctx context.Context, roomCode string, status models.ApprovalStatus) (int64, error)

	// 投票
	InsertPoll(ctx context.Context, poll *models.Poll) error
	GetPoll(ctx context.Context, roomCode, pollID string) (*models.Poll, error)
	UpdatePoll(ctx context.Context, poll *models.Poll) error
	ListPolls(ctx context.Context, roomCode string) ([]models.Poll, error)
	ListExpiredActivePolls(ctx context.Context, now time.Time, limit int) ([]models.Poll, error)
	CountActivePolls(ctx context.Context) (int64, error)

	// 计票：在一个事务内登记已投票标记并原子加一
	RecordVote(ctx context.Context, pollID, participantID, option string) error
	HasVoted(ctx context.Context, pollID, participantID string) (bool, error)

	// 清除：删除房间全部数据，事务内完成
	DeleteRoomData(ctx context.Context, roomCode string) error
}

// GormRoomRepository 基于GORM的实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository 创建仓库实例
func NewRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// InsertRoom 原子插入房间，房间码唯一索引保证不存在才插入
func (r *GormRoomRepository) InsertRoom(ctx context.Context, room *models.Room) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		err := r.db.WithContext(ctx).Create(room).Error
		if isDuplicateKeyErr(err) {
			return ErrCodeTaken
		}
		return err
	})
}

// GetRoom 按房间码读取活跃房间
func (r *GormRoomRepository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Where("code = ? AND is_active = ?", code, true).
			First(&room).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// TouchRoom 更新房间最近活动时间（过期清理的依据）
func (r *GormRoomRepository) TouchRoom(ctx context.Context, code string) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.Room{}).
			Where("code = ?", code).
			Update("last_activity", time.Now()).Error
	})
}

// ListStaleRooms 列出长时间无活动的房间
func (r *GormRoomRepository) ListStaleRooms(ctx context.Context, cutoff time.Time, limit int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Where("is_active = ? AND last_activity < ?", true, cutoff).
			Limit(limit).
			Find(&rooms).Error
	})
	return rooms, err
}

// ListActiveRoomCodes 列出全部活跃房间码（布隆过滤器预热用）
func (r *GormRoomRepository) ListActiveRoomCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.Room{}).
			Where("is_active = ?", true).
			Pluck("code", &codes).Error
	})
	return codes, err
}

// CountActiveRooms 活跃房间总数（指标用）
func (r *GormRoomRepository) CountActiveRooms(ctx context.Context) (int64, error) {
	var count int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.Room{}).
			Where("is_active = ?", true).
			Count(&count).Error
	})
	return count, err
}

// InsertParticipant 插入参与者，(房间,小写名字)唯一索引拦截重名
func (r *GormRoomRepository) InsertParticipant(ctx context.Context, p *models.Participant) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		err := r.db.WithContext(ctx).Create(p).Error
		if isDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return err
	})
}

// GetParticipant 读取房间内参与者
func (r *GormRoomRepository) GetParticipant(ctx context.Context, roomCode, participantID string) (*models.Participant, error) {
	var p models.Participant
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Where("room_code = ? AND id = ?", roomCode, participantID).
			First(&p).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetParticipantByToken 按会话token读取参与者
func (r *GormRoomRepository) GetParticipantByToken(ctx context.Context, token string) (*models.Participant, error) {
	var p models.Participant
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Where("session_token = ?", token).
			First(&p).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateParticipantStatus 更新审批状态
func (r *GormRoomRepository) UpdateParticipantStatus(ctx context.Context, participantID string, status models.ApprovalStatus) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.Participant{}).
			Where("id = ?", participantID).
			Update("status", status).Error
	})
}

// ListParticipants 按加入时间列出房间参与者
func (r *GormRoomRepository) ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Where("room_code = ?", roomCode).
			Order("joined_at ASC").
			Find(&participants).Error
	})
	return participants, err
}

// CountParticipants 统计参与者数量，status为空串时统计全部
func (r *GormRoomRepository) CountParticipants(ctx context.Context, roomCode string, status models.ApprovalStatus) (int64, error) {
	var count int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		query := r.db.WithContext(ctx).Model(&models.Participant{}).Where("room_code = ?", roomCode)
		if status != "" {
			query = query.Where("status = ?", status)
		}
		return query.Count(&count).Error
	})
	return count, err
}

// InsertPoll 插入投票及其选项
func (r *GormRoomRepository) InsertPoll(ctx context.Context, poll *models.Poll) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Create(poll).Error
	})
}

// GetPoll 读取投票及选项（选项按创建顺序）
func (r *GormRoomRepository) GetPoll(ctx context.Context, roomCode, pollID string) (*models.Poll, error) {
	var poll models.Poll
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Preload("Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC")
			}).
			Where("room_code = ? AND id = ?", roomCode, pollID).
			First(&poll).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

// UpdatePoll 保存投票状态变更
func (r *GormRoomRepository) UpdatePoll(ctx context.Context, poll *models.Poll) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.Poll{}).
			Where("id = ?", poll.ID).
			Updates(map[string]interface{}{
				"status":        poll.Status,
				"started_at":    poll.StartedAt,
				"expires_at":    poll.ExpiresAt,
				"closed_at":     poll.ClosedAt,
				"closed_reason": poll.ClosedReason,
			}).Error
	})
}

// ListPolls 按创建顺序列出房间全部投票
func (r *GormRoomRepository) ListPolls(ctx context.Context, roomCode string) ([]models.Poll, error) {
	var polls []models.Poll
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Preload("Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC")
			}).
			Where("room_code = ?", roomCode).
			Order("created_at ASC").
			Find(&polls).Error
	})
	return polls, err
}

// ListExpiredActivePolls 列出已过期但仍为Active的投票（定时器兜底扫描用）
func (r *GormRoomRepository) ListExpiredActivePolls(ctx context.Context, now time.Time, limit int) ([]models.Poll, error) {
	var polls []models.Poll
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.PollStatusActive, now).
			Limit(limit).
			Find(&polls).Error
	})
	return polls, err
}

// CountActivePolls 进行中投票总数（指标用）
func (r *GormRoomRepository) CountActivePolls(ctx context.Context) (int64, error) {
	var count int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.Poll{}).
			Where("status = ?", models.PollStatusActive).
			Count(&count).Error
	})
	return count, err
}

// RecordVote 一个事务内登记已投票标记并为选项计数加一
// (poll_id, participant_id)唯一索引是重复投票的最后一道防线；
// 计票更新不读取旧值，用 votes = votes + 1 原子完成。
// 投票者标记与所选选项之间没有任何关联，投票后无法还原个人选择。
func (r *GormRoomRepository) RecordVote(ctx context.Context, pollID, participantID, option string) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			voter := models.PollVoter{
				PollID:        pollID,
				ParticipantID: participantID,
				VotedAt:       time.Now(),
			}
			if err := tx.Create(&voter).Error; err != nil {
				return err
			}

			result := tx.Model(&models.PollOption{}).
				Where("poll_id = ? AND label = ?", pollID, option).
				UpdateColumn("votes", gorm.Expr("votes + ?", 1))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			return nil
		})
		if isDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
}

// HasVoted 检查参与者是否已对该投票投过票
func (r *GormRoomRepository) HasVoted(ctx context.Context, pollID, participantID string) (bool, error) {
	var count int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Model(&models.PollVoter{}).
			Where("poll_id = ? AND participant_id = ?", pollID, participantID).
			Count(&count).Error
	})
	return count > 0, err
}

// DeleteRoomData 事务内删除房间全部数据
// 半清除状态是数据完整性缺陷，失败时由调用方重试到成功为止
func (r *GormRoomRepository) DeleteRoomData(ctx context.Context, roomCode string) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var pollIDs []string
			if err := tx.Model(&models.Poll{}).
				Where("room_code = ?", roomCode).
				Pluck("id", &pollIDs).Error; err != nil {
				return err
			}

			if len(pollIDs) > 0 {
				if err := tx.Where("poll_id IN ?", pollIDs).Delete(&models.PollVoter{}).Error; err != nil {
					return err
				}
				if err := tx.Where("poll_id IN ?", pollIDs).Delete(&models.PollOption{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("room_code = ?", roomCode).Delete(&models.Poll{}).Error; err != nil {
				return err
			}
			if err := tx.Where("room_code = ?", roomCode).Delete(&models.Participant{}).Error; err != nil {
				return err
			}
			return tx.Where("code = ?", roomCode).Delete(&models.Room{}).Error
		})
	})
}

// withRetry 带超时和有限重试执行存储操作
// 领域错误（重复键、记录不存在）不重试，只重试瞬时基础设施错误
func (r *GormRoomRepository) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := op(opCtx)
		cancel()

		if err == nil || !isTransientErr(err) {
			return err
		}

		lastErr = err
		log.Printf("存储操作失败(第%d次): %v", attempt+1, err)
		time.Sleep(retryDelay)
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return ErrStoreTimeout
	}
	return lastErr
}

// isDuplicateKeyErr 判断是否为唯一索引冲突（SQLite与MySQL的报错格式不同）
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// isTransientErr 判断是否为可重试的瞬时错误
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if isDuplicateKeyErr(err) || errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "database is locked")
}
