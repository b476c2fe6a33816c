package handlers

import (
	"log"
	"net/http"

	"github.com/KiiTuNp/SUPERvote/models"
	"github.com/KiiTuNp/SUPERvote/service"

	"github.com/gin-gonic/gin"
)

// PollHandler 投票相关的HTTP处理器
type PollHandler struct {
	svc *service.RoomService
}

// NewPollHandler 创建投票处理器
func NewPollHandler(svc *service.RoomService) *PollHandler {
	return &PollHandler{svc: svc}
}

// CreatePoll 创建草稿投票
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var input models.CreatePollRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poll, err := h.svc.CreatePoll(c.Request.Context(), input.RoomID, input.Question, input.Options, input.TimerMinutes)
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	log.Printf("投票已创建: room=%s poll=%s", input.RoomID, poll.ID)
	c.JSON(http.StatusCreated, poll)
}

// StartPoll 开始投票
func (h *PollHandler) StartPoll(c *gin.Context) {
	var input models.PollActionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pollID := c.Param("poll_id")
	if err := h.svc.StartPoll(c.Request.Context(), input.RoomID, pollID); err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// StopPoll 手动结束投票
func (h *PollHandler) StopPoll(c *gin.Context) {
	var input models.PollActionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pollID := c.Param("poll_id")
	if err := h.svc.StopPoll(c.Request.Context(), input.RoomID, pollID, models.StopReasonManual); err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// SubmitVote 提交匿名投票
// 参与者由会话token识别，响应只包含汇总计票，不回显个人选择
func (h *PollHandler) SubmitVote(c *gin.Context) {
	var input models.VoteSubmitRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, err := h.svc.GetParticipantByToken(c.Request.Context(), input.ParticipantToken)
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	pollID := c.Param("poll_id")
	poll, err := h.svc.CastVote(c.Request.Context(), participant.RoomCode, pollID, participant.ID, input.SelectedOption)
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "投票提交成功",
		"vote_counts": poll.VoteCounts(),
		"total_votes": poll.TotalVotes(),
	})
}

// ListPolls 列出房间全部投票
func (h *PollHandler) ListPolls(c *gin.Context) {
	polls, err := h.svc.ListPolls(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"polls": polls})
}
