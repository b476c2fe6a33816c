package handlers

import (
	"log"
	"net/http"

	"github.com/KiiTuNp/SUPERvote/models"
	"github.com/KiiTuNp/SUPERvote/service"

	"github.com/gin-gonic/gin"
)

// RoomHandler 房间相关的HTTP处理器
type RoomHandler struct {
	svc *service.RoomService
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(svc *service.RoomService) *RoomHandler {
	return &RoomHandler{svc: svc}
}

// CreateRoom 处理创建房间请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input models.CreateRoomRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.svc.CreateRoom(c.Request.Context(), input.OrganizerName, input.CustomRoomID)
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room_id":        room.Code,
		"organizer_name": room.OrganizerName,
		"created_at":     room.CreatedAt,
	})
}

// JoinRoom 处理加入房间请求
// 响应中的participant_token是该参与者的会话凭证，只返回给本人
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var input models.JoinRoomRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, room, err := h.svc.JoinRoom(c.Request.Context(), input.RoomID, input.ParticipantName)
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	log.Printf("参与者加入房间: room=%s name=%s", room.Code, participant.Name)

	c.JSON(http.StatusOK, models.JoinRoomResponse{
		ParticipantID:    participant.ID,
		ParticipantToken: participant.SessionToken,
		ParticipantName:  participant.Name,
		RoomID:           room.Code,
		ApprovalStatus:   participant.Status,
		OrganizerName:    room.OrganizerName,
	})
}

// GetRoomStatus 查询房间状态
func (h *RoomHandler) GetRoomStatus(c *gin.Context) {
	status, err := h.svc.GetRoomStatus(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListParticipants 列出房间参与者
func (h *RoomHandler) ListParticipants(c *gin.Context) {
	participants, err := h.svc.ListParticipants(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// ApproveParticipant 批准参与者
func (h *RoomHandler) ApproveParticipant(c *gin.Context) {
	h.decideParticipant(c, true)
}

// DenyParticipant 拒绝参与者
func (h *RoomHandler) DenyParticipant(c *gin.Context) {
	h.decideParticipant(c, false)
}

func (h *RoomHandler) decideParticipant(c *gin.Context, approve bool) {
	var input models.ParticipantDecisionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participantID := c.Param("participant_id")

	var err error
	if approve {
		err = h.svc.ApproveParticipant(c.Request.Context(), input.RoomID, participantID)
	} else {
		err = h.svc.DenyParticipant(c.Request.Context(), input.RoomID, participantID)
	}
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
