package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/KiiTuNp/SUPERvote/service"
	"github.com/KiiTuNp/SUPERvote/websocket"

	"github.com/gin-gonic/gin"
)

// SSE心跳间隔
const sseHeartbeat = 15 * time.Second

// SSEHandler 基于Server-Sent Events的事件流处理器
// 与WebSocket消费同一个hub订阅，两种传输看到相同的事件序列
type SSEHandler struct {
	svc *service.RoomService
	hub *websocket.Hub
}

// NewSSEHandler 创建SSE处理器
func NewSSEHandler(svc *service.RoomService, hub *websocket.Hub) *SSEHandler {
	return &SSEHandler{svc: svc, hub: hub}
}

// HandleSSE 处理事件流连接
func (h *SSEHandler) HandleSSE(c *gin.Context) {
	roomID := c.Param("room_id")

	if _, err := h.svc.GetRoomStatus(c.Request.Context(), roomID); err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	sub := h.hub.Subscribe(roomID)
	defer h.hub.Unsubscribe(sub)

	log.Printf("SSE客户端已连接: room=%s ip=%s", roomID, c.ClientIP())

	// 连接确认
	fmt.Fprintf(c.Writer, "data: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	notify := c.Request.Context().Done()

	for {
		select {
		case <-notify:
			log.Printf("SSE客户端已断开: room=%s", roomID)
			return
		case payload, ok := <-sub.C():
			if !ok {
				// 房间已关闭，订阅被hub移除
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				log.Printf("写入SSE数据失败: room=%s err=%v", roomID, err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
