package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/KiiTuNp/SUPERvote/service"

	"github.com/gin-gonic/gin"
)

// ReportHandler 终期报告处理器
type ReportHandler struct {
	svc *service.RoomService
}

// NewReportHandler 创建报告处理器
func NewReportHandler(svc *service.RoomService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// GenerateReport 生成终期报告并清除房间
// 报告和清除是同一个串行操作：响应返回后房间即不存在，
// 相同房间码的后续请求一律404
func (h *ReportHandler) GenerateReport(c *gin.Context) {
	roomID := c.Param("room_id")

	report, err := h.svc.GenerateReportAndPurge(c.Request.Context(), roomID)
	if errors.Is(err, service.ErrPurgeFailed) {
		// 快照已固化但数据清除失败，报告仍然有效
		log.Printf("报告已生成但清除失败: room=%s", roomID)
		c.JSON(http.StatusOK, gin.H{"report": report, "purged": false})
		return
	}
	if err != nil {
		c.JSON(serviceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report, "purged": true})
}
