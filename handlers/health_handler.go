package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/KiiTuNp/SUPERvote/cache"
	"github.com/KiiTuNp/SUPERvote/database"
	"github.com/KiiTuNp/SUPERvote/repository"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	NumCPU       int       `json:"num_cpu"`
	DBStatus     string    `json:"db_status"`
	RedisMode    string    `json:"redis_mode"`
	ActiveRooms  int64     `json:"active_rooms"`
	ActivePolls  int64     `json:"active_polls"`
}

var (
	startTime = time.Now()
	version   = "1.0.0" // 应用版本，可通过构建参数注入
)

// HealthHandler 健康检查与指标处理器
type HealthHandler struct {
	repo repository.RoomRepository
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(repo repository.RoomRepository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "ok"
	sqlDB, err := database.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		dbStatus = "error"
	}

	redisMode := "redis"
	if cache.IsMockMode() {
		redisMode = "mock"
	}

	activeRooms, err := h.repo.CountActiveRooms(ctx)
	if err != nil {
		activeRooms = -1
	}
	activePolls, err := h.repo.CountActivePolls(ctx)
	if err != nil {
		activePolls = -1
	}

	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     dbStatus,
		RedisMode:    redisMode,
		ActiveRooms:  activeRooms,
		ActivePolls:  activePolls,
	}

	c.JSON(http.StatusOK, info)
}

// Metrics 返回Prometheus文本格式的指标
func (h *HealthHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()

	activeRooms, _ := h.repo.CountActiveRooms(ctx)
	activePolls, _ := h.repo.CountActivePolls(ctx)

	metrics := fmt.Sprintf(`# HELP rooms_active The number of active rooms
# TYPE rooms_active gauge
rooms_active %d

# HELP polls_active The number of polls currently accepting votes
# TYPE polls_active gauge
polls_active %d

# HELP system_goroutines The number of goroutines
# TYPE system_goroutines gauge
system_goroutines %d

# HELP system_uptime_seconds Seconds since process start
# TYPE system_uptime_seconds counter
system_uptime_seconds %.0f
`, activeRooms, activePolls, runtime.NumGoroutine(), time.Since(startTime).Seconds())

	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(metrics))
}
