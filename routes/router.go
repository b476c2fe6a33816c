package routes

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/KiiTuNp/SUPERvote/handlers"
	"github.com/KiiTuNp/SUPERvote/repository"
	"github.com/KiiTuNp/SUPERvote/service"
	"github.com/KiiTuNp/SUPERvote/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// 后台清扫参数
const (
	expiredPollSweepInterval = 30 * time.Second
	staleRoomSweepInterval   = 1 * time.Hour
	sweepBatchLimit          = 100
	defaultRoomTTLHours      = 24
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(svc *service.RoomService, repo repository.RoomRepository, hub *websocket.Hub) *gin.Engine {
	router := gin.Default()

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 生产环境中应限制为前端域名
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	roomHandler := handlers.NewRoomHandler(svc)
	pollHandler := handlers.NewPollHandler(svc)
	reportHandler := handlers.NewReportHandler(svc)
	healthHandler := handlers.NewHealthHandler(repo)
	sseHandler := handlers.NewSSEHandler(svc, hub)
	wsHandler := websocket.NewHandler(hub)

	api := router.Group("/api")
	{
		api.Use(handlers.RateLimitMiddleware())

		// 健康检查和指标端点
		api.GET("/health", healthHandler.HealthCheck)
		api.GET("/status", healthHandler.SystemStatus)
		api.GET("/metrics", healthHandler.Metrics)

		// 房间管理端点
		rooms := api.Group("/rooms")
		{
			rooms.POST("/create", roomHandler.CreateRoom)
			rooms.POST("/join", roomHandler.JoinRoom)
			rooms.GET("/:room_id/status", roomHandler.GetRoomStatus)
			rooms.GET("/:room_id/polls", pollHandler.ListPolls)
			rooms.GET("/:room_id/participants", roomHandler.ListParticipants)
			rooms.POST("/:room_id/report", reportHandler.GenerateReport)

			// 实时更新端点（SSE方式）
			rooms.GET("/:room_id/live", sseHandler.HandleSSE)
		}

		// 参与者审批端点
		participants := api.Group("/participants")
		{
			participants.POST("/:participant_id/approve", roomHandler.ApproveParticipant)
			participants.POST("/:participant_id/deny", roomHandler.DenyParticipant)
		}

		// 投票端点
		polls := api.Group("/polls")
		{
			polls.POST("/create", pollHandler.CreatePoll)
			polls.POST("/:poll_id/start", pollHandler.StartPoll)
			polls.POST("/:poll_id/stop", pollHandler.StopPoll)
			polls.POST("/:poll_id/vote", pollHandler.SubmitVote)
		}

		// 实时更新端点（WebSocket方式）
		api.GET("/ws/:room_id", wsHandler.HandleConnection)
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine) *Server {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8090"
	}

	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:    addr,
			Handler: router,
		},
	}

	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}

// StartBackgroundSweeps 启动后台清扫任务，ctx取消时全部退出
// 过期投票兜底扫描补偿进程重启时丢失的内存定时器；
// 过期房间清理回收组织者忘记生成报告的房间
func StartBackgroundSweeps(ctx context.Context, svc *service.RoomService) {
	roomTTL := time.Duration(defaultRoomTTLHours) * time.Hour
	if val := os.Getenv("ROOM_TTL_HOURS"); val != "" {
		if hours, err := strconv.Atoi(val); err == nil && hours > 0 {
			roomTTL = time.Duration(hours) * time.Hour
		}
	}

	go func() {
		ticker := time.NewTicker(expiredPollSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.SweepExpiredPolls(ctx, sweepBatchLimit)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(staleRoomSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.SweepStaleRooms(ctx, roomTTL, sweepBatchLimit)
			}
		}
	}()

	log.Printf("后台清扫任务已启动: 房间TTL=%v", roomTTL)
}
