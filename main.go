package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KiiTuNp/SUPERvote/cache"
	"github.com/KiiTuNp/SUPERvote/database"
	"github.com/KiiTuNp/SUPERvote/mq"
	"github.com/KiiTuNp/SUPERvote/repository"
	"github.com/KiiTuNp/SUPERvote/routes"
	"github.com/KiiTuNp/SUPERvote/service"
	"github.com/KiiTuNp/SUPERvote/websocket"
)

func main() {
	// 初始化数据库连接
	if err := database.InitDB(); err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接初始化成功")

	// 初始化Redis连接，失败降级为进程内模拟模式，不阻止启动
	if err := cache.InitRedis(); err != nil {
		log.Printf("警告: Redis初始化失败: %v", err)
	}

	repo := repository.NewRoomRepository(database.DB)
	hub := websocket.NewHub()
	svc := service.NewRoomService(repo, hub)

	// 用现存活跃房间码预热布隆过滤器
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		codes, err := repo.ListActiveRoomCodes(warmCtx)
		if err != nil {
			log.Printf("布隆过滤器预热失败: %v", err)
			return
		}
		cache.WarmRoomCodes(warmCtx, codes)
	}()

	// 初始化跨实例事件中继（可选），转发来的事件直接投递本地hub
	relay, err := mq.NewEventRelay(hub.PublishRaw)
	if err != nil {
		log.Printf("警告: 事件中继初始化失败: %v", err)
	}
	if relay != nil {
		svc.SetEventRelay(relay)
	}

	// 设置路由并启动服务器
	router := routes.SetupRouter(svc, repo, hub)
	srv := routes.StartServer(router)
	log.Println("服务器启动成功")

	// 启动后台清扫任务
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	routes.StartBackgroundSweeps(sweepCtx, svc)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务器强制关闭: %v", err)
	}

	relay.Close()
	cache.CloseRedis()
	database.CloseDB()

	log.Println("服务器优雅关闭")
}
