package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockbt/config"
	"stockbt/jobs"
	"stockbt/store"
)

// Server HTTP服务器
type Server struct {
	engine *gin.Engine
	server *http.Server
	store  *store.Store
	jobs   *jobs.Manager
	cfg    *config.Config
}

// NewServer 创建服务器
func NewServer(st *store.Store, mgr *jobs.Manager, cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggerMiddleware())
	engine.Use(corsMiddleware())
	engine.Use(newIPRateLimiter(cfg.RateLimitRPS, cfg.RateBurst).middleware())

	s := &Server{
		engine: engine,
		store:  st,
		jobs:   mgr,
		cfg:    cfg,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	s.setupRoutes()
	return s
}

// Handler 返回路由, 测试时直接挂到 httptest 上
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	handler := NewHandler(s.store, s.jobs, s.cfg)

	api := s.engine.Group("/api")
	{
		// 回测任务
		api.POST("/backtests", handler.SubmitBacktest)
		api.POST("/backtests/run", handler.RunBacktest)
		api.GET("/backtests/:id", handler.GetBacktest)
		api.GET("/backtests/:id/result", handler.GetBacktestResult)
		api.GET("/backtests/:id/ws", handler.StreamBacktest)

		// 策略
		api.POST("/algorithms", handler.CreateAlgorithm)
		api.GET("/algorithms/:id", handler.GetAlgorithm)

		// 数据集
		api.GET("/datasets", handler.ListDataSets)
		api.GET("/datasets/:id/bars", handler.GetDataSetBars)
	}

	// 健康检查
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Start 启动服务器
func (s *Server) Start() error {
	log.Printf("[API] 服务启动在 http://localhost%s\n", s.server.Addr)
	log.Println("[API] 可用接口:")
	log.Println("  POST /api/backtests            - 提交回测任务")
	log.Println("  POST /api/backtests/run        - 同步回测")
	log.Println("  GET  /api/backtests/:id        - 任务状态")
	log.Println("  GET  /api/backtests/:id/result - 回测结果")
	log.Println("  GET  /api/backtests/:id/ws     - 任务状态推送")
	log.Println("  POST /api/algorithms           - 保存策略")
	log.Println("  GET  /api/algorithms/:id       - 查询策略")
	log.Println("  GET  /api/datasets             - 数据集列表")
	log.Println("  GET  /api/datasets/:id/bars    - 数据集K线")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
