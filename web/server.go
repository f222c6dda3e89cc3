package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polyastra/config"
	"polyastra/ledger"
	"polyastra/logger"
	"polyastra/stats"
)

// Server 状态接口服务器：健康检查、指标、运行统计
type Server struct {
	server *http.Server
	cfg    *config.Config
}

// NewServer 创建状态服务器。Web 未启用时返回 nil，调用方按 nil 安全处理。
func NewServer(cfg *config.Config, store *ledger.Store, agg *stats.Aggregator) *Server {
	if !cfg.Web.Enabled {
		return nil
	}

	if cfg.System.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/stats", func(c *gin.Context) {
		report, err := agg.Build(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	r.GET("/api/trades", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 500 {
			limit = 50
		}
		trades, err := store.RecentTrades(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
	})

	return &Server{
		server: &http.Server{
			Addr:         cfg.Web.Listen,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		cfg: cfg,
	}
}

// Start 启动服务器，context 取消时优雅关闭
func (s *Server) Start(ctx context.Context) {
	if s == nil {
		return
	}

	go func() {
		logger.Info("🌐 状态服务器启动在 %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ 状态服务器启动失败: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("❌ 状态服务器关闭失败: %v", err)
		} else {
			logger.Info("✅ 状态服务器已关闭")
		}
	}()
}
