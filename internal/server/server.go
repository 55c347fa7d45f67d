package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/analytics"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/broadcast"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/config"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/handler/dashboard"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/handler/menu"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/tracker"
	webui "github.com/Local-Cafe/localcafe-full-sub000/web"
)

// Server 应用服务器
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	agg     *analytics.Aggregator
	hub     *broadcast.Hub
	tracker *tracker.Tracker
	db      *sql.DB
}

// New 创建新的服务器实例
func New(cfg *config.Config, agg *analytics.Aggregator, hub *broadcast.Hub, trk *tracker.Tracker, db *sql.DB) *Server {
	e := echo.New()
	e.HideBanner = true

	s := &Server{
		echo:    e,
		config:  cfg,
		agg:     agg,
		hub:     hub,
		tracker: trk,
		db:      db,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware 设置中间件
func (s *Server) setupMiddleware() {
	// 日志中间件
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		HandleError: true, // 将错误转发给全局错误处理程序，以便其决定适当的响应状态码
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error == nil {
				slog.LogAttrs(context.Background(), slog.LevelInfo, "REQ",
					slog.Int("status", v.Status),
					slog.String("uri", v.URI),
				)
			} else {
				slog.LogAttrs(context.Background(), slog.LevelError, "REQ_ERR",
					slog.Int("status", v.Status),
					slog.String("uri", v.URI),
					slog.String("err", v.Error.Error()),
				)
			}
			return nil
		},
	}))

	// 恢复中间件
	s.echo.Use(echomw.Recover())

	// CORS 中间件
	s.echo.Use(echomw.CORS())

	// 访问跟踪中间件（只统计页面浏览，不阻塞请求）
	s.echo.Use(s.tracker.Middleware())
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	dashHandler := dashboard.NewHandler(s.agg, s.hub)
	dashHandler.RegisterRoutes(s.echo.Group("/api/dashboard"))

	menuHandler := menu.NewHandler(s.db)
	menuHandler.RegisterRoutes(s.echo.Group("/api/menu"))

	// 仪表盘实时推送
	s.echo.GET("/ws/dashboard", dashHandler.Websocket)

	// 内嵌的仪表盘页面
	s.echo.StaticFS("/dashboard", echo.MustSubFS(webui.FS(), "dashboard"))

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

// Start 启动服务器
func (s *Server) Start() error {
	s.printStartupInfo()
	return s.echo.Start(":" + s.config.Server.Port)
}

// Shutdown 优雅停机
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// printStartupInfo 打印启动信息
func (s *Server) printStartupInfo() {
	fmt.Println("Local Cafe 服务启动中...")
	fmt.Printf("监听端口: %s\n", s.config.Server.Port)
	fmt.Println("\n仪表盘 API:")
	fmt.Println("   - GET /api/dashboard/stats      完整统计快照")
	fmt.Println("   - GET /api/dashboard/hourly     小时流量直方图")
	fmt.Println("   - GET /api/dashboard/count      窗口独立访客数 (?window=1m/30m/1h/6h/12h/24h)")
	fmt.Println("   - GET /api/dashboard/top/:kind  排行 (pages/countries/referrers/bots/os/browsers)")
	fmt.Println("   - GET /api/dashboard/visitors   最近访客")
	fmt.Println("   - GET /api/dashboard/activity   活动流")
	fmt.Println("   - GET /ws/dashboard             实时推送 (new_visit/stats_update/hourly_traffic_update)")
	fmt.Println("\n菜单 API:")
	fmt.Println("   - GET /api/menu                 在售菜单")
	fmt.Println("   - GET /api/menu/:category       按分类")
}

// Echo 返回 Echo 实例（用于扩展路由等）
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
