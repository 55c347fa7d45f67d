// Package dashboard 仪表盘接口：初始加载的只读查询 + websocket 实时推送
package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/analytics"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/broadcast"
)

// windows 查询参数到统计窗口的映射
var windows = map[string]time.Duration{
	"1m":  analytics.WindowMinute,
	"30m": analytics.Window30Minutes,
	"1h":  analytics.WindowHour,
	"6h":  analytics.Window6Hours,
	"12h": analytics.Window12Hours,
	"24h": analytics.Window24Hours,
}

// Handler 仪表盘处理器
type Handler struct {
	agg      *analytics.Aggregator
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建仪表盘处理器
func NewHandler(agg *analytics.Aggregator, hub *broadcast.Hub) *Handler {
	return &Handler{
		agg: agg,
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes 注册仪表盘路由
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/stats", h.GetStats)
	g.GET("/hourly", h.GetHourly)
	g.GET("/count", h.GetWindowCount)
	g.GET("/top/:kind", h.GetTop)
	g.GET("/visitors", h.GetRecentVisitors)
	g.GET("/activity", h.GetActivity)
}

// GetStats 完整统计快照，仪表盘首次加载使用
func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.agg.FullSnapshot())
}

// GetHourly 基于内存缓冲区的小时流量直方图
func (h *Handler) GetHourly(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.HourlyTraffic{HourlyTraffic: h.agg.HourlyHistogram()})
}

// GetWindowCount 指定窗口的独立访客数，如 /count?window=30m
func (h *Handler) GetWindowCount(c echo.Context) error {
	name := c.QueryParam("window")
	window, ok := windows[name]
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "未知的时间窗口，可用值: 1m/30m/1h/6h/12h/24h",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"window": name,
		"count":  h.agg.WindowCount(window),
	})
}

// GetTop 指定维度的排行，如 /top/pages?limit=10
func (h *Handler) GetTop(c echo.Context) error {
	limit := 0
	echo.QueryParamsBinder(c).Int("limit", &limit)

	switch c.Param("kind") {
	case "pages":
		return c.JSON(http.StatusOK, h.agg.TopPages(limit))
	case "countries":
		return c.JSON(http.StatusOK, h.agg.Geographic(limit))
	case "referrers":
		return c.JSON(http.StatusOK, h.agg.TopReferrers(limit))
	case "bots":
		return c.JSON(http.StatusOK, h.agg.BotCounts(limit))
	case "os":
		return c.JSON(http.StatusOK, h.agg.OSCounts(limit))
	case "browsers":
		return c.JSON(http.StatusOK, h.agg.BrowserCounts(limit))
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "未知的排行维度",
		})
	}
}

// GetRecentVisitors 最近访客（≤20）
func (h *Handler) GetRecentVisitors(c echo.Context) error {
	return c.JSON(http.StatusOK, h.agg.RecentVisitors(20))
}

// GetActivity 活动流（≤50）
func (h *Handler) GetActivity(c echo.Context) error {
	return c.JSON(http.StatusOK, h.agg.ActivityBuffer(50))
}

// Websocket 仪表盘实时连接：接入 analytics 主题并立即下发初始快照
func (h *Handler) Websocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := h.hub.Subscribe(broadcast.TopicAnalytics, conn)

	if data, err := broadcast.Encode("init", h.agg.FullSnapshot()); err == nil {
		client.Send(data)
	} else {
		slog.Error("初始快照编码失败", "error", err)
	}
	return nil
}
