// Package tracker HTTP 接入边界
// 从请求中提取 IP/UA/来源/国家，分类后构造访问事件，
// 异步交给聚合器与落库写入器，绝不阻塞或影响正常请求
package tracker

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/analytics"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/useragent"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/visitstore"
)

// SessionCookie 访客会话 Cookie 名
const SessionCookie = "_lc_session"

const sessionTTL = 24 * time.Hour

// Ingester 访问事件的接收端（聚合器）
type Ingester interface {
	Ingest(ev analytics.VisitEvent)
}

// Enqueuer 访问日志的落库投递端
type Enqueuer interface {
	Enqueue(row visitstore.VisitRow)
}

// Tracker 访问跟踪器
type Tracker struct {
	agg        Ingester
	writer     Enqueuer // 允许为 nil（未配置存储时只做内存统计）
	classifier *useragent.Classifier
}

// New 创建跟踪器
func New(agg Ingester, writer Enqueuer, classifier *useragent.Classifier) *Tracker {
	return &Tracker{agg: agg, writer: writer, classifier: classifier}
}

// Middleware 页面访问跟踪中间件
func (t *Tracker) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if shouldTrack(c.Request()) {
				t.track(c)
			}
			return next(c)
		}
	}
}

// track 构造访问事件并异步投递，失败不影响请求
func (t *Tracker) track(c echo.Context) {
	req := c.Request()
	agent := req.UserAgent()
	cls := t.classifier.Classify(agent)
	now := time.Now()

	ev := analytics.VisitEvent{
		Path:      req.URL.Path,
		Agent:     agent,
		IP:        c.RealIP(),
		Country:   countryOf(req),
		Referer:   req.Referer(),
		SessionID: t.ensureSession(c),
		Timestamp: now.UnixMilli(),
		Browser:   cls.Browser,
		OS:        cls.OS,
		Device:    cls.Device,
		Bot:       analytics.BotName(cls.Bot),
	}

	t.agg.Ingest(ev)
	if t.writer != nil {
		t.writer.Enqueue(visitstore.VisitRow{
			Path:       ev.Path,
			Agent:      ev.Agent,
			IP:         ev.IP,
			Referer:    ev.Referer,
			Country:    ev.Country,
			SessionID:  ev.SessionID,
			Browser:    ev.Browser,
			OS:         ev.OS,
			Device:     ev.Device,
			Bot:        string(ev.Bot),
			InsertedAt: now,
		})
	}
}

// ensureSession 读取或种下会话 Cookie
func (t *Tracker) ensureSession(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// countryOf 从边缘代理注入的请求头解析国家代码
func countryOf(req *http.Request) string {
	country := req.Header.Get("CF-IPCountry")
	if country == "" {
		country = req.Header.Get("X-Country")
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "XX" || country == "T1" {
		// Cloudflare 对未知/Tor 出口的占位值
		return ""
	}
	return country
}

// shouldTrack 只统计页面浏览：GET 请求、非 API/WS/静态资源
func shouldTrack(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	path := req.URL.Path
	for _, prefix := range []string{"/api", "/ws", "/_", "/assets", "/static"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	for _, ext := range []string{".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".gif",
		".svg", ".ico", ".webp", ".woff", ".woff2", ".ttf", ".txt", ".xml"} {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}
