// Package menu 菜单上下文，普通的薄 CRUD 读取层
package menu

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Item 菜单条目
type Item struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int    `json:"price_cents"`
	Category    string `json:"category"`
	Available   bool   `json:"available"`
}

// Handler 菜单处理器
type Handler struct {
	db *sql.DB
}

// NewHandler 创建菜单处理器，db 允许为 nil（数据库未配置时返回 503）
func NewHandler(db *sql.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes 注册菜单路由
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListItems)
	g.GET("/:category", h.ListByCategory)
}

// ListItems 列出全部在售菜单
func (h *Handler) ListItems(c echo.Context) error {
	return h.list(c, "")
}

// ListByCategory 按分类列出菜单
func (h *Handler) ListByCategory(c echo.Context) error {
	return h.list(c, c.Param("category"))
}

func (h *Handler) list(c echo.Context, category string) error {
	if h.db == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "数据库未配置",
		})
	}

	items, err := h.query(c.Request().Context(), category)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "查询菜单失败",
		})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) query(ctx context.Context, category string) ([]Item, error) {
	q := `SELECT id, name, description, price_cents, category, available
		FROM menu_items WHERE available = 1`
	args := []any{}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY category, name`

	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.PriceCents, &it.Category, &it.Available); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
