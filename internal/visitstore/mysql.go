package visitstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// MySQL 基于 MySQL 的访问日志存储
type MySQL struct {
	db *sql.DB
}

// Open 打开 MySQL 连接，配置来自环境变量（支持 .env 文件）
// 连接不通时同样返回实例：聚合器对存储不可用有完整的降级逻辑，
// 由调用方决定是否关心 Ping 结果
func Open() (*MySQL, error) {
	_ = godotenv.Load(".env")

	db, err := sql.Open("mysql", dsnFromEnv())
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &MySQL{db: db}, nil
}

func dsnFromEnv() string {
	host := env("LOCALCAFE_DB_HOST", "127.0.0.1")
	port := env("LOCALCAFE_DB_PORT", "3306")
	user := env("LOCALCAFE_DB_USER", "root")
	pass := env("LOCALCAFE_DB_PASSWORD", "")
	name := env("LOCALCAFE_DB_NAME", "localcafe")
	params := env("LOCALCAFE_DB_PARAMS",
		"parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci&loc=Local")

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", user, pass, host, port, name, params)
}

// Ping 探测数据库连通性
func (m *MySQL) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close 关闭连接池
func (m *MySQL) Close() error {
	return m.db.Close()
}

// DB 暴露底层连接池给其他上下文（菜单等 CRUD）复用
func (m *MySQL) DB() *sql.DB {
	return m.db
}

// EnsureSchema 建表（幂等）
func (m *MySQL) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS visits (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			path VARCHAR(512) NOT NULL,
			agent VARCHAR(512) NOT NULL DEFAULT '',
			ip VARCHAR(64) NOT NULL DEFAULT '',
			referer VARCHAR(512) NOT NULL DEFAULT '',
			country VARCHAR(8) NOT NULL DEFAULT '',
			session_id VARCHAR(64) NOT NULL DEFAULT '',
			browser VARCHAR(64) NOT NULL DEFAULT '',
			os VARCHAR(64) NOT NULL DEFAULT '',
			device VARCHAR(32) NOT NULL DEFAULT '',
			bot VARCHAR(128) NOT NULL DEFAULT '',
			inserted_at DATETIME(3) NOT NULL,
			KEY idx_visits_inserted_at (inserted_at),
			KEY idx_visits_session (session_id, inserted_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS menu_items (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			description VARCHAR(512) NOT NULL DEFAULT '',
			price_cents INT NOT NULL DEFAULT 0,
			category VARCHAR(64) NOT NULL DEFAULT '',
			available TINYINT(1) NOT NULL DEFAULT 1
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	return nil
}

// RecentVisits 返回 since 之后的全部访问行，按时间降序
func (m *MySQL) RecentVisits(ctx context.Context, since time.Time) ([]VisitRow, error) {
	const q = `SELECT path, agent, ip, referer, country, session_id, inserted_at, browser, os, device, bot
		FROM visits WHERE inserted_at >= ? ORDER BY inserted_at DESC`

	rows, err := m.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("查询访问日志失败: %w", err)
	}
	defer rows.Close()

	var out []VisitRow
	for rows.Next() {
		var r VisitRow
		if err := rows.Scan(&r.Path, &r.Agent, &r.IP, &r.Referer, &r.Country,
			&r.SessionID, &r.InsertedAt, &r.Browser, &r.OS, &r.Device, &r.Bot); err != nil {
			return nil, fmt.Errorf("读取访问日志行失败: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionsSince 返回 since 之后 session_id 非空的精简行
func (m *MySQL) SessionsSince(ctx context.Context, since time.Time) ([]SessionRow, error) {
	const q = `SELECT session_id, inserted_at FROM visits
		WHERE inserted_at >= ? AND session_id <> '' ORDER BY inserted_at DESC`

	rows, err := m.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("查询会话记录失败: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.InsertedAt); err != nil {
			return nil, fmt.Errorf("读取会话行失败: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertVisits 批量写入访问行
func (m *MySQL) InsertVisits(ctx context.Context, batch []VisitRow) error {
	if len(batch) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO visits
		(path, agent, ip, referer, country, session_id, browser, os, device, bot, inserted_at) VALUES `)
	args := make([]any, 0, len(batch)*11)
	for i, r := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args, r.Path, r.Agent, r.IP, r.Referer, r.Country,
			r.SessionID, r.Browser, r.OS, r.Device, r.Bot, r.InsertedAt)
	}

	if _, err := m.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("写入访问日志失败: %w", err)
	}
	return nil
}
