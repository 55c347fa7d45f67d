// Package visitstore 访问日志的持久化存储（MySQL）
// 聚合器只读取，接入边界异步写入
package visitstore

import (
	"context"
	"time"
)

// VisitRow 访问日志行
type VisitRow struct {
	Path       string
	Agent      string
	IP         string
	Referer    string
	Country    string
	SessionID  string
	InsertedAt time.Time
	Browser    string
	OS         string
	Device     string
	Bot        string // 空字符串表示非机器人
}

// SessionRow 小时流量直方图查询用的精简行
type SessionRow struct {
	SessionID  string
	InsertedAt time.Time
}

// Reader 聚合器消费的只读查询接口
type Reader interface {
	// RecentVisits 返回 since 之后的全部访问行，按时间降序
	RecentVisits(ctx context.Context, since time.Time) ([]VisitRow, error)
	// SessionsSince 返回 since 之后 session_id 非空的行
	SessionsSince(ctx context.Context, since time.Time) ([]SessionRow, error)
}
