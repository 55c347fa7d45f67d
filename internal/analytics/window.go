package analytics

import "time"

// 支持的统计时间窗口
// 全部基于同一个容量 100 的缓冲区计算，窗口越长越可能低估
// （缓冲区被高流量填满后覆盖不到完整窗口），这是刻意的内存换精度取舍
const (
	WindowMinute    = time.Minute
	Window30Minutes = 30 * time.Minute
	WindowHour      = time.Hour
	Window6Hours    = 6 * time.Hour
	Window12Hours   = 12 * time.Hour
	Window24Hours   = 24 * time.Hour
)

// uniqueSessions 统计窗口内的独立会话数
// 只计入时间戳落在 [now-window, now] 且 session_id 非空的事件，同一会话只计一次
func uniqueSessions(events []VisitEvent, now time.Time, window time.Duration) int {
	cutoff := now.UnixMilli() - window.Milliseconds()
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.Timestamp < cutoff || ev.SessionID == "" {
			continue
		}
		seen[ev.SessionID] = struct{}{}
	}
	return len(seen)
}
