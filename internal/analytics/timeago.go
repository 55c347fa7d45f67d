package analytics

import (
	"fmt"
	"time"
)

// timeAgo 将事件时间转换为人类可读的相对时间
func timeAgo(timestampMs int64, now time.Time) string {
	d := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case d < 10*time.Second:
		return "刚刚"
	case d < time.Minute:
		return fmt.Sprintf("%d 秒前", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d 分钟前", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d 小时前", int(d.Hours()))
	default:
		return fmt.Sprintf("%d 天前", int(d.Hours()/24))
	}
}
