package analytics

import (
	"time"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/visitstore"
)

// HistogramBuckets 小时流量直方图的分钟桶数量
// 下标 0 为当前分钟，59 为 59 分钟前，输出长度恒为 60
const HistogramBuckets = 60

// histogramFromEvents 基于内存缓冲区计算直方图
// 缓冲区只有 100 条，中等流量下覆盖不了完整一小时，
// 因此定时广播不走这条路径，只用于仪表盘的即席查询
func histogramFromEvents(events []VisitEvent, now time.Time) []int {
	sets := newBucketSets()
	nowMs := now.UnixMilli()
	for _, ev := range events {
		if ev.SessionID == "" {
			continue
		}
		addToBucket(sets, ev.SessionID, nowMs-ev.Timestamp)
	}
	return bucketCounts(sets)
}

// histogramFromSessions 基于持久化存储的查询结果计算直方图
// 与内存路径共用分桶与去重逻辑，输出契约一致
func histogramFromSessions(rows []visitstore.SessionRow, now time.Time) []int {
	sets := newBucketSets()
	nowMs := now.UnixMilli()
	for _, row := range rows {
		if row.SessionID == "" {
			continue
		}
		addToBucket(sets, row.SessionID, nowMs-row.InsertedAt.UnixMilli())
	}
	return bucketCounts(sets)
}

func newBucketSets() []map[string]struct{} {
	return make([]map[string]struct{}, HistogramBuckets)
}

func addToBucket(sets []map[string]struct{}, sessionID string, ageMs int64) {
	minutesAgo := ageMs / 60_000
	if ageMs < 0 || minutesAgo >= HistogramBuckets {
		return
	}
	if sets[minutesAgo] == nil {
		sets[minutesAgo] = make(map[string]struct{})
	}
	sets[minutesAgo][sessionID] = struct{}{}
}

func bucketCounts(sets []map[string]struct{}) []int {
	counts := make([]int, HistogramBuckets)
	for i, set := range sets {
		counts[i] = len(set)
	}
	return counts
}

// emptyHistogram 全零直方图，存储查询失败时的兜底返回
func emptyHistogram() []int {
	return make([]int, HistogramBuckets)
}
