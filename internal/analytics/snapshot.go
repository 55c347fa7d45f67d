package analytics

import "time"

// Stats 统计快照，结构与 stats_update 广播负载一致
type Stats struct {
	LastMinuteCount    int            `json:"last_minute_count"`
	Last30MinutesCount int            `json:"last_30_minutes_count"`
	LastHourCount      int            `json:"last_hour_count"`
	Last6HoursCount    int            `json:"last_6_hours_count"`
	Last12HoursCount   int            `json:"last_12_hours_count"`
	Last24HoursCount   int            `json:"last_24_hours_count"`
	TopPages           []PageCount    `json:"top_pages"`
	Geographic         []CountryCount `json:"geographic"`
	TopReferrers       []RefererCount `json:"top_referrers"`
	BotCounts          []NameCount    `json:"bot_counts"`
	OSCounts           []NameCount    `json:"os_counts"`
	BrowserCounts      []NameCount    `json:"browser_counts"`
}

// Snapshot 仪表盘首次加载用的完整快照
type Snapshot struct {
	Stats
	RecentVisitors []VisitView `json:"recent_visitors"`
	ActivityBuffer []VisitView `json:"activity_buffer"`
}

// HourlyTraffic 小时流量广播负载
type HourlyTraffic struct {
	HourlyTraffic []int `json:"hourly_traffic"`
}

// buildStats 从当前状态构建统计快照，排行榜一律取前 10
func buildStats(s *state, now time.Time) Stats {
	return Stats{
		LastMinuteCount:    uniqueSessions(s.recent, now, WindowMinute),
		Last30MinutesCount: uniqueSessions(s.recent, now, Window30Minutes),
		LastHourCount:      uniqueSessions(s.recent, now, WindowHour),
		Last6HoursCount:    uniqueSessions(s.recent, now, Window6Hours),
		Last12HoursCount:   uniqueSessions(s.recent, now, Window12Hours),
		Last24HoursCount:   uniqueSessions(s.recent, now, Window24Hours),
		TopPages:           asPageCounts(topN(s.pages, DefaultTopN)),
		Geographic:         asCountryCounts(topN(s.geographic, DefaultTopN)),
		TopReferrers:       asRefererCounts(topN(s.referrers, DefaultTopN)),
		BotCounts:          asNameCounts(topN(s.bots, DefaultTopN)),
		OSCounts:           asNameCounts(topN(s.oses, DefaultTopN)),
		BrowserCounts:      asNameCounts(topN(s.browsers, DefaultTopN)),
	}
}

func buildSnapshot(s *state, now time.Time) Snapshot {
	return Snapshot{
		Stats:          buildStats(s, now),
		RecentVisitors: visitViews(s.recent, 20, now),
		ActivityBuffer: visitViews(s.recent, 50, now),
	}
}

func visitViews(events []VisitEvent, limit int, now time.Time) []VisitView {
	if len(events) > limit {
		events = events[:limit]
	}
	views := make([]VisitView, len(events))
	for i, ev := range events {
		views[i] = newVisitView(ev, now)
	}
	return views
}
