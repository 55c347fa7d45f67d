package analytics

import "time"

// 查询走与接入相同的邮箱做请求/应答，
// 返回的是处理该查询时刻的一致快照，不存在半更新可见性
// 所有查询只读内存状态，不触发任何 I/O

// ask 向聚合器投递查询并等待应答，聚合器已停止时返回 nil
func (a *Aggregator) ask(fn func(s *state, now time.Time) any) any {
	reply := make(chan any, 1)
	select {
	case a.mailbox <- message{kind: msgQuery, query: fn, reply: reply}:
	case <-a.stopChan:
		return nil
	}
	select {
	case v := <-reply:
		return v
	case <-a.stopChan:
		return nil
	}
}

// WindowCount 返回窗口内的独立会话数，window 取 Window* 常量之一
func (a *Aggregator) WindowCount(window time.Duration) int {
	v, _ := a.ask(func(s *state, now time.Time) any {
		return uniqueSessions(s.recent, now, window)
	}).(int)
	return v
}

// TopPages 页面访问排行
func (a *Aggregator) TopPages(limit int) []PageCount {
	v, _ := a.ask(func(s *state, _ time.Time) any {
		return asPageCounts(topN(s.pages, limit))
	}).([]PageCount)
	return v
}

// Geographic 国家访问排行
func (a *Aggregator) Geographic(limit int) []CountryCount {
	v, _ := a.ask(func(s *state, _ time.Time) any {
		return asCountryCounts(topN(s.geographic, limit))
	}).([]CountryCount)
	return v
}

// TopReferrers 外部来源排行
func (a *Aggregator) TopReferrers(limit int) []RefererCount {
	v, _ := a.ask(func(s *state, _ time.Time) any {
		return asRefererCounts(topN(s.referrers, limit))
	}).([]RefererCount)
	return v
}

// BotCounts 机器人访问排行
func (a *Aggregator) BotCounts(limit int) []NameCount {
	v, _ := a.ask(func(s *state, _ time.Time) any {
		return asNameCounts(topN(s.bots, limit))
	}).([]NameCount)
	return v
}

// OSCounts 操作系统排行
func (a *Aggregator) OSCounts(limit int) []NameCount {
	v, _ := a.ask(func(s *state, _ time.Time) any {
		return asNameCounts(topN(s.oses, limit))
	}).([]NameCount)
	return v
}

// BrowserCounts 浏览器排行
func (a *Aggregator) BrowserCounts(limit int) []NameCount {
	v, _ := a.ask(func(s *state, _ time.Time) any {
		return asNameCounts(topN(s.browsers, limit))
	}).([]NameCount)
	return v
}

// RecentVisitors 最近访客列表，默认上限 20
func (a *Aggregator) RecentVisitors(limit int) []VisitView {
	if limit <= 0 {
		limit = 20
	}
	v, _ := a.ask(func(s *state, now time.Time) any {
		return visitViews(s.recent, limit, now)
	}).([]VisitView)
	return v
}

// ActivityBuffer 活动流列表，默认上限 50
func (a *Aggregator) ActivityBuffer(limit int) []VisitView {
	if limit <= 0 {
		limit = 50
	}
	v, _ := a.ask(func(s *state, now time.Time) any {
		return visitViews(s.recent, limit, now)
	}).([]VisitView)
	return v
}

// FullSnapshot 仪表盘首次加载用的完整快照
func (a *Aggregator) FullSnapshot() Snapshot {
	v, _ := a.ask(func(s *state, now time.Time) any {
		return buildSnapshot(s, now)
	}).(Snapshot)
	return v
}

// HourlyHistogram 基于内存缓冲区的小时流量直方图
// 缓冲区覆盖不到完整一小时时会低估，定时广播走持久化查询路径
func (a *Aggregator) HourlyHistogram() []int {
	v, _ := a.ask(func(s *state, now time.Time) any {
		return histogramFromEvents(s.recent, now)
	}).([]int)
	if v == nil {
		return emptyHistogram()
	}
	return v
}
