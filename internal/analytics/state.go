package analytics

import (
	"strings"
	"time"
)

const (
	// maxRecentVisitors 近期访客缓冲区容量，超出后淘汰最旧条目
	maxRecentVisitors = 100

	// retainWindow 缓冲区条目的最长保留时间，由清理定时器生效
	retainWindow = time.Hour
)

// internalHosts 内部来源匹配模式，命中的 Referer 不计入来源统计
var internalHosts = []string{"localhost", "127.0.0.1", "0.0.0.0"}

// state 聚合器的内存状态
// 仅由聚合器自身的 goroutine 读写，禁止共享
type state struct {
	recent     []VisitEvent // 最新在前
	pages      map[string]int
	geographic map[string]int
	referrers  map[string]int
	bots       map[string]int
	oses       map[string]int
	browsers   map[string]int
}

func newState() *state {
	return &state{
		pages:      make(map[string]int),
		geographic: make(map[string]int),
		referrers:  make(map[string]int),
		bots:       make(map[string]int),
		oses:       make(map[string]int),
		browsers:   make(map[string]int),
	}
}

// record 记录一次访问：插入缓冲区头部并按过滤规则累加各计数表
// 计数表只增不减，缓冲区淘汰不会回退计数
func (s *state) record(ev VisitEvent) {
	s.push(ev)
	s.count(ev)
}

// push 将事件插入缓冲区头部，超出容量时淘汰尾部
func (s *state) push(ev VisitEvent) {
	s.recent = append([]VisitEvent{ev}, s.recent...)
	if len(s.recent) > maxRecentVisitors {
		s.recent = s.recent[:maxRecentVisitors]
	}
}

func (s *state) count(ev VisitEvent) {
	s.pages[ev.Path]++

	if ev.Country != "" {
		s.geographic[ev.Country]++
	}
	if ev.Referer != "" && !isInternalReferer(ev.Referer) {
		s.referrers[ev.Referer]++
	}
	if ev.Bot.IsBot() {
		s.bots[string(ev.Bot)]++
	}
	if ev.OS != "" && ev.OS != "Unknown" {
		s.oses[ev.OS]++
	}
	if ev.Browser != "" && ev.Browser != "Unknown" && !ev.Bot.IsBot() {
		s.browsers[ev.Browser]++
	}
}

// evictOlderThan 淘汰时间戳早于 cutoff 的缓冲区条目
// 缓冲区按时间降序，找到第一个过期条目后截断即可
func (s *state) evictOlderThan(cutoff int64) int {
	for i, ev := range s.recent {
		if ev.Timestamp < cutoff {
			evicted := len(s.recent) - i
			s.recent = s.recent[:i]
			return evicted
		}
	}
	return 0
}

func isInternalReferer(referer string) bool {
	for _, host := range internalHosts {
		if strings.Contains(referer, host) {
			return true
		}
	}
	return false
}
