package analytics

import "sort"

// DefaultTopN 排行榜默认条目数
const DefaultTopN = 10

// Entry 排行榜条目
type Entry struct {
	Name  string
	Count int
}

// topN 对计数表按次数降序排序并截取前 limit 条
// Go 的 map 没有稳定的遍历顺序，同次数时按名称升序保证结果可复现
func topN(counts map[string]int, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultTopN
	}
	entries := make([]Entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, Entry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// 各计数表对外的标签字段不同，下面是面向仪表盘的投影类型

// PageCount 页面访问计数
type PageCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// CountryCount 国家访问计数
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// RefererCount 来源访问计数
type RefererCount struct {
	Referer string `json:"referrer"`
	Count   int    `json:"count"`
}

// NameCount 通用名称计数（机器人/操作系统/浏览器）
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func asPageCounts(entries []Entry) []PageCount {
	out := make([]PageCount, len(entries))
	for i, e := range entries {
		out[i] = PageCount{Path: e.Name, Count: e.Count}
	}
	return out
}

func asCountryCounts(entries []Entry) []CountryCount {
	out := make([]CountryCount, len(entries))
	for i, e := range entries {
		out[i] = CountryCount{Country: e.Name, Count: e.Count}
	}
	return out
}

func asRefererCounts(entries []Entry) []RefererCount {
	out := make([]RefererCount, len(entries))
	for i, e := range entries {
		out[i] = RefererCount{Referer: e.Name, Count: e.Count}
	}
	return out
}

func asNameCounts(entries []Entry) []NameCount {
	out := make([]NameCount, len(entries))
	for i, e := range entries {
		out[i] = NameCount{Name: e.Name, Count: e.Count}
	}
	return out
}
