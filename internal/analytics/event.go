package analytics

import (
	"encoding/json"
	"time"
)

// BotName 机器人名称，空字符串表示非机器人
// 序列化时与前端约定保持一致：非机器人输出 false
type BotName string

// IsBot 是否为机器人访问
func (b BotName) IsBot() bool {
	return b != ""
}

func (b BotName) MarshalJSON() ([]byte, error) {
	if b == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(b))
}

func (b *BotName) UnmarshalJSON(data []byte) error {
	if string(data) == "false" || string(data) == "null" {
		*b = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = BotName(s)
	return nil
}

// VisitEvent 单次页面访问事件
// 在接入边界创建后不再修改
type VisitEvent struct {
	Path      string  `json:"path"`
	Agent     string  `json:"agent"`
	IP        string  `json:"ip"`
	Country   string  `json:"country"` // ISO 国家代码，未知时为空
	Referer   string  `json:"referer"`
	SessionID string  `json:"session_id"`
	Timestamp int64   `json:"timestamp"` // Unix 毫秒
	Browser   string  `json:"browser"`
	OS        string  `json:"os"`
	Device    string  `json:"device"`
	Bot       BotName `json:"bot"`
}

// NewVisitEvent 创建访问事件，缺失的可选字段退化为默认值而不是报错
func NewVisitEvent(ev VisitEvent) VisitEvent {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	if ev.Browser == "" {
		ev.Browser = "Unknown"
	}
	if ev.OS == "" {
		ev.OS = "Unknown"
	}
	if ev.Device == "" {
		ev.Device = "desktop"
	}
	return ev
}

// Time 返回事件时间
func (ev VisitEvent) Time() time.Time {
	return time.UnixMilli(ev.Timestamp)
}

// VisitView 推送给仪表盘的访问事件视图，附带人类可读的相对时间
type VisitView struct {
	Path      string  `json:"path"`
	Country   string  `json:"country"`
	Agent     string  `json:"agent"`
	Browser   string  `json:"browser"`
	OS        string  `json:"os"`
	Device    string  `json:"device"`
	Bot       BotName `json:"bot"`
	IP        string  `json:"ip"`
	SessionID string  `json:"session_id"`
	Timestamp int64   `json:"timestamp"`
	TimeAgo   string  `json:"time_ago"`
}

func newVisitView(ev VisitEvent, now time.Time) VisitView {
	return VisitView{
		Path:      ev.Path,
		Country:   ev.Country,
		Agent:     ev.Agent,
		Browser:   ev.Browser,
		OS:        ev.OS,
		Device:    ev.Device,
		Bot:       ev.Bot,
		IP:        ev.IP,
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
		TimeAgo:   timeAgo(ev.Timestamp, now),
	}
}
