// Package analytics 实时访客统计聚合器
// 单 goroutine 持有全部状态，接入、查询、定时任务统一经由邮箱串行处理，
// 状态只存活在进程内存中，重启后靠冷启动回填恢复
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/visitstore"
)

// 广播事件名，与仪表盘前端约定
const (
	EventNewVisit      = "new_visit"
	EventStatsUpdate   = "stats_update"
	EventHourlyTraffic = "hourly_traffic_update"
)

const (
	// bootstrapSkipThreshold 回填触发时缓冲区达到该条数说明实时流量已填充，放弃回填
	bootstrapSkipThreshold = 10

	// bootstrapMaxRetries 回填查到空结果时的最多重试次数（共 3 次尝试）
	bootstrapMaxRetries = 2

	// storeQueryTimeout 持久化存储查询超时
	storeQueryTimeout = 10 * time.Second
)

// Publisher 广播发布接口，由 websocket 集线器实现
type Publisher interface {
	Publish(event string, payload any)
}

// Options 聚合器可调参数，零值使用默认配置
type Options struct {
	MailboxSize         int
	BootstrapDelay      time.Duration // 进程启动到首次回填尝试的延迟
	BootstrapRetryDelay time.Duration
	CleanupInterval     time.Duration
	StatsInterval       time.Duration
	HourlyInterval      time.Duration
	Now                 func() time.Time // 测试用时钟注入
}

func (o *Options) applyDefaults() {
	if o.MailboxSize <= 0 {
		o.MailboxSize = 1024
	}
	if o.BootstrapDelay <= 0 {
		o.BootstrapDelay = 3 * time.Second
	}
	if o.BootstrapRetryDelay <= 0 {
		o.BootstrapRetryDelay = 5 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = time.Minute
	}
	if o.HourlyInterval <= 0 {
		o.HourlyInterval = time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type msgKind int

const (
	msgVisit msgKind = iota
	msgQuery
	msgBootstrapResult
	msgHourlyResult
)

// message 邮箱消息，按 kind 取用对应字段
type message struct {
	kind  msgKind
	event VisitEvent
	query func(s *state, now time.Time) any
	reply chan any
	rows  []visitstore.VisitRow
	err   error
	retry int
	hist  []int
}

// Aggregator 实时统计聚合器
// 通过 New 构造、Start 启动、Stop 停止，存储与发布端依赖注入
type Aggregator struct {
	store visitstore.Reader
	pub   Publisher
	opts  Options

	mailbox  chan message
	stopChan chan struct{}
	wg       sync.WaitGroup

	// 以下字段仅在聚合器自身的 goroutine 中访问
	state         *state
	bootTimer     *time.Timer
	bootRetry     int
	bootDone      bool
	bootInFlight  bool
	hourlyQueries sync.WaitGroup
}

// New 创建聚合器，store 与 pub 允许为 nil（对应能力自动降级）
func New(store visitstore.Reader, pub Publisher, opts Options) *Aggregator {
	opts.applyDefaults()
	return &Aggregator{
		store:    store,
		pub:      pub,
		opts:     opts,
		mailbox:  make(chan message, opts.MailboxSize),
		stopChan: make(chan struct{}),
		state:    newState(),
	}
}

// Start 启动聚合器 goroutine
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop 停止聚合器，处理完邮箱中剩余的消息后返回
func (a *Aggregator) Stop() {
	close(a.stopChan)
	a.wg.Wait()
}

// Ingest 接收一次访问事件，不阻塞调用方
// 邮箱已满时直接丢弃（尽力投递，不保证恰好一次）
func (a *Aggregator) Ingest(ev VisitEvent) {
	select {
	case a.mailbox <- message{kind: msgVisit, event: NewVisitEvent(ev)}:
	default:
		slog.Debug("聚合器邮箱已满，丢弃访问事件", "path", ev.Path)
	}
}

// run 聚合器主循环，所有状态变更都在这里串行执行
// 三个周期定时器各自在处理完成后重新压入下一轮，不做固定频率漂移纠正
func (a *Aggregator) run() {
	defer a.wg.Done()

	a.bootTimer = time.NewTimer(a.opts.BootstrapDelay)
	cleanup := time.NewTimer(a.opts.CleanupInterval)
	stats := time.NewTimer(a.opts.StatsInterval)
	hourly := time.NewTimer(a.opts.HourlyInterval)
	defer a.bootTimer.Stop()
	defer cleanup.Stop()
	defer stats.Stop()
	defer hourly.Stop()

	for {
		select {
		case msg := <-a.mailbox:
			a.handle(msg)
		case <-a.bootTimer.C:
			a.onBootstrapAttempt(a.bootRetry)
		case <-cleanup.C:
			a.onCleanupTick()
			cleanup.Reset(a.opts.CleanupInterval)
		case <-stats.C:
			a.onStatsBroadcastTick()
			stats.Reset(a.opts.StatsInterval)
		case <-hourly.C:
			a.onHourlyBroadcastTick()
			hourly.Reset(a.opts.HourlyInterval)
		case <-a.stopChan:
			// 处理剩余消息，保证排队中的查询得到应答
			for {
				select {
				case msg := <-a.mailbox:
					a.handle(msg)
				default:
					a.hourlyQueries.Wait()
					return
				}
			}
		}
	}
}

func (a *Aggregator) handle(msg message) {
	switch msg.kind {
	case msgVisit:
		a.onVisit(msg.event)
	case msgQuery:
		msg.reply <- msg.query(a.state, a.opts.Now())
	case msgBootstrapResult:
		a.onBootstrapResult(msg.rows, msg.err, msg.retry)
	case msgHourlyResult:
		a.publish(EventHourlyTraffic, HourlyTraffic{HourlyTraffic: msg.hist})
	}
}

// onVisit 记录访问并立即推送 new_visit 与最新统计
func (a *Aggregator) onVisit(ev VisitEvent) {
	a.state.record(ev)
	now := a.opts.Now()
	a.publish(EventNewVisit, newVisitView(ev, now))
	a.publish(EventStatsUpdate, buildStats(a.state, now))
}

// onCleanupTick 淘汰缓冲区中超过保留时限的条目
func (a *Aggregator) onCleanupTick() {
	cutoff := a.opts.Now().Add(-retainWindow).UnixMilli()
	if evicted := a.state.evictOlderThan(cutoff); evicted > 0 {
		slog.Debug("已清理过期访客记录", "evicted", evicted, "remaining", len(a.state.recent))
	}
}

func (a *Aggregator) onStatsBroadcastTick() {
	a.publish(EventStatsUpdate, buildStats(a.state, a.opts.Now()))
}

// onHourlyBroadcastTick 发起小时流量的持久化查询
// 查询在独立 goroutine 中执行，结果以消息形式送回，主循环不因存储慢而停摆；
// 上一轮查询未返回时本轮照常发起，后到的结果覆盖先到的
func (a *Aggregator) onHourlyBroadcastTick() {
	if a.store == nil {
		a.publish(EventHourlyTraffic, HourlyTraffic{HourlyTraffic: emptyHistogram()})
		return
	}
	since := a.opts.Now().Add(-time.Hour)
	a.hourlyQueries.Add(1)
	go func() {
		defer a.hourlyQueries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
		defer cancel()

		hist := emptyHistogram()
		rows, err := a.store.SessionsSince(ctx, since)
		if err != nil {
			slog.Warn("小时流量查询失败，返回全零直方图", "error", err)
		} else {
			hist = histogramFromSessions(rows, a.opts.Now())
		}
		a.send(message{kind: msgHourlyResult, hist: hist})
	}()
}

// onBootstrapAttempt 冷启动回填：进程启动后用存储中最近一小时的数据重建状态
// 实时流量已填充缓冲区时直接放弃
func (a *Aggregator) onBootstrapAttempt(retry int) {
	if a.bootDone || a.bootInFlight {
		return
	}
	if len(a.state.recent) >= bootstrapSkipThreshold {
		a.bootDone = true
		slog.Debug("缓冲区已有实时数据，跳过冷启动回填", "size", len(a.state.recent))
		return
	}
	if a.store == nil {
		a.bootDone = true
		slog.Info("未配置持久化存储，跳过冷启动回填")
		return
	}

	since := a.opts.Now().Add(-time.Hour)
	a.bootInFlight = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
		defer cancel()

		rows, err := a.store.RecentVisits(ctx, since)
		a.send(message{kind: msgBootstrapResult, rows: rows, err: err, retry: retry})
	}()
}

// onBootstrapResult 处理回填查询结果
// 查询失败按空结果处理（存储可能还在启动中），空结果最多重试 bootstrapMaxRetries 次；
// 成功则整体重建状态（计数表来自完整一小时的数据，缓冲区截取最新 100 条）
func (a *Aggregator) onBootstrapResult(rows []visitstore.VisitRow, err error, retry int) {
	a.bootInFlight = false

	if err != nil {
		slog.Warn("冷启动回填查询失败，按空结果处理", "error", err, "attempt", retry+1)
		rows = nil
	}
	if len(rows) == 0 {
		if retry < bootstrapMaxRetries {
			a.bootRetry = retry + 1
			a.bootTimer.Reset(a.opts.BootstrapRetryDelay)
			slog.Info("存储中暂无最近一小时的访问数据，稍后重试回填", "attempt", retry+1)
			return
		}
		a.bootDone = true
		slog.Info("冷启动回填结束，未获得历史数据", "attempts", retry+1)
		return
	}

	a.bootDone = true
	if len(a.state.recent) >= bootstrapSkipThreshold {
		// 查询在途期间实时流量已填充，放弃覆盖
		slog.Debug("回填期间缓冲区已被实时流量填充，丢弃回填结果")
		return
	}
	a.state = stateFromRows(rows)
	slog.Info("已从持久化存储回填聚合状态", "rows", len(rows), "buffered", len(a.state.recent))
}

// stateFromRows 用存储行整体重建状态
// 行按时间降序，计数表累加全部行，缓冲区只保留最新 100 条
func stateFromRows(rows []visitstore.VisitRow) *state {
	s := newState()
	for _, row := range rows {
		ev := VisitEvent{
			Path:      row.Path,
			Agent:     row.Agent,
			IP:        row.IP,
			Country:   row.Country,
			Referer:   row.Referer,
			SessionID: row.SessionID,
			Timestamp: row.InsertedAt.UnixMilli(),
			Browser:   row.Browser,
			OS:        row.OS,
			Device:    row.Device,
			Bot:       BotName(row.Bot),
		}
		s.count(ev)
		if len(s.recent) < maxRecentVisitors {
			s.recent = append(s.recent, ev)
		}
	}
	return s
}

func (a *Aggregator) publish(event string, payload any) {
	if a.pub == nil {
		return
	}
	a.pub.Publish(event, payload)
}

// send 从工作 goroutine 向邮箱投递结果，聚合器停止后放弃投递
func (a *Aggregator) send(msg message) {
	select {
	case a.mailbox <- msg:
	case <-a.stopChan:
	}
}
