package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/visitstore"
)

type published struct {
	event   string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event: event, payload: payload})
}

func (p *fakePublisher) byEvent(name string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, e := range p.events {
		if e.event == name {
			out = append(out, e.payload)
		}
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	visits   []visitstore.VisitRow
	sessions []visitstore.SessionRow
	visitErr error
	sessErr  error
	calls    int
}

func (s *fakeStore) RecentVisits(_ context.Context, _ time.Time) ([]visitstore.VisitRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.visits, s.visitErr
}

func (s *fakeStore) SessionsSince(_ context.Context, _ time.Time) ([]visitstore.SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions, s.sessErr
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// 测试用聚合器：固定时钟，定时器拉到远处避免干扰
func newTestAggregator(store visitstore.Reader, pub Publisher, now time.Time) *Aggregator {
	a := New(store, pub, Options{
		BootstrapDelay:  time.Hour,
		CleanupInterval: time.Hour,
		StatsInterval:   time.Hour,
		HourlyInterval:  time.Hour,
		Now:             func() time.Time { return now },
	})
	a.Start()
	return a
}

func TestIngestPublishesVisitAndStats(t *testing.T) {
	pub := &fakePublisher{}
	now := time.UnixMilli(1_000_000)
	a := newTestAggregator(nil, pub, now)
	defer a.Stop()

	a.Ingest(VisitEvent{Path: "/menu", SessionID: "s1", Country: "CN",
		Browser: "Chrome", OS: "macOS", Timestamp: now.UnixMilli()})

	// 查询与接入共用邮箱，排在接入之后，返回即代表事件已处理
	assert.Equal(t, 1, a.WindowCount(WindowMinute))

	visits := pub.byEvent(EventNewVisit)
	require.Len(t, visits, 1)
	view := visits[0].(VisitView)
	assert.Equal(t, "/menu", view.Path)
	assert.Equal(t, "刚刚", view.TimeAgo)

	updates := pub.byEvent(EventStatsUpdate)
	require.Len(t, updates, 1)
	stats := updates[0].(Stats)
	assert.Equal(t, 1, stats.LastMinuteCount)
	assert.Equal(t, []PageCount{{Path: "/menu", Count: 1}}, stats.TopPages)
	assert.Equal(t, []CountryCount{{Country: "CN", Count: 1}}, stats.Geographic)
}

func TestIngestRoundTripTopPages(t *testing.T) {
	now := time.UnixMilli(5_000_000)
	a := newTestAggregator(nil, nil, now)
	defer a.Stop()

	const n = 5
	for i := 0; i < n; i++ {
		a.Ingest(VisitEvent{Path: "/menu", SessionID: fmt.Sprintf("s%d", i), Timestamp: now.UnixMilli()})
	}

	snap := a.FullSnapshot()
	require.NotEmpty(t, snap.TopPages)
	assert.Equal(t, PageCount{Path: "/menu", Count: n}, snap.TopPages[0])
	assert.Equal(t, n, snap.LastMinuteCount)
	assert.Len(t, snap.RecentVisitors, n)
}

func TestWindowQueriesOverIngestedEvents(t *testing.T) {
	now := time.UnixMilli(61_500)
	a := newTestAggregator(nil, nil, now)
	defer a.Stop()

	for _, ts := range []int64{0, 1000, 61_000} {
		a.Ingest(VisitEvent{Path: "/", SessionID: "s1", Timestamp: ts})
	}

	assert.Equal(t, 1, a.WindowCount(WindowMinute))
	assert.Equal(t, 1, a.WindowCount(Window30Minutes))
}

func TestRefererFilterThroughIngest(t *testing.T) {
	now := time.Now()
	a := newTestAggregator(nil, nil, now)
	defer a.Stop()

	a.Ingest(VisitEvent{Path: "/", SessionID: "a", Referer: "http://localhost:4000/", Timestamp: now.UnixMilli()})
	a.Ingest(VisitEvent{Path: "/", SessionID: "b", Referer: "https://google.com", Timestamp: now.UnixMilli()})

	refs := a.TopReferrers(10)
	require.Len(t, refs, 1)
	assert.Equal(t, RefererCount{Referer: "https://google.com", Count: 1}, refs[0])
}

// 存储不可达：3 秒 + 5 秒 + 5 秒共 3 次尝试后放弃，状态保持为空
func TestBootstrapGivesUpAgainstUnreachableStore(t *testing.T) {
	store := &fakeStore{visitErr: errors.New("dial tcp: connection refused")}
	a := New(store, nil, Options{
		BootstrapDelay:      5 * time.Millisecond,
		BootstrapRetryDelay: 5 * time.Millisecond,
		CleanupInterval:     time.Hour,
		StatsInterval:       time.Hour,
		HourlyInterval:      time.Hour,
	})
	a.Start()
	defer a.Stop()

	assert.Eventually(t, func() bool { return store.callCount() == 3 },
		time.Second, time.Millisecond)

	// 不再有第 4 次尝试
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, store.callCount())

	assert.Equal(t, 0, a.WindowCount(WindowHour))
	assert.Empty(t, a.RecentVisitors(20))
}

func TestBootstrapRebuildsStateFromStore(t *testing.T) {
	now := time.Now()
	var rows []visitstore.VisitRow
	for i := 0; i < 120; i++ {
		rows = append(rows, visitstore.VisitRow{
			Path:       "/menu",
			Country:    "CN",
			SessionID:  fmt.Sprintf("s%d", i),
			InsertedAt: now.Add(-time.Duration(i) * time.Second),
			Browser:    "Chrome",
			OS:         "macOS",
			Device:     "desktop",
		})
	}
	store := &fakeStore{visits: rows}
	a := New(store, nil, Options{
		BootstrapDelay:  5 * time.Millisecond,
		CleanupInterval: time.Hour,
		StatsInterval:   time.Hour,
		HourlyInterval:  time.Hour,
		Now:             func() time.Time { return now },
	})
	a.Start()
	defer a.Stop()

	assert.Eventually(t, func() bool {
		return a.WindowCount(WindowHour) > 0
	}, time.Second, time.Millisecond)

	snap := a.FullSnapshot()
	// 计数表来自完整的 120 行，缓冲区只保留最新 100 条
	assert.Equal(t, PageCount{Path: "/menu", Count: 120}, snap.TopPages[0])
	assert.Len(t, a.ActivityBuffer(50), 50)
	assert.Equal(t, 100, a.WindowCount(WindowHour))
}

func TestBootstrapSkippedWhenLiveTrafficArrived(t *testing.T) {
	now := time.Now()
	store := &fakeStore{visits: []visitstore.VisitRow{{Path: "/old", SessionID: "x", InsertedAt: now}}}
	a := New(store, nil, Options{
		BootstrapDelay:  50 * time.Millisecond,
		CleanupInterval: time.Hour,
		StatsInterval:   time.Hour,
		HourlyInterval:  time.Hour,
		Now:             func() time.Time { return now },
	})
	a.Start()
	defer a.Stop()

	// 回填触发前实时流量已填满阈值
	for i := 0; i < bootstrapSkipThreshold; i++ {
		a.Ingest(VisitEvent{Path: "/live", SessionID: fmt.Sprintf("s%d", i), Timestamp: now.UnixMilli()})
	}
	require.Equal(t, bootstrapSkipThreshold, a.WindowCount(WindowMinute))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, store.callCount())
	top := a.TopPages(10)
	require.NotEmpty(t, top)
	assert.Equal(t, "/live", top[0].Path)
}

func TestHourlyBroadcastFromStore(t *testing.T) {
	now := time.Now()
	pub := &fakePublisher{}
	store := &fakeStore{sessions: []visitstore.SessionRow{
		{SessionID: "a", InsertedAt: now},
		{SessionID: "b", InsertedAt: now.Add(-10 * time.Minute)},
	}}
	a := New(store, pub, Options{
		BootstrapDelay:  time.Hour,
		CleanupInterval: time.Hour,
		StatsInterval:   time.Hour,
		HourlyInterval:  10 * time.Millisecond,
		Now:             func() time.Time { return now },
	})
	a.Start()
	defer a.Stop()

	assert.Eventually(t, func() bool {
		return len(pub.byEvent(EventHourlyTraffic)) > 0
	}, time.Second, time.Millisecond)

	payload := pub.byEvent(EventHourlyTraffic)[0].(HourlyTraffic)
	require.Len(t, payload.HourlyTraffic, HistogramBuckets)
	assert.Equal(t, 1, payload.HourlyTraffic[0])
	assert.Equal(t, 1, payload.HourlyTraffic[10])
}

// 存储查询失败时仪表盘仍收到长度 60 的全零数组
func TestHourlyBroadcastFallsBackToZeros(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{sessErr: errors.New("driver: bad connection")}
	a := New(store, pub, Options{
		BootstrapDelay:  time.Hour,
		CleanupInterval: time.Hour,
		StatsInterval:   time.Hour,
		HourlyInterval:  10 * time.Millisecond,
	})
	a.Start()
	defer a.Stop()

	assert.Eventually(t, func() bool {
		return len(pub.byEvent(EventHourlyTraffic)) > 0
	}, time.Second, time.Millisecond)

	payload := pub.byEvent(EventHourlyTraffic)[0].(HourlyTraffic)
	require.Len(t, payload.HourlyTraffic, HistogramBuckets)
	for _, n := range payload.HourlyTraffic {
		assert.Zero(t, n)
	}
}

func TestCleanupEvictsStaleBufferEntries(t *testing.T) {
	now := time.Now()
	a := New(nil, nil, Options{
		BootstrapDelay:  time.Hour,
		CleanupInterval: 10 * time.Millisecond,
		StatsInterval:   time.Hour,
		HourlyInterval:  time.Hour,
		Now:             func() time.Time { return now },
	})
	a.Start()
	defer a.Stop()

	a.Ingest(VisitEvent{Path: "/stale", SessionID: "old", Timestamp: now.Add(-2 * time.Hour).UnixMilli()})
	a.Ingest(VisitEvent{Path: "/fresh", SessionID: "new", Timestamp: now.UnixMilli()})

	assert.Eventually(t, func() bool {
		return len(a.ActivityBuffer(50)) == 1
	}, time.Second, time.Millisecond)

	// 淘汰只影响缓冲区，计数表不回退
	pages := a.TopPages(10)
	assert.Len(t, pages, 2)
}

func TestStatsBroadcastTick(t *testing.T) {
	pub := &fakePublisher{}
	a := New(nil, pub, Options{
		BootstrapDelay:  time.Hour,
		CleanupInterval: time.Hour,
		StatsInterval:   10 * time.Millisecond,
		HourlyInterval:  time.Hour,
	})
	a.Start()
	defer a.Stop()

	assert.Eventually(t, func() bool {
		return len(pub.byEvent(EventStatsUpdate)) > 0
	}, time.Second, time.Millisecond)

	stats := pub.byEvent(EventStatsUpdate)[0].(Stats)
	assert.Zero(t, stats.LastHourCount)
	assert.Empty(t, stats.TopPages)
}

// 邮箱满时接入不阻塞调用方
func TestIngestNeverBlocks(t *testing.T) {
	a := New(nil, nil, Options{MailboxSize: 1})
	// 不启动主循环，第二条起只能丢弃
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			a.Ingest(VisitEvent{Path: "/", SessionID: "s"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Ingest 阻塞了调用方")
	}
}

func TestQueriesAfterStopReturnZeroValues(t *testing.T) {
	a := newTestAggregator(nil, nil, time.Now())
	a.Stop()

	assert.Equal(t, 0, a.WindowCount(WindowHour))
	assert.Empty(t, a.RecentVisitors(20))
	assert.Len(t, a.HourlyHistogram(), HistogramBuckets)
}
