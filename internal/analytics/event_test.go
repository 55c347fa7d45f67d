package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVisitEventDefaults(t *testing.T) {
	before := time.Now().UnixMilli()
	ev := NewVisitEvent(VisitEvent{Path: "/"})

	assert.GreaterOrEqual(t, ev.Timestamp, before)
	assert.Equal(t, "Unknown", ev.Browser)
	assert.Equal(t, "Unknown", ev.OS)
	assert.Equal(t, "desktop", ev.Device)
	assert.False(t, ev.Bot.IsBot())
}

func TestNewVisitEventKeepsExplicitFields(t *testing.T) {
	ev := NewVisitEvent(VisitEvent{Path: "/", Timestamp: 42, Browser: "Safari", OS: "iOS", Device: "mobile"})
	assert.Equal(t, int64(42), ev.Timestamp)
	assert.Equal(t, "Safari", ev.Browser)
}

// 非机器人序列化为 false，机器人输出名称，与前端契约一致
func TestBotNameJSON(t *testing.T) {
	b, err := json.Marshal(VisitEvent{Path: "/", Bot: ""})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"bot":false`)

	b, err = json.Marshal(VisitEvent{Path: "/", Bot: "GPTBot"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"bot":"GPTBot"`)

	var ev VisitEvent
	require.NoError(t, json.Unmarshal(b, &ev))
	assert.Equal(t, BotName("GPTBot"), ev.Bot)

	require.NoError(t, json.Unmarshal([]byte(`{"bot":false}`), &ev))
	assert.Equal(t, BotName(""), ev.Bot)
}

func TestTimeAgo(t *testing.T) {
	now := time.UnixMilli(10_000_000_000)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{5 * time.Second, "刚刚"},
		{30 * time.Second, "30 秒前"},
		{5 * time.Minute, "5 分钟前"},
		{3 * time.Hour, "3 小时前"},
		{48 * time.Hour, "2 天前"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, timeAgo(now.Add(-c.ago).UnixMilli(), now))
	}
}
