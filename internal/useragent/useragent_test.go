package useragent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uaChromeMac    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	uaSafariIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	uaEdgeWindows  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0"
	uaFirefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0"
	uaGooglebot    = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	uaGPTBot       = "Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko); compatible; GPTBot/1.0; +https://openai.com/gptbot"
)

func TestClassifyBrowsers(t *testing.T) {
	c := New()

	cases := []struct {
		ua      string
		browser string
		os      string
		device  string
	}{
		{uaChromeMac, "Chrome", "macOS", "desktop"},
		{uaSafariIPhone, "Safari", "iOS", "mobile"},
		{uaEdgeWindows, "Edge", "Windows", "desktop"},
		{uaFirefoxLinux, "Firefox", "Linux", "desktop"},
	}
	for _, tc := range cases {
		got := c.Classify(tc.ua)
		assert.Equal(t, tc.browser, got.Browser, tc.ua)
		assert.Equal(t, tc.os, got.OS, tc.ua)
		assert.Equal(t, tc.device, got.Device, tc.ua)
		assert.Empty(t, got.Bot, tc.ua)
	}
}

func TestClassifyBots(t *testing.T) {
	c := New()

	got := c.Classify(uaGooglebot)
	assert.Equal(t, "Googlebot", got.Bot)
	assert.Equal(t, "bot", got.Device)

	got = c.Classify(uaGPTBot)
	assert.Equal(t, "GPTBot", got.Bot)

	// 未收录的爬虫落到通配规则
	got = c.Classify("SomeNewCrawler/1.0")
	assert.Equal(t, "Generic Bot", got.Bot)
}

func TestClassifyEmptyAgent(t *testing.T) {
	got := New().Classify("")
	assert.Equal(t, Classification{Browser: "Unknown", OS: "Unknown", Device: "desktop"}, got)
}

func TestNewFromFileExtendsRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"- name: CafeMonitor\n  regex: CafeMonitor\n"), 0644))

	c, err := NewFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "CafeMonitor", c.Classify("CafeMonitor/2.0 probe").Bot)
	// 内置规则仍然生效
	assert.Equal(t, "Googlebot", c.Classify(uaGooglebot).Bot)
}

func TestNewFromFileFallsBackOnError(t *testing.T) {
	c, err := NewFromFile("/no/such/file.yaml")
	require.Error(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Googlebot", c.Classify(uaGooglebot).Bot)
}

func TestNewFromFileEmptyPath(t *testing.T) {
	c, err := NewFromFile("")
	require.NoError(t, err)
	assert.NotNil(t, c)
}
