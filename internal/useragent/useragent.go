// Package useragent User-Agent 分类器
// 纯函数式：原始 UA 字符串映射到 {浏览器, 系统, 设备, 机器人}
// 机器人规则内置默认值，可用 YAML 文件扩展
package useragent

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Classification UA 分类结果
type Classification struct {
	Browser string
	OS      string
	Device  string
	Bot     string // 空字符串表示非机器人
}

// BotRule 机器人识别规则
type BotRule struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

type compiledRule struct {
	name string
	re   *regexp.Regexp
}

// Classifier UA 分类器
type Classifier struct {
	bots []compiledRule
}

// New 创建使用内置规则的分类器
func New() *Classifier {
	c, err := compile(defaultBotRules)
	if err != nil {
		// 内置规则保证可编译
		panic(err)
	}
	return c
}

// NewFromFile 创建分类器并追加 YAML 文件中的机器人规则
// 文件缺失或非法时退回内置规则并返回错误，调用方可以只记日志
func NewFromFile(path string) (*Classifier, error) {
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return New(), fmt.Errorf("读取机器人规则文件失败: %w", err)
	}
	var rules []BotRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return New(), fmt.Errorf("解析机器人规则文件失败: %w", err)
	}

	c, err := compile(append(rules, defaultBotRules...))
	if err != nil {
		return New(), err
	}
	return c, nil
}

func compile(rules []BotRule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Regex == "" {
			continue
		}
		rx := r.Regex
		if !strings.HasPrefix(rx, "(?i)") {
			rx = "(?i)" + rx
		}
		re, err := regexp.Compile(rx)
		if err != nil {
			return nil, fmt.Errorf("机器人规则 %q 非法: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, re: re})
	}
	return &Classifier{bots: compiled}, nil
}

// Classify 对原始 UA 分类，识别不出的字段退化为 Unknown/desktop
func (c *Classifier) Classify(raw string) Classification {
	if raw == "" {
		return Classification{Browser: "Unknown", OS: "Unknown", Device: "desktop"}
	}

	out := Classification{
		Browser: detectBrowser(raw),
		OS:      detectOS(raw),
		Bot:     c.detectBot(raw),
	}
	out.Device = detectDevice(raw, out.Bot)
	return out
}

func (c *Classifier) detectBot(raw string) string {
	for _, rule := range c.bots {
		if rule.re.MatchString(raw) {
			return rule.name
		}
	}
	return ""
}

// 浏览器匹配有顺序依赖：Chrome 系 UA 都带 Safari 标记，
// Edge/Opera 又都带 Chrome 标记，必须从最具体的开始
func detectBrowser(raw string) string {
	switch {
	case strings.Contains(raw, "MicroMessenger"):
		return "WeChat"
	case strings.Contains(raw, "Edg/") || strings.Contains(raw, "Edge/"):
		return "Edge"
	case strings.Contains(raw, "OPR/") || strings.Contains(raw, "Opera"):
		return "Opera"
	case strings.Contains(raw, "UCBrowser"):
		return "UC Browser"
	case strings.Contains(raw, "Firefox/"):
		return "Firefox"
	case strings.Contains(raw, "Chrome/") || strings.Contains(raw, "CriOS"):
		return "Chrome"
	case strings.Contains(raw, "Safari/"):
		return "Safari"
	case strings.Contains(raw, "MSIE") || strings.Contains(raw, "Trident/"):
		return "Internet Explorer"
	default:
		return "Unknown"
	}
}

func detectOS(raw string) string {
	switch {
	case strings.Contains(raw, "HarmonyOS"):
		return "HarmonyOS"
	case strings.Contains(raw, "Windows"):
		return "Windows"
	case strings.Contains(raw, "iPhone") || strings.Contains(raw, "iPad") || strings.Contains(raw, "iPod"):
		return "iOS"
	case strings.Contains(raw, "Macintosh") || strings.Contains(raw, "Mac OS X"):
		return "macOS"
	case strings.Contains(raw, "Android"):
		return "Android"
	case strings.Contains(raw, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func detectDevice(raw, bot string) string {
	switch {
	case bot != "":
		return "bot"
	case strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet"):
		return "tablet"
	case strings.Contains(raw, "Mobile") || strings.Contains(raw, "iPhone"):
		return "mobile"
	default:
		return "desktop"
	}
}

// defaultBotRules 内置机器人规则，末尾的通配规则兜底
var defaultBotRules = []BotRule{
	{Name: "Googlebot", Regex: `Googlebot`},
	{Name: "Bingbot", Regex: `bingbot`},
	{Name: "Baiduspider", Regex: `Baiduspider`},
	{Name: "YandexBot", Regex: `YandexBot`},
	{Name: "DuckDuckBot", Regex: `DuckDuckBot`},
	{Name: "GPTBot", Regex: `GPTBot`},
	{Name: "ClaudeBot", Regex: `ClaudeBot|Claude-Web`},
	{Name: "PerplexityBot", Regex: `PerplexityBot`},
	{Name: "Bytespider", Regex: `Bytespider`},
	{Name: "AhrefsBot", Regex: `AhrefsBot`},
	{Name: "SemrushBot", Regex: `SemrushBot`},
	{Name: "FacebookBot", Regex: `facebookexternalhit|FacebookBot`},
	{Name: "Slackbot", Regex: `Slackbot`},
	{Name: "TelegramBot", Regex: `TelegramBot`},
	{Name: "UptimeRobot", Regex: `UptimeRobot`},
	{Name: "Generic Bot", Regex: `bot\b|crawler|spider|crawling|scraper`},
}
