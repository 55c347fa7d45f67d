package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config 服务配置（数据库凭据走环境变量，不落盘）
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Analytics AnalyticsConfig `toml:"analytics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`
}

// AnalyticsConfig 实时统计配置
type AnalyticsConfig struct {
	MailboxSize int    `toml:"mailbox_size"` // 聚合器邮箱容量
	BotsFile    string `toml:"bots_file"`    // 额外机器人规则（YAML），留空只用内置规则
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "4000",
			LogLevel: "info",
		},
		Analytics: AnalyticsConfig{
			MailboxSize: 1024,
		},
	}
}

// LoadOrInit 从 TOML 加载配置，文件不存在时生成默认配置
func LoadOrInit(path string, envOverride bool) (*Config, bool, error) {
	created := false

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		// 首次启动：先用 ENV 覆盖默认，再写入文件
		applyEnvOverrides(cfg)
		if err := writeToml(path, cfg); err != nil {
			slog.Warn("写入配置文件失败，将仅使用内存配置", "path", path, "error", err)
			return cfg, true, nil
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, created, err
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, created, err
	}

	// 存在则用环境变量覆盖配置（不写回文件）
	if envOverride {
		applyEnvOverrides(cfg)
	}

	return cfg, created, nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	return writeToml(path, c)
}

func writeToml[T any](path string, cfg T) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := dirOf(path); dir != "" {
		_ = os.MkdirAll(dir, 0755)
	}
	return os.WriteFile(path, b, 0644)
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, "/\\")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// applyEnvOverrides 读取环境变量并覆盖配置 不回写文件
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOCALCAFE_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOCALCAFE_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("LOCALCAFE_BOTS_FILE"); v != "" {
		cfg.Analytics.BotsFile = v
	}
}
