package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Local-Cafe/localcafe-full-sub000/internal/analytics"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/broadcast"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/config"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/logging"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/server"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/tracker"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/useragent"
	"github.com/Local-Cafe/localcafe-full-sub000/internal/visitstore"
)

const configPath = "config.toml"

func main() {
	// 加载配置
	cfg, created, err := config.LoadOrInit(configPath, true)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if created {
		slog.Info("已生成默认配置文件", "path", configPath)
	}

	// 设置日志级别
	logging.SetLevelWithStr(cfg.Server.LogLevel)

	// 初始化持久化存储
	// 存储不可用不阻止启动：聚合器和写入器都有降级逻辑
	store, writer := initStore()

	// UA 分类器
	classifier, err := useragent.NewFromFile(cfg.Analytics.BotsFile)
	if err != nil {
		slog.Warn("加载机器人规则失败，使用内置规则", "error", err)
	}

	// 广播集线器与聚合器
	hub := broadcast.NewHub()
	var reader visitstore.Reader
	if store != nil {
		reader = store
	}
	agg := analytics.New(reader, hub.Topic(broadcast.TopicAnalytics), analytics.Options{
		MailboxSize: cfg.Analytics.MailboxSize,
	})
	agg.Start()

	if writer != nil {
		writer.Start()
	}

	// 创建并启动服务器
	trk := tracker.New(agg, enqueuerOrNil(writer), classifier)
	srv := server.New(cfg, agg, hub, trk, sqlDB(store))

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("❌ 服务器启动失败: %v\n", err)
			os.Exit(1)
		}
	}()

	// 等待退出信号后按依赖顺序停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("收到退出信号，开始停机")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("服务器停机异常", "error", err)
	}
	agg.Stop()
	if writer != nil {
		writer.Stop()
	}
	hub.Close()
	if store != nil {
		_ = store.Close()
	}
}

// initStore 打开 MySQL 并初始化表结构
// 任何一步失败都降级为无存储模式（只有内存统计，无回填、无小时直方图）
func initStore() (*visitstore.MySQL, *visitstore.Writer) {
	store, err := visitstore.Open()
	if err != nil {
		slog.Warn("打开持久化存储失败，以无存储模式运行", "error", err)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		// 存储可能还在启动中，不致命：聚合器的冷启动回填自带重试
		slog.Warn("持久化存储暂不可达", "error", err)
	} else if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("初始化表结构失败", "error", err)
	}
	return store, visitstore.NewWriter(store)
}

func enqueuerOrNil(w *visitstore.Writer) tracker.Enqueuer {
	if w == nil {
		return nil
	}
	return w
}

func sqlDB(store *visitstore.MySQL) *sql.DB {
	if store == nil {
		return nil
	}
	return store.DB()
}
