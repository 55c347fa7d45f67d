package visitstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	writerBufferSize    = 1024
	writerFlushInterval = 5 * time.Second
	writerMaxBatch      = 100
	writerFlushTimeout  = 10 * time.Second
)

// BatchInserter 批量写入接口，由 MySQL 实现
type BatchInserter interface {
	InsertVisits(ctx context.Context, batch []VisitRow) error
}

// Writer 访问日志异步落库
// 接入边界只投递不等待，批量攒够或到达刷新间隔时写库，
// 写入失败只记日志不重试（访问日志允许丢失）
type Writer struct {
	store    BatchInserter
	ch       chan VisitRow
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWriter 创建异步写入器
func NewWriter(store BatchInserter) *Writer {
	return &Writer{
		store:    store,
		ch:       make(chan VisitRow, writerBufferSize),
		stopChan: make(chan struct{}),
	}
}

// Start 启动写入 goroutine
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop 停止写入器，先落盘剩余的缓冲数据
func (w *Writer) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// Enqueue 投递一行访问日志，缓冲满时丢弃
func (w *Writer) Enqueue(row VisitRow) {
	if row.InsertedAt.IsZero() {
		row.InsertedAt = time.Now()
	}
	select {
	case w.ch <- row:
	default:
		slog.Debug("访问日志写入缓冲已满，丢弃记录", "path", row.Path)
	}
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(writerFlushInterval)
	defer ticker.Stop()

	batch := make([]VisitRow, 0, writerMaxBatch)
	for {
		select {
		case row := <-w.ch:
			batch = append(batch, row)
			if len(batch) >= writerMaxBatch {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		case <-w.stopChan:
			for len(w.ch) > 0 {
				batch = append(batch, <-w.ch)
			}
			w.flush(batch)
			return
		}
	}
}

func (w *Writer) flush(batch []VisitRow) []VisitRow {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), writerFlushTimeout)
	defer cancel()

	if err := w.store.InsertVisits(ctx, batch); err != nil {
		slog.Warn("访问日志落库失败，丢弃本批", "rows", len(batch), "error", err)
	}
	return batch[:0]
}
