package usage

import (
	"context"
	"sync"
	"time"

	"modelgate/internal/metrics"
	"modelgate/internal/model"

	log "github.com/sirupsen/logrus"
)

// BatchStore persists usage records.
type BatchStore interface {
	CreateBatch(ctx context.Context, recs []*model.UsageRecord) error
}

type WriterConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{BufferSize: 10000, BatchSize: 100, FlushInterval: 200 * time.Millisecond}
}

// Writer 异步批量用量写入器
type Writer struct {
	store         BatchStore
	recChan       chan *model.UsageRecord
	flushReq      chan chan struct{}
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopped       bool
	mu            sync.Mutex
}

// NewWriter 创建写入器并启动后台循环
func NewWriter(store BatchStore, cfg WriterConfig) *Writer {
	def := DefaultWriterConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	w := &Writer{
		store:         store,
		recChan:       make(chan *model.UsageRecord, cfg.BufferSize),
		flushReq:      make(chan chan struct{}),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record 非阻塞入队；队列满或已停止时丢弃并记录日志
func (w *Writer) Record(rec *model.UsageRecord) {
	if rec == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		log.Warnf("usage writer: stopped, dropping record for %s", rec.UserID)
		metrics.UsageDropped.Inc()
		return
	}

	select {
	case w.recChan <- rec:
	default:
		log.Warnf("usage writer: queue full, dropping record for %s/%s", rec.UserID, rec.Model)
		metrics.UsageDropped.Inc()
	}
}

// Flush blocks until everything queued so far has been written.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case w.flushReq <- done:
	case <-w.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止写入器并刷新剩余记录
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()

	batch := make([]*model.UsageRecord, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	drain := func() {
		for {
			select {
			case rec := <-w.recChan:
				batch = append(batch, rec)
			default:
				return
			}
		}
	}

	for {
		select {
		case rec := <-w.recChan:
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case done := <-w.flushReq:
			drain()
			w.flush(batch)
			batch = batch[:0]
			close(done)
		case <-w.stopChan:
			// Record holds mu while sending, so nothing is enqueued after stopped is set
			drain()
			w.flush(batch)
			return
		}
	}
}

func (w *Writer) flush(recs []*model.UsageRecord) {
	if len(recs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.CreateBatch(ctx, recs); err != nil {
		log.Errorf("usage writer: failed to write %d records: %v", len(recs), err)
		metrics.UsageDropped.Add(float64(len(recs)))
		return
	}
	log.Debugf("usage writer: flushed %d records", len(recs))
}
