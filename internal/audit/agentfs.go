package audit

/*
AgentFS - асинхронная выгрузка журнала в долговременное хранилище.

- Запись из пайплайна неблокирующая: событие кладется в канал, при переполнении
  сбрасывается с ошибкой в лог (Load Shedding).
- Воркер копит пачку и пишет ее по таймеру или при достижении лимита.
- При Stop канал закрывается, воркер дочитывает остаток и делает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться записи.
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []Entry) error
}

type Auditor interface {
	Log(e Entry)
}

type AgentFSConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	FlushAttempts uint
}

func (c AgentFSConfig) withDefaults() AgentFSConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.FlushAttempts == 0 {
		c.FlushAttempts = 3
	}
	return c
}

type AgentFS struct {
	ch       chan Entry
	repo     StorageInterface
	cfg      AgentFSConfig
	logger   *zap.Logger
	wg       sync.WaitGroup
	// closeMu: Log держит RLock на время отправки, Stop берет Lock перед close(ch)
	closeMu sync.RWMutex
	closed  bool
	dropped  int64
}

func NewAgentFS(repo StorageInterface, cfg AgentFSConfig, logger *zap.Logger) *AgentFS {
	cfg = cfg.withDefaults()
	return &AgentFS{
		ch:     make(chan Entry, cfg.BufferSize),
		repo:   repo,
		cfg:    cfg,
		logger: logger.With(zap.String("mod", "agentfs")),
	}
}

func (fs *AgentFS) Start() {
	fs.wg.Add(1)
	go fs.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (fs *AgentFS) Stop() {
	fs.closeMu.Lock()
	if fs.closed {
		fs.closeMu.Unlock()
		return
	}
	fs.closed = true
	fs.logger.Info("stopping auditor: closing channel and flushing buffer...")
	close(fs.ch)
	fs.closeMu.Unlock()

	fs.wg.Wait()
	fs.logger.Info("auditor stopped gracefully", zap.Int64("dropped", atomic.LoadInt64(&fs.dropped)))
}

func (fs *AgentFS) Log(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	fs.closeMu.RLock()
	defer fs.closeMu.RUnlock()
	if fs.closed {
		fs.logger.Warn("audit entry dropped: auditor is stopping", zap.String("id", e.ID))
		return
	}

	select {
	case fs.ch <- e:
	default:
		atomic.AddInt64(&fs.dropped, 1)
		fs.logger.Error("audit_buffer_overflow",
			zap.String("action", e.Action),
			zap.String("trace_id", e.TraceID),
		)
	}
}

// Utilization - доля занятого буфера, для метрики.
func (fs *AgentFS) Utilization() float64 {
	return float64(len(fs.ch)) / float64(cap(fs.ch))
}

func (fs *AgentFS) Dropped() int64 { return atomic.LoadInt64(&fs.dropped) }

func (fs *AgentFS) worker() {
	defer fs.wg.Done()

	batch := make([]Entry, 0, fs.cfg.BatchSize)
	ticker := time.NewTicker(fs.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст сервиса к этому моменту может быть уже закрыт
		r := retry.New(
			retry.Context(context.Background()),
			retry.Attempts(fs.cfg.FlushAttempts),
			retry.Delay(100*time.Millisecond),
			retry.LastErrorOnly(true),
		)
		if err := r.Do(func() error {
			return fs.repo.WriteBatch(context.Background(), batch)
		}); err != nil {
			fs.logger.Error("audit flush failed", zap.Int("lost", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-fs.ch:
			if !ok {
				// Канал закрыт в Stop: остаток уже вычитан
				flush()
				fs.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, e)
			if len(batch) >= fs.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
