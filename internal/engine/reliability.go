package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/rootgw/internal/actions"
	"github.com/xela07ax/rootgw/internal/domain"
)

type ReliabilityConfig struct {
	RateLimit          float64 // исполнений в секунду
	RateBurst          int
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration // через сколько CB попробует "закрыться"
	CBFailureThreshold uint32
}

// ProtectedExecutor ограничивает частоту привилегированных запусков и отключает
// механизм повышения прав после серии сбоев. Повторов нет: команды не идемпотентны.
type ProtectedExecutor struct {
	next    actions.Executor
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	metrics *Metrics
	logger  *zap.Logger
}

func NewProtectedExecutor(next actions.Executor, backend string, cfg ReliabilityConfig, metrics *Metrics, logger *zap.Logger) *ProtectedExecutor {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	log := logger.Named("reliability").With(zap.String("backend", backend))
	threshold := cfg.CBFailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "elevation-" + backend,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Отмена запроса клиентом - не сбой механизма
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(backend).Set(float64(to))
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &ProtectedExecutor{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		cb:      cb,
		metrics: metrics,
		logger:  log,
	}
}

func (p *ProtectedExecutor) Execute(ctx context.Context, cmdline string, timeout time.Duration) (domain.ExecutionResult, error) {
	// 1. Rate Limiter
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.ExecutionResult{}, domain.Reject(domain.ReasonExecutionFailure, "rate limit exceeded: %v", err)
	}

	// 2. Circuit Breaker. Ненулевой код выхода - ответ команды, а не сбой механизма.
	out, err := p.cb.Execute(func() (interface{}, error) {
		p.metrics.ElevatedInflight.Inc()
		defer p.metrics.ElevatedInflight.Dec()
		return p.next.Execute(ctx, cmdline, timeout)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.Warn("execution short-circuited", zap.Error(err))
		return domain.ExecutionResult{}, domain.Reject(domain.ReasonExecutionFailure, "elevation backend unavailable: %v", err)
	}
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return out.(domain.ExecutionResult), nil
}

func (p *ProtectedExecutor) State() gobreaker.State { return p.cb.State() }
