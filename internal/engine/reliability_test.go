package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
	"github.com/xela07ax/rootgw/internal/session"
)

type countingExec struct {
	calls int32
	res   domain.ExecutionResult
	err   error
}

func (c *countingExec) Execute(context.Context, string, time.Duration) (domain.ExecutionResult, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.res, c.err
}

func protected(next *countingExec, cfg ReliabilityConfig) *ProtectedExecutor {
	if cfg.CBTimeout == 0 {
		cfg.CBTimeout = time.Minute
	}
	return NewProtectedExecutor(next, "su", cfg, nil, zap.NewNop())
}

func TestProtectedExecutorTripsOnBackendFailures(t *testing.T) {
	next := &countingExec{err: session.ErrSpawn}
	p := protected(next, ReliabilityConfig{CBFailureThreshold: 3})

	for i := 0; i < 3; i++ {
		_, err := p.Execute(context.Background(), "id", time.Second)
		assert.True(t, errors.Is(err, session.ErrSpawn))
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Execute(context.Background(), "id", time.Second)
	require.Error(t, err)
	assert.Equal(t, domain.ReasonExecutionFailure, domain.ReasonOf(err))
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.calls))
}

func TestProtectedExecutorIgnoresCommandFailures(t *testing.T) {
	next := &countingExec{res: domain.ExecutionResult{ExitCode: 1}}
	p := protected(next, ReliabilityConfig{CBFailureThreshold: 2})

	for i := 0; i < 5; i++ {
		res, err := p.Execute(context.Background(), "false", time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestProtectedExecutorIgnoresCancellation(t *testing.T) {
	next := &countingExec{err: context.Canceled}
	p := protected(next, ReliabilityConfig{CBFailureThreshold: 2})

	for i := 0; i < 5; i++ {
		_, err := p.Execute(context.Background(), "id", time.Second)
		assert.True(t, errors.Is(err, context.Canceled))
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestProtectedExecutorRateLimit(t *testing.T) {
	next := &countingExec{res: domain.ExecutionResult{Succeeded: true}}
	p := protected(next, ReliabilityConfig{RateLimit: 0.001, RateBurst: 1})

	_, err := p.Execute(context.Background(), "id", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Execute(ctx, "id", time.Second)
	require.Error(t, err)
	assert.Equal(t, domain.ReasonExecutionFailure, domain.ReasonOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}
