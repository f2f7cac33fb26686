package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Executor исполняет одну командную строку в привилегированной сессии.
type Executor interface {
	Execute(ctx context.Context, cmdline string, timeout time.Duration) (domain.ExecutionResult, error)
}

// Dispatch исполняет разрешенное действие. Пустой Ready - нарушение инварианта,
// сюда можно попасть только в обход конструкторов, поэтому паника.
func Dispatch(ctx context.Context, exec Executor, r Ready, defaultTimeout time.Duration) (domain.ExecutionResult, error) {
	p := r.prepared
	if p.Spec == nil || p.CommandLine == "" {
		panic(fmt.Errorf("%w: dispatch of an unprepared action", ErrInvariantViolation))
	}
	if p.IsHighRisk() && !r.confirmed {
		panic(fmt.Errorf("%w: high risk action %q reached dispatch unconfirmed", ErrInvariantViolation, p.Spec.ID))
	}

	timeout := p.Spec.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return exec.Execute(ctx, p.CommandLine, timeout)
}
