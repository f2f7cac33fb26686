// Package approval - подтверждение High-действий человеком.
package approval

import (
	"context"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Request - то, что видит оператор: действие, параметры и точная командная строка.
type Request struct {
	ExecutionID string
	TraceID     string
	Source      domain.Source
	Action      string
	Params      domain.Params
	CommandLine string
}

// Confirmer вызывается только для High-действий. Любой ответ, кроме
// DecisionConfirmed, означает отказ.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) domain.Decision
}

// ConfirmFunc - адаптер для UI внутри процесса.
type ConfirmFunc func(ctx context.Context, req Request) domain.Decision

func (f ConfirmFunc) Confirm(ctx context.Context, req Request) domain.Decision { return f(ctx, req) }
