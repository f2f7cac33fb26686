package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
)

// Store - персистентность заявок (Postgres).
type Store interface {
	CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error
	// ExpireApproval переводит PENDING в EXPIRED. domain.ErrAlreadyProcessed - решение уже принято.
	ExpireApproval(ctx context.Context, id string) error
}

// Subscription - поток решений по одной команде.
type Subscription interface {
	Decisions() <-chan domain.ApprovalStatus
	Close() error
}

type Bus interface {
	Subscribe(ctx context.Context, executionID string) (Subscription, error)
}

// HITLConfirmer ставит заявку в очередь консоли и ждет решение оператора.
// Порядок: подписка, заявка, ожидание; иначе быстрый оператор может ответить
// раньше, чем шлюз начнет слушать.
type HITLConfirmer struct {
	store   Store
	bus     Bus
	timeout time.Duration
	logger  *zap.Logger
}

func NewHITLConfirmer(store Store, bus Bus, timeout time.Duration, logger *zap.Logger) *HITLConfirmer {
	return &HITLConfirmer{
		store:   store,
		bus:     bus,
		timeout: timeout,
		logger:  logger.Named("hitl"),
	}
}

func (h *HITLConfirmer) Confirm(ctx context.Context, req Request) domain.Decision {
	log := h.logger.With(
		zap.String("execution_id", req.ExecutionID),
		zap.String("action", req.Action),
		zap.String("trace_id", req.TraceID),
	)

	sub, err := h.bus.Subscribe(ctx, req.ExecutionID)
	if err != nil {
		log.Error("failed to subscribe for approval decision", zap.Error(err))
		return domain.DecisionDenied
	}
	defer sub.Close()

	app := &domain.ApprovalRequest{
		ID:          uuid.New().String(),
		ExecutionID: req.ExecutionID,
		Source:      req.Source,
		Action:      req.Action,
		Params:      req.Params.Summary(),
		CommandLine: req.CommandLine,
		Status:      domain.StatusPending,
	}
	if err := h.store.CreateApproval(ctx, app); err != nil {
		log.Error("failed to create approval request", zap.Error(err))
		return domain.DecisionDenied
	}
	log.Info("waiting for operator decision", zap.String("approval_id", app.ID), zap.Duration("timeout", h.timeout))

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	for {
		select {
		case status, ok := <-sub.Decisions():
			if !ok {
				log.Warn("decision channel closed")
				return h.expire(app.ID, log)
			}
			if status == domain.StatusPending {
				continue
			}
			d := domain.DecisionFromStatus(status)
			log.Info("operator decision received", zap.String("decision", string(d)))
			return d
		case <-timer.C:
			return h.expire(app.ID, log)
		case <-ctx.Done():
			return h.expire(app.ID, log)
		}
	}
}

func (h *HITLConfirmer) expire(approvalID string, log *zap.Logger) domain.Decision {
	// Контекст запроса мог уже закончиться
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := h.store.ExpireApproval(ctx, approvalID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyProcessed):
		// Оператор успел ответить, но сигнал не дошел: решение все равно не исполняем
		log.Warn("decision arrived after timeout", zap.String("approval_id", approvalID))
	default:
		log.Error("failed to expire approval", zap.String("approval_id", approvalID), zap.Error(err))
	}
	log.Warn("approval timed out", zap.String("approval_id", approvalID))
	return domain.DecisionTimedOut
}
