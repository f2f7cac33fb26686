package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/rootgw/internal/domain"
)

// ApprovalRepository - очередь HITL в Postgres.
type ApprovalRepository interface {
	GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (string, error)
}

// DecisionPublisher будит шлюз, ожидающий решения по execution_id.
type DecisionPublisher interface {
	Publish(ctx context.Context, executionID string, status domain.ApprovalStatus) error
}

var ErrUnknownStatus = errors.New("unknown approval status")

type ApprovalService struct {
	repo   ApprovalRepository
	bus    DecisionPublisher
	logger *zap.Logger
}

func NewApprovalService(repo ApprovalRepository, bus DecisionPublisher, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		repo:   repo,
		bus:    bus,
		logger: logger.Named("approval-service"),
	}
}

func (s *ApprovalService) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return s.repo.GetApprovalByID(ctx, id)
}

// GetApprovals принимает статус в любом регистре; "all" снимает фильтр.
func (s *ApprovalService) GetApprovals(ctx context.Context, status string) ([]*domain.ApprovalRequest, error) {
	st := domain.ApprovalStatus(strings.ToUpper(status))
	switch st {
	case "ALL":
		st = ""
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected, domain.StatusExpired:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return s.repo.FindApprovals(ctx, st)
}

// DecideApproval фиксирует решение оператора и будит шлюз.
// Если сигнал не дошел, шлюз закроет заявку по своему таймауту.
func (s *ApprovalService) DecideApproval(ctx context.Context, approvalID string, approved bool, reviewerID, comment string) error {
	status := domain.StatusRejected
	if approved {
		status = domain.StatusApproved
	}

	executionID, err := s.repo.UpdateApprovalStatus(ctx, approvalID, status, reviewerID, comment)
	if err != nil {
		s.logger.Error("failed to persist approval decision",
			zap.String("approval_id", approvalID),
			zap.String("reviewer_id", reviewerID),
			zap.Error(err))
		return fmt.Errorf("database update failed: %w", err)
	}

	if err := s.bus.Publish(ctx, executionID, status); err != nil {
		s.logger.Error("critical: decision saved but signal not delivered",
			zap.String("execution_id", executionID),
			zap.Error(err))
		return fmt.Errorf("redis signal failure: %w", err)
	}

	s.logger.Info("HITL decision processed",
		zap.String("execution_id", executionID),
		zap.String("reviewer", reviewerID),
		zap.String("result", string(status)))
	return nil
}
