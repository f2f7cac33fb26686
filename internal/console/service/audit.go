package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/rootgw/internal/audit"
)

// AuditLogProvider - чтение долговременного журнала (Postgres или SQLite).
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	logs, err := s.repo.FetchLogs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
