package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/rootgw/internal/domain"
)

// GetDashboard собирает сводку за последний час одним проходом по каждой таблице.
func (s *Store) GetDashboard(ctx context.Context) (*domain.Dashboard, error) {
	d := &domain.Dashboard{
		Rejections: make(map[string]int64),
		TopActions: make(map[string]int64),
	}

	// 1. Нагрузка и качество; PERCENTILE_CONT дает честный P95
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE reason = 'timed_out'),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM audit_logs
		WHERE timestamp > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.Activity.TotalCommands,
		&d.Activity.Succeeded,
		&d.Quality.TimedOut,
		&d.Quality.P95Latency,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard activity: %w", err)
	}
	d.Activity.PerMinute = float64(d.Activity.TotalCommands) / 60

	// 2. HITL очередь
	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'APPROVED'),
			COUNT(*) FILTER (WHERE status = 'REJECTED'),
			COUNT(*) FILTER (WHERE status = 'EXPIRED')
		FROM approvals
		WHERE created_at > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.Approvals.Pending,
		&d.Approvals.Approved,
		&d.Approvals.Rejected,
		&d.Approvals.Expired,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard approvals: %w", err)
	}

	// 3. Разрезы по причинам отказа и по действиям
	if err := s.countBy(ctx, "reason", "reason <> ''", d.Rejections); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "action", "TRUE", d.TopActions); err != nil {
		return nil, err
	}
	return d, nil
}

// countBy - только для констант из этого файла, col и cond не экранируются.
func (s *Store) countBy(ctx context.Context, col, cond string, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) FROM audit_logs
		WHERE timestamp > NOW() - INTERVAL '60 minutes' AND %[2]s
		GROUP BY %[1]s ORDER BY COUNT(*) DESC LIMIT 10`, col, cond))
	if err != nil {
		return fmt.Errorf("postgres: dashboard by %s: %w", col, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("postgres: dashboard scan: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}
