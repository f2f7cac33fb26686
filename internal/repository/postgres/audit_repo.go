package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/domain"
)

const auditColumns = "id, trace_id, action, param_summary, outcome, status, source, reason, stage, duration_ms, timestamp"

// WriteBatch вставляет пачку одним INSERT. Повтор той же пачки не дублирует строки.
func (s *Store) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const numFields = 11
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(entries)*numFields)

	for i, e := range entries {
		if i > 0 {
			placeholders.WriteByte(',')
		}
		p := i * numFields
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		vals = append(vals,
			e.ID, e.TraceID, e.Action, e.ParamSummary, e.Outcome,
			string(e.Status()), string(e.Source), string(e.Reason), e.Stage, e.DurationMs, e.At,
		)
	}

	query := fmt.Sprintf("INSERT INTO audit_logs (%s) VALUES %s ON CONFLICT (id) DO NOTHING",
		auditColumns, placeholders.String())

	if _, err := s.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch: %w", err)
	}
	return nil
}

// FetchLogs возвращает записи от новых к старым.
func (s *Store) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("action", f.Action)
	add("status", string(f.Status))
	add("reason", string(f.Reason))
	add("source", string(f.Source))

	query := "SELECT " + auditColumns + " FROM audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit logs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Entry, error) {
		var e audit.Entry
		var status, source, reason string
		err := row.Scan(&e.ID, &e.TraceID, &e.Action, &e.ParamSummary, &e.Outcome,
			&status, &source, &reason, &e.Stage, &e.DurationMs, &e.At)
		e.Succeeded = domain.Status(status) == domain.StatusSuccess
		e.Source = domain.Source(source)
		e.Reason = domain.Reason(reason)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit logs: %w", err)
	}
	return entries, nil
}
