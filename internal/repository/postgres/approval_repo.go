package postgres

/*
Заявки Human-in-the-loop: шлюз создает PENDING и ждет решения, консоль показывает
очередь и принимает решение. Переход из PENDING выполняется одним UPDATE с
условием на статус, поэтому двойное решение невозможно.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/rootgw/internal/domain"
)

const approvalColumns = `id, execution_id, source, action, params, command_line, status, reviewer_id, comment, created_at, updated_at`

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var app domain.ApprovalRequest
	var reviewerID, comment sql.NullString

	err := row.Scan(
		&app.ID,
		&app.ExecutionID,
		&app.Source,
		&app.Action,
		&app.Params,
		&app.CommandLine,
		&app.Status,
		&reviewerID,
		&comment,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reviewerID.Valid {
		val := reviewerID.String
		app.ReviewerID = &val
	}
	if comment.Valid {
		val := comment.String
		app.Comment = &val
	}
	return &app, nil
}

// GetApprovalByID - детали заявки для оператора.
func (s *Store) GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	app, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w (id: %s)", domain.ErrApprovalNotFound, id)
		}
		return nil, fmt.Errorf("postgres: get approval: %w", err)
	}
	return app, nil
}

// FindApprovals - очередь решений. Пустой статус означает все заявки.
func (s *Store) FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// [] вместо null в JSON
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		app, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// CreateApproval ставит заявку в очередь консоли.
func (s *Store) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	query := `INSERT INTO approvals (id, execution_id, source, action, params, command_line, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		app.ID, app.ExecutionID, string(app.Source), app.Action, app.Params, app.CommandLine, string(app.Status))
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

// UpdateApprovalStatus атомарно принимает решение и возвращает execution_id
// для сигнала шлюзу.
func (s *Store) UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (string, error) {
	if status == domain.StatusPending {
		return "", domain.ErrInvalidTransition
	}

	var executionID string
	query := `
		UPDATE approvals
		SET status = $1,
		    reviewer_id = NULLIF($2, ''),
		    comment = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE id = $4 AND status = 'PENDING'
		RETURNING execution_id`

	err := s.pool.QueryRow(ctx, query, string(status), reviewerID, comment, id).Scan(&executionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", s.whyNotPending(ctx, id)
		}
		return "", fmt.Errorf("postgres: failed to update approval status: %w", err)
	}
	return executionID, nil
}

// ExpireApproval закрывает заявку, по которой шлюз перестал ждать.
func (s *Store) ExpireApproval(ctx context.Context, id string) error {
	_, err := s.UpdateApprovalStatus(ctx, id, domain.StatusExpired, "", "")
	return err
}

// whyNotPending различает "нет такой заявки" и "решение уже принято".
func (s *Store) whyNotPending(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check approval: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w (id: %s)", domain.ErrApprovalNotFound, id)
	}
	return fmt.Errorf("%w (id: %s)", domain.ErrAlreadyProcessed, id)
}
