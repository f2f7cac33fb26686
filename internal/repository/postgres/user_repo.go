package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/rootgw/internal/domain"
)

// GetUserByUsername возвращает (nil, nil), если оператора нет.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	err := s.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return u, nil
}

// CreateUser заводит оператора. Хеш пароля считает вызывающий.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, email, username, password_hash, role, scopes)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query, u.ID, u.Email, u.Username, u.PasswordHash, u.Role, u.Scopes); err != nil {
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}
