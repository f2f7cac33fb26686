// Package sqlite - журнал на самом устройстве, когда Postgres не настроен.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xela07ax/rootgw/internal/audit"
	"github.com/xela07ax/rootgw/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// Open открывает файл базы и накатывает схему.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is empty")
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// runMigrations не вызывает m.Close: драйвер закрыл бы переданный *sql.DB.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: migrations source: %w", err)
	}
	defer src.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("sqlite: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: migrate up: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

const auditColumns = "id, trace_id, action, param_summary, outcome, status, source, reason, stage, duration_ms, timestamp"

// WriteBatch пишет пачку в одной транзакции. Повторная запись того же id игнорируется.
func (s *Store) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO audit_logs ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ID, e.TraceID, e.Action, e.ParamSummary, e.Outcome,
			string(e.Status()), string(e.Source), string(e.Reason), e.Stage, e.DurationMs, e.At.UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert audit entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
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
		where = append(where, col+" = ?")
		args = append(args, val)
	}
	add("action", f.Action)
	add("status", string(f.Status))
	add("reason", string(f.Reason))
	add("source", string(f.Source))

	query := "SELECT " + auditColumns + " FROM audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		var status, source, reason string
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Action, &e.ParamSummary, &e.Outcome,
			&status, &source, &reason, &e.Stage, &e.DurationMs, &e.At); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		e.Succeeded = domain.Status(status) == domain.StatusSuccess
		e.Source = domain.Source(source)
		e.Reason = domain.Reason(reason)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows iteration: %w", err)
	}
	return entries, nil
}
