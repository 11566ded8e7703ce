package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx — общее подмножество *sql.DB и *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier привязывает репозиторий к подключению или транзакции.
// Каждый запрос получает собственный таймаут от базового контекста.
type querier struct {
	db  dbtx
	ctx context.Context
}

func (q querier) op() (context.Context, context.CancelFunc) {
	return context.WithTimeout(q.ctx, opTimeout)
}

func (q querier) exec(query string, args ...any) (int64, error) {
	ctx, cancel := q.op()
	defer cancel()

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryList выполняет запрос и сканирует все строки.
func queryList[T any](q querier, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	ctx, cancel := q.op()
	defer cancel()

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// getOne сканирует одну строку, отсутствие строки превращается в notFound.
func getOne[T any](q querier, scan func(rowScanner) (T, error), notFound error, label, query string, args ...any) (T, error) {
	ctx, cancel := q.op()
	defer cancel()

	item, err := scan(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) && notFound != nil {
			return zero, notFound
		}
		return zero, fmt.Errorf("%s: %w", label, err)
	}
	return item, nil
}

// prefixed добавляет псевдоним таблицы к каждому столбцу списка.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func isUniqueViolation(err error) bool {
	_, ok := uniqueConstraint(err)
	return ok
}

// uniqueConstraint возвращает имя нарушенного ограничения уникальности.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
