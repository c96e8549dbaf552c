// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope — набор репозиториев одной транзакции и хуки её завершения.
//
// Хуки AfterCommit выполняются только после успешного коммита,
// AfterRollback — только после отката. Порядок — порядок регистрации.
type Scope struct {
	Submissions SubmissionRepository
	History     HistoryRepository
	Files       CurrentFileRepository
	Fields      FieldValueRepository
	Outbox      OutboxRepository

	afterCommit   []func()
	afterRollback []func()
}

// NewScope создаёт набор репозиториев поверх db (транзакции или пула).
func NewScope(db DBTX) *Scope {
	return &Scope{
		Submissions: NewSubmissionRepository(db),
		History:     NewHistoryRepository(db),
		Files:       NewCurrentFileRepository(db),
		Fields:      NewFieldValueRepository(db),
		Outbox:      NewOutboxRepository(db),
	}
}

// AfterCommit регистрирует действие, выполняемое после коммита.
func (s *Scope) AfterCommit(fn func()) {
	s.afterCommit = append(s.afterCommit, fn)
}

// AfterRollback регистрирует действие, выполняемое после отката.
func (s *Scope) AfterRollback(fn func()) {
	s.afterRollback = append(s.afterRollback, fn)
}

// Committed выполняет хуки коммита.
func (s *Scope) Committed() {
	for _, fn := range s.afterCommit {
		fn()
	}
	s.afterCommit, s.afterRollback = nil, nil
}

// RolledBack выполняет хуки отката.
func (s *Scope) RolledBack() {
	for _, fn := range s.afterRollback {
		fn()
	}
	s.afterCommit, s.afterRollback = nil, nil
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается, при успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Direct возвращает набор репозиториев поверх пула, вне транзакции.
// Хуки такого набора не выполняются.
func (r *TxRunner) Direct() *Scope {
	return NewScope(r.pool)
}

// InScope выполняет fn в транзакции с набором репозиториев Scope
// и по её завершении запускает соответствующие хуки.
func (r *TxRunner) InScope(ctx context.Context, fn func(s *Scope) error) error {
	var scope *Scope
	err := r.RunInTx(ctx, func(tx pgx.Tx) error {
		scope = NewScope(tx)
		return fn(scope)
	})

	if scope == nil {
		return err
	}
	if err != nil {
		scope.RolledBack()
		return err
	}
	scope.Committed()
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
