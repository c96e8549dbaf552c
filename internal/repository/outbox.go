package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// OutboxRepository — таблица review_outbox.
//
// Жизненный цикл события: pending → leased → done. Событие, чья аренда
// истекла, снова доступно для захвата; после maxAttempts аренд — dead.
type OutboxRepository interface {
	// Enqueue добавляет pending-событие.
	Enqueue(ctx context.Context, e *model.OutboxEvent) error
	// Claim арендует событие до leaseUntil. ErrNotFound — событие уже
	// арендовано другим обработчиком или завершено.
	Claim(ctx context.Context, id, owner string, now, leaseUntil time.Time) (*model.OutboxEvent, error)
	// MarkDone завершает событие.
	MarkDone(ctx context.Context, id string, now time.Time) error
	// Release возвращает арендованное событие в pending с текстом ошибки.
	Release(ctx context.Context, id, lastError string) error
	// ListDue возвращает события для повторной доставки: pending старше
	// createdBefore и арендованные с истёкшей арендой.
	ListDue(ctx context.Context, now, createdBefore time.Time, limit int) ([]*model.OutboxEvent, error)
	// MarkDead помечает dead события, исчерпавшие попытки, и возвращает их.
	MarkDead(ctx context.Context, now time.Time, maxAttempts int) ([]*model.OutboxEvent, error)
	// CountByStatus возвращает количество событий по статусам.
	CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error)
}

type outboxRepo struct {
	db DBTX
}

// NewOutboxRepository создаёт репозиторий outbox.
func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepo{db: db}
}

const outboxColumns = `id, submission_id, status, attempt_count, lease_owner,
	lease_expires_at, last_error, created_at, processed_at`

func scanOutbox(row pgx.Row, e *model.OutboxEvent) error {
	return row.Scan(
		&e.ID, &e.SubmissionID, &e.Status, &e.AttemptCount, &e.LeaseOwner,
		&e.LeaseExpiresAt, &e.LastError, &e.CreatedAt, &e.ProcessedAt,
	)
}

func (r *outboxRepo) Enqueue(ctx context.Context, e *model.OutboxEvent) error {
	query := `
		INSERT INTO review_outbox (id, submission_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING status, created_at`

	if err := r.db.QueryRow(ctx, query, e.ID, e.SubmissionID).Scan(&e.Status, &e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: событие %s уже существует", ErrConflict, e.ID)
		}
		return fmt.Errorf("ошибка добавления события outbox: %w", err)
	}
	return nil
}

func (r *outboxRepo) Claim(ctx context.Context, id, owner string, now, leaseUntil time.Time) (*model.OutboxEvent, error) {
	query := `
		UPDATE review_outbox
		SET status = 'leased', lease_owner = $2, lease_expires_at = $4,
			attempt_count = attempt_count + 1
		WHERE id = $1
			AND (status = 'pending' OR (status = 'leased' AND lease_expires_at < $3))
		RETURNING ` + outboxColumns

	e := &model.OutboxEvent{}
	if err := scanOutbox(r.db.QueryRow(ctx, query, id, owner, now, leaseUntil), e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка аренды события outbox: %w", err)
	}
	return e, nil
}

func (r *outboxRepo) MarkDone(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE review_outbox
		SET status = 'done', processed_at = $2, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1 AND status <> 'done'`

	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("ошибка завершения события outbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboxRepo) Release(ctx context.Context, id, lastError string) error {
	query := `
		UPDATE review_outbox
		SET status = 'pending', last_error = $2, lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1 AND status = 'leased'`

	if _, err := r.db.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("ошибка возврата события outbox: %w", err)
	}
	return nil
}

func (r *outboxRepo) ListDue(ctx context.Context, now, createdBefore time.Time, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM review_outbox
		WHERE (status = 'pending' AND created_at < $2)
			OR (status = 'leased' AND lease_expires_at < $1)
		ORDER BY created_at
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, now, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения событий outbox: %w", err)
	}
	defer rows.Close()

	var result []*model.OutboxEvent
	for rows.Next() {
		e := &model.OutboxEvent{}
		if err := scanOutbox(rows, e); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события outbox: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *outboxRepo) MarkDead(ctx context.Context, now time.Time, maxAttempts int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE review_outbox
		SET status = 'dead', processed_at = $1, lease_owner = NULL, lease_expires_at = NULL
		WHERE attempt_count >= $2
			AND (status = 'pending' OR (status = 'leased' AND lease_expires_at < $1))
		RETURNING ` + outboxColumns

	rows, err := r.db.Query(ctx, query, now, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("ошибка пометки событий outbox: %w", err)
	}
	defer rows.Close()

	var result []*model.OutboxEvent
	for rows.Next() {
		e := &model.OutboxEvent{}
		if err := scanOutbox(rows, e); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события outbox: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *outboxRepo) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM review_outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта событий outbox: %w", err)
	}
	defer rows.Close()

	result := make(map[model.OutboxStatus]int64)
	for rows.Next() {
		var status model.OutboxStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счётчика outbox: %w", err)
		}
		result[status] = n
	}
	return result, rows.Err()
}
