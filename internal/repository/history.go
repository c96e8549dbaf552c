package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// HistoryRepository — журнал аудита заявки. Только добавление и чтение.
type HistoryRepository interface {
	// Append добавляет запись; заполняет ID и CreatedAt.
	Append(ctx context.Context, e *model.HistoryEntry) error
	// ListBySubmission возвращает записи в порядке добавления.
	ListBySubmission(ctx context.Context, submissionID string) ([]*model.HistoryEntry, error)
	// LatestDetail возвращает последнюю запись с подробным результатом проверки.
	LatestDetail(ctx context.Context, submissionID string) (*model.HistoryEntry, error)
}

type historyRepo struct {
	db DBTX
}

// NewHistoryRepository создаёт репозиторий журнала аудита.
func NewHistoryRepository(db DBTX) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) Append(ctx context.Context, e *model.HistoryEntry) error {
	query := `
		INSERT INTO submission_history (submission_id, action, memo, actor_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		RETURNING id, created_at`

	var createdAt any
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}

	err := r.db.QueryRow(ctx, query,
		e.SubmissionID, e.Action, e.Memo, e.ActorID, nullableJSON(e.Detail), createdAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка добавления записи истории: %w", err)
	}
	return nil
}

func (r *historyRepo) ListBySubmission(ctx context.Context, submissionID string) ([]*model.HistoryEntry, error) {
	query := `
		SELECT id, submission_id, action, memo, actor_id, detail, created_at
		FROM submission_history
		WHERE submission_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории: %w", err)
	}
	defer rows.Close()

	var result []*model.HistoryEntry
	for rows.Next() {
		e := &model.HistoryEntry{}
		if err := scanHistory(rows, e); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи истории: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *historyRepo) LatestDetail(ctx context.Context, submissionID string) (*model.HistoryEntry, error) {
	query := `
		SELECT id, submission_id, action, memo, actor_id, detail, created_at
		FROM submission_history
		WHERE submission_id = $1 AND detail IS NOT NULL
		ORDER BY id DESC
		LIMIT 1`

	e := &model.HistoryEntry{}
	if err := scanHistory(r.db.QueryRow(ctx, query, submissionID), e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения подробного результата: %w", err)
	}
	return e, nil
}

func scanHistory(row pgx.Row, e *model.HistoryEntry) error {
	return row.Scan(&e.ID, &e.SubmissionID, &e.Action, &e.Memo, &e.ActorID, &e.Detail, &e.CreatedAt)
}

// nullableJSON передаёт пустой срез как NULL, а не как пустую строку JSONB.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
