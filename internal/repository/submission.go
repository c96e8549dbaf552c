package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// SubmissionRepository — интерфейс для таблицы submissions.
// Физического удаления нет: итог заявки — терминальный статус.
type SubmissionRepository interface {
	// Create вставляет новую заявку.
	Create(ctx context.Context, s *model.Submission) error
	// GetByID возвращает заявку по ID.
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	// GetForUpdate возвращает заявку с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (*model.Submission, error)
	// FindActive возвращает незавершённую заявку владельца по типу документа.
	FindActive(ctx context.Context, ownerID string, docTypeID int64) (*model.Submission, error)
	// SaveState сохраняет статус и отметки времени.
	SaveState(ctx context.Context, s *model.Submission) error
	// ListByOwner возвращает заявки владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string, statuses []model.Status, limit int) ([]*model.SubmissionView, error)
	// ListByDepartment возвращает заявки по типам документов подразделения.
	ListByDepartment(ctx context.Context, departmentID int64, statuses []model.Status) ([]*model.SubmissionView, error)
}

type submissionRepo struct {
	db DBTX
}

// NewSubmissionRepository создаёт репозиторий заявок.
func NewSubmissionRepository(db DBTX) SubmissionRepository {
	return &submissionRepo{db: db}
}

const submissionColumns = `s.id, s.owner_id, s.doc_type_id, s.status, s.rejection_reason,
	s.submitted_at, s.reviewed_at, s.created_at, s.updated_at`

func scanSubmission(row pgx.Row, s *model.Submission, extra ...any) error {
	dest := []any{
		&s.ID, &s.OwnerID, &s.DocTypeID, &s.Status, &s.RejectionReason,
		&s.SubmittedAt, &s.ReviewedAt, &s.CreatedAt, &s.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (r *submissionRepo) Create(ctx context.Context, s *model.Submission) error {
	query := `
		INSERT INTO submissions (id, owner_id, doc_type_id, status, rejection_reason,
			submitted_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.OwnerID, s.DocTypeID, s.Status, s.RejectionReason, s.SubmittedAt, s.ReviewedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: незавершённая заявка по этому типу документа уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	return r.get(ctx, `SELECT `+submissionColumns+` FROM submissions s WHERE s.id = $1`, id)
}

func (r *submissionRepo) GetForUpdate(ctx context.Context, id string) (*model.Submission, error) {
	return r.get(ctx, `SELECT `+submissionColumns+` FROM submissions s WHERE s.id = $1 FOR UPDATE`, id)
}

func (r *submissionRepo) FindActive(ctx context.Context, ownerID string, docTypeID int64) (*model.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions s
		WHERE s.owner_id = $1 AND s.doc_type_id = $2
			AND s.status NOT IN ('APPROVED', 'REJECTED')
		LIMIT 1`
	return r.get(ctx, query, ownerID, docTypeID)
}

func (r *submissionRepo) get(ctx context.Context, query string, args ...any) (*model.Submission, error) {
	s := &model.Submission{}
	if err := scanSubmission(r.db.QueryRow(ctx, query, args...), s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return s, nil
}

func (r *submissionRepo) SaveState(ctx context.Context, s *model.Submission) error {
	query := `
		UPDATE submissions
		SET status = $2, rejection_reason = $3, submitted_at = $4, reviewed_at = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.Status, s.RejectionReason, s.SubmittedAt, s.ReviewedAt,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: незавершённая заявка по этому типу документа уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка сохранения заявки: %w", err)
	}
	return nil
}

const viewSelect = `
	SELECT ` + submissionColumns + `, d.title, f.original_name
	FROM submissions s
	JOIN doc_types d ON d.id = s.doc_type_id
	LEFT JOIN current_files f ON f.owner_kind = 'submission' AND f.owner_id = s.id::text`

func (r *submissionRepo) ListByOwner(ctx context.Context, ownerID string, statuses []model.Status, limit int) ([]*model.SubmissionView, error) {
	query := viewSelect + `
		WHERE s.owner_id = $1
			AND (cardinality($2::text[]) = 0 OR s.status = ANY($2::text[]))
		ORDER BY s.created_at DESC
		LIMIT $3`

	return r.listViews(ctx, query, ownerID, statusStrings(statuses), limit)
}

func (r *submissionRepo) ListByDepartment(ctx context.Context, departmentID int64, statuses []model.Status) ([]*model.SubmissionView, error) {
	query := viewSelect + `
		WHERE d.department_id = $1
			AND (cardinality($2::text[]) = 0 OR s.status = ANY($2::text[]))
		ORDER BY s.submitted_at DESC NULLS LAST, s.created_at DESC`

	return r.listViews(ctx, query, departmentID, statusStrings(statuses))
}

func (r *submissionRepo) listViews(ctx context.Context, query string, args ...any) ([]*model.SubmissionView, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.SubmissionView
	for rows.Next() {
		v := &model.SubmissionView{}
		if err := scanSubmission(rows, &v.Submission, &v.DocTypeTitle, &v.FileName); err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
