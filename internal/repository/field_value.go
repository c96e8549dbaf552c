package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// FieldValueRepository — значения полей формы заявки.
type FieldValueRepository interface {
	// Replace заменяет весь набор значений заявки.
	Replace(ctx context.Context, submissionID string, values []model.FieldValue) error
	// List возвращает значения в порядке вставки.
	List(ctx context.Context, submissionID string) ([]model.FieldValue, error)
}

type fieldValueRepo struct {
	db DBTX
}

// NewFieldValueRepository создаёт репозиторий значений полей.
func NewFieldValueRepository(db DBTX) FieldValueRepository {
	return &fieldValueRepo{db: db}
}

func (r *fieldValueRepo) Replace(ctx context.Context, submissionID string, values []model.FieldValue) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM submission_field_values WHERE submission_id = $1`, submissionID); err != nil {
		return fmt.Errorf("ошибка удаления значений полей: %w", err)
	}

	query := `
		INSERT INTO submission_field_values (submission_id, required_field_id, field_name, field_value)
		VALUES ($1, $2, $3, $4)`

	for _, v := range values {
		if _, err := r.db.Exec(ctx, query, submissionID, v.RequiredFieldID, v.FieldName, v.FieldValue); err != nil {
			return fmt.Errorf("ошибка сохранения поля %q: %w", v.FieldName, err)
		}
	}
	return nil
}

func (r *fieldValueRepo) List(ctx context.Context, submissionID string) ([]model.FieldValue, error) {
	query := `
		SELECT submission_id, required_field_id, field_name, field_value
		FROM submission_field_values
		WHERE submission_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения значений полей: %w", err)
	}
	defer rows.Close()

	var result []model.FieldValue
	for rows.Next() {
		var v model.FieldValue
		if err := rows.Scan(&v.SubmissionID, &v.RequiredFieldID, &v.FieldName, &v.FieldValue); err != nil {
			return nil, fmt.Errorf("ошибка сканирования значения поля: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
