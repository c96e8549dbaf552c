package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// CatalogRepository — чтение каталога типов документов и управление сроками.
type CatalogRepository interface {
	// CreateDepartment создаёт подразделение.
	CreateDepartment(ctx context.Context, name string) (int64, error)
	// CreateDocType создаёт тип документа.
	CreateDocType(ctx context.Context, dt *model.DocType) error
	// AddRequiredField добавляет обязательное поле типа документа.
	AddRequiredField(ctx context.Context, f *model.RequiredField) error
	// GetDocType возвращает тип документа по ID.
	GetDocType(ctx context.Context, id int64) (*model.DocType, error)
	// ListRequiredFields возвращает обязательные поля по порядку.
	ListRequiredFields(ctx context.Context, docTypeID int64) ([]model.RequiredField, error)
	// GetDeadline возвращает срок сдачи.
	GetDeadline(ctx context.Context, docTypeID int64) (*model.Deadline, error)
	// SetDeadline устанавливает срок сдачи; nil снимает срок.
	SetDeadline(ctx context.Context, docTypeID int64, date *time.Time) error
}

type catalogRepo struct {
	db DBTX
}

// NewCatalogRepository создаёт репозиторий каталога.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) CreateDepartment(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO departments (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: подразделение %q уже существует", ErrConflict, name)
		}
		return 0, fmt.Errorf("ошибка создания подразделения: %w", err)
	}
	return id, nil
}

func (r *catalogRepo) CreateDocType(ctx context.Context, dt *model.DocType) error {
	query := `
		INSERT INTO doc_types (department_id, title)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	if err := r.db.QueryRow(ctx, query, dt.DepartmentID, dt.Title).Scan(&dt.ID, &dt.CreatedAt, &dt.UpdatedAt); err != nil {
		return fmt.Errorf("ошибка создания типа документа: %w", err)
	}
	return nil
}

func (r *catalogRepo) AddRequiredField(ctx context.Context, f *model.RequiredField) error {
	query := `
		INSERT INTO required_fields (doc_type_id, field_name, example_value, order_no)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if err := r.db.QueryRow(ctx, query, f.DocTypeID, f.FieldName, f.ExampleValue, f.OrderNo).Scan(&f.ID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: поле %q уже задано", ErrConflict, f.FieldName)
		}
		return fmt.Errorf("ошибка добавления обязательного поля: %w", err)
	}
	return nil
}

func (r *catalogRepo) GetDocType(ctx context.Context, id int64) (*model.DocType, error) {
	query := `
		SELECT id, department_id, title, created_at, updated_at
		FROM doc_types
		WHERE id = $1`

	dt := &model.DocType{}
	err := r.db.QueryRow(ctx, query, id).Scan(&dt.ID, &dt.DepartmentID, &dt.Title, &dt.CreatedAt, &dt.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения типа документа: %w", err)
	}
	return dt, nil
}

func (r *catalogRepo) ListRequiredFields(ctx context.Context, docTypeID int64) ([]model.RequiredField, error) {
	query := `
		SELECT id, doc_type_id, field_name, example_value, order_no
		FROM required_fields
		WHERE doc_type_id = $1
		ORDER BY order_no, id`

	rows, err := r.db.Query(ctx, query, docTypeID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения обязательных полей: %w", err)
	}
	defer rows.Close()

	var result []model.RequiredField
	for rows.Next() {
		var f model.RequiredField
		if err := rows.Scan(&f.ID, &f.DocTypeID, &f.FieldName, &f.ExampleValue, &f.OrderNo); err != nil {
			return nil, fmt.Errorf("ошибка сканирования обязательного поля: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *catalogRepo) GetDeadline(ctx context.Context, docTypeID int64) (*model.Deadline, error) {
	d := &model.Deadline{DocTypeID: docTypeID}
	err := r.db.QueryRow(ctx, `SELECT deadline FROM doc_types WHERE id = $1`, docTypeID).Scan(&d.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения срока сдачи: %w", err)
	}
	return d, nil
}

func (r *catalogRepo) SetDeadline(ctx context.Context, docTypeID int64, date *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE doc_types SET deadline = $2, updated_at = now() WHERE id = $1`,
		docTypeID, date,
	)
	if err != nil {
		return fmt.Errorf("ошибка установки срока сдачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
