package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// CurrentFileRepository — указатели на текущие файлы владельцев.
// На владельца не более одной строки (PRIMARY KEY owner_kind, owner_id).
type CurrentFileRepository interface {
	// Get возвращает текущий файл владельца.
	Get(ctx context.Context, owner model.FileOwner) (*model.CurrentFile, error)
	// Upsert записывает указатель и возвращает предыдущий локатор (nil, если файла не было).
	Upsert(ctx context.Context, f *model.CurrentFile) (previous *string, err error)
}

type currentFileRepo struct {
	db DBTX
}

// NewCurrentFileRepository создаёт репозиторий текущих файлов.
func NewCurrentFileRepository(db DBTX) CurrentFileRepository {
	return &currentFileRepo{db: db}
}

func (r *currentFileRepo) Get(ctx context.Context, owner model.FileOwner) (*model.CurrentFile, error) {
	query := `
		SELECT locator, original_name, content_type, size, checksum, uploaded_at
		FROM current_files
		WHERE owner_kind = $1 AND owner_id = $2`

	f := &model.CurrentFile{Owner: owner}
	err := r.db.QueryRow(ctx, query, owner.Kind, owner.ID).Scan(
		&f.Locator, &f.OriginalName, &f.ContentType, &f.Size, &f.Checksum, &f.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения текущего файла: %w", err)
	}
	return f, nil
}

func (r *currentFileRepo) Upsert(ctx context.Context, f *model.CurrentFile) (*string, error) {
	// prev читает снимок до вставки и блокирует строку владельца
	query := `
		WITH prev AS (
			SELECT locator FROM current_files
			WHERE owner_kind = $1 AND owner_id = $2
			FOR UPDATE
		)
		INSERT INTO current_files (owner_kind, owner_id, locator, original_name,
			content_type, size, checksum, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_kind, owner_id) DO UPDATE SET
			locator = EXCLUDED.locator,
			original_name = EXCLUDED.original_name,
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			checksum = EXCLUDED.checksum,
			uploaded_at = EXCLUDED.uploaded_at
		RETURNING (SELECT locator FROM prev)`

	var previous *string
	err := r.db.QueryRow(ctx, query,
		f.Owner.Kind, f.Owner.ID, f.Locator, f.OriginalName,
		f.ContentType, f.Size, f.Checksum, f.UploadedAt,
	).Scan(&previous)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи текущего файла: %w", err)
	}
	return previous, nil
}
