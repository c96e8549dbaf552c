// file_versions.go — хранилище единственной текущей версии файла владельца.
//
// Замена файла (Put) внутри транзакции Scope:
//  1. новый файл пишется под уникальным ключом в пространстве имён владельца
//  2. указатель current_files переключается на новый ключ
//  3. после коммита удаляется старый файл, после отката — новый
//
// Если запись указателя не удалась, новый файл удаляется сразу,
// и ошибка возвращается вызывающему.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/repository"
	"github.com/bigkaa/docreview/internal/storage"
)

// FileUpload — загружаемый файл.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// FileVersionStore — текущие файлы заявок и шаблонов типов документов.
type FileVersionStore struct {
	backend storage.Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewFileVersionStore создаёт хранилище текущих файлов.
func NewFileVersionStore(backend storage.Backend, logger *slog.Logger) *FileVersionStore {
	return &FileVersionStore{
		backend: backend,
		logger:  logger.With(slog.String("component", "file_versions")),
		now:     time.Now,
	}
}

// Put записывает новый файл владельца и переключает указатель.
func (s *FileVersionStore) Put(ctx context.Context, scope *repository.Scope, owner model.FileOwner, up FileUpload) (*model.CurrentFile, error) {
	key := storage.ObjectKey(owner.Namespace(), up.Filename)

	obj, err := s.backend.Save(ctx, key, up.Content, up.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrPathTraversal) {
			return nil, fmt.Errorf("%w: %v", ErrPathTraversal, err)
		}
		return nil, fmt.Errorf("ошибка записи файла: %w", err)
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	cf := &model.CurrentFile{
		Owner:        owner,
		Locator:      obj.Key,
		OriginalName: up.Filename,
		ContentType:  contentType,
		Size:         obj.Size,
		Checksum:     obj.Checksum,
		UploadedAt:   s.now().UTC(),
	}

	previous, err := scope.Files.Upsert(ctx, cf)
	if err != nil {
		s.remove(ctx, obj.Key, "откат записи указателя")
		return nil, err
	}

	scope.AfterRollback(func() {
		s.remove(ctx, obj.Key, "откат транзакции")
	})
	if previous != nil && *previous != obj.Key {
		old := *previous
		scope.AfterCommit(func() {
			if _, err := storage.WithinNamespace(old, owner.Namespace()); err != nil {
				s.logger.Error("Предыдущий файл вне пространства имён владельца, удаление пропущено",
					slog.String("owner", owner.String()),
					slog.String("locator", old),
				)
				return
			}
			s.remove(ctx, old, "замена версии")
		})
	}

	s.logger.Debug("Файл владельца записан",
		slog.String("owner", owner.String()),
		slog.String("locator", obj.Key),
		slog.Int64("size", obj.Size),
	)

	return cf, nil
}

// Current возвращает указатель на текущий файл владельца.
func (s *FileVersionStore) Current(ctx context.Context, scope *repository.Scope, owner model.FileOwner) (*model.CurrentFile, error) {
	cf, err := scope.Files.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: у %s нет файла", ErrNotFound, owner)
		}
		return nil, err
	}
	return cf, nil
}

// Open открывает текущий файл владельца.
// ErrNotFound — указателя нет, ErrStorageCorrupt — указатель есть, файла нет,
// ErrPathTraversal — локатор вне пространства имён владельца.
// Вызывающий обязан закрыть ReadCloser.
func (s *FileVersionStore) Open(ctx context.Context, scope *repository.Scope, owner model.FileOwner) (io.ReadCloser, *model.CurrentFile, error) {
	cf, err := s.Current(ctx, scope, owner)
	if err != nil {
		return nil, nil, err
	}

	key, err := storage.WithinNamespace(cf.Locator, owner.Namespace())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}

	rc, err := s.backend.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			s.logger.Error("Файл из указателя отсутствует в хранилище",
				slog.String("owner", owner.String()),
				slog.String("locator", key),
			)
			return nil, nil, fmt.Errorf("%w: %s", ErrStorageCorrupt, key)
		}
		return nil, nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	return rc, cf, nil
}

// remove удаляет физический файл; ошибка только логируется.
func (s *FileVersionStore) remove(ctx context.Context, key, reason string) {
	if err := s.backend.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("Ошибка удаления файла",
			slog.String("locator", key),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}
