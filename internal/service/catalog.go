// catalog.go — каталог типов документов: чтение с кэшем, срок сдачи,
// файл-шаблон типа документа.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/repository"
)

// CatalogService — типы документов, обязательные поля и сроки сдачи.
// Кэш per-instance; изменение срока инвалидирует запись.
type CatalogService struct {
	repo     repository.CatalogRepository
	store    Store
	files    *FileVersionStore
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time

	docTypes  *expirable.LRU[int64, *model.DocType]
	fields    *expirable.LRU[int64, []model.RequiredField]
	deadlines *expirable.LRU[int64, *model.Deadline]
}

// CatalogOptions — параметры каталога.
type CatalogOptions struct {
	CacheSize int
	CacheTTL  time.Duration
	// Location — часовой пояс календарных дат сроков сдачи
	Location *time.Location
}

// NewCatalogService создаёт каталог с LRU-кэшем.
func NewCatalogService(repo repository.CatalogRepository, store Store, files *FileVersionStore, opts CatalogOptions, logger *slog.Logger) *CatalogService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &CatalogService{
		repo:      repo,
		store:     store,
		files:     files,
		location:  loc,
		logger:    logger.With(slog.String("component", "catalog")),
		now:       time.Now,
		docTypes:  expirable.NewLRU[int64, *model.DocType](opts.CacheSize, nil, opts.CacheTTL),
		fields:    expirable.NewLRU[int64, []model.RequiredField](opts.CacheSize, nil, opts.CacheTTL),
		deadlines: expirable.NewLRU[int64, *model.Deadline](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// cached возвращает значение из кэша или загружает его.
func cached[V any](cache *expirable.LRU[int64, V], key int64, load func() (V, error)) (V, error) {
	if v, ok := cache.Get(key); ok {
		catalogCacheHitsTotal.Inc()
		return v, nil
	}
	catalogCacheMissesTotal.Inc()

	v, err := load()
	if err != nil {
		return v, err
	}
	cache.Add(key, v)
	return v, nil
}

// DocType возвращает тип документа. ErrNotFound — тип не существует.
func (c *CatalogService) DocType(ctx context.Context, id int64) (*model.DocType, error) {
	return cached(c.docTypes, id, func() (*model.DocType, error) {
		dt, err := c.repo.GetDocType(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: тип документа %d", ErrNotFound, id)
			}
			return nil, err
		}
		return dt, nil
	})
}

// RequiredFields возвращает обязательные поля типа документа.
func (c *CatalogService) RequiredFields(ctx context.Context, docTypeID int64) ([]model.RequiredField, error) {
	return cached(c.fields, docTypeID, func() ([]model.RequiredField, error) {
		return c.repo.ListRequiredFields(ctx, docTypeID)
	})
}

// Deadline возвращает срок сдачи. Date == nil — срок не установлен.
func (c *CatalogService) Deadline(ctx context.Context, docTypeID int64) (*model.Deadline, error) {
	if _, err := c.DocType(ctx, docTypeID); err != nil {
		return nil, err
	}
	return cached(c.deadlines, docTypeID, func() (*model.Deadline, error) {
		return c.repo.GetDeadline(ctx, docTypeID)
	})
}

// EnsureOpen возвращает ErrDeadlinePassed, если сегодняшняя дата
// в часовом поясе каталога позже срока сдачи.
func (c *CatalogService) EnsureOpen(ctx context.Context, docTypeID int64) error {
	d, err := c.Deadline(ctx, docTypeID)
	if err != nil {
		return err
	}
	if d.Date == nil {
		return nil
	}
	if c.today().After(dateOnly(*d.Date)) {
		return fmt.Errorf("%w: срок %s", ErrDeadlinePassed, d.Date.Format(time.DateOnly))
	}
	return nil
}

// SetDeadline устанавливает срок сдачи. Допускаются только даты после сегодняшней.
func (c *CatalogService) SetDeadline(ctx context.Context, docTypeID int64, date time.Time) (*model.Deadline, error) {
	if _, err := c.DocType(ctx, docTypeID); err != nil {
		return nil, err
	}

	day := dateOnly(date)
	if !day.After(c.today()) {
		return nil, fmt.Errorf("%w: срок сдачи должен быть позже сегодняшней даты", ErrValidation)
	}

	if err := c.repo.SetDeadline(ctx, docTypeID, &day); err != nil {
		return nil, c.mapRepoErr(err, docTypeID)
	}
	c.deadlines.Remove(docTypeID)

	c.logger.Info("Срок сдачи установлен",
		slog.Int64("doc_type_id", docTypeID),
		slog.String("deadline", day.Format(time.DateOnly)),
	)
	return &model.Deadline{DocTypeID: docTypeID, Date: &day}, nil
}

// ClearDeadline снимает срок сдачи.
func (c *CatalogService) ClearDeadline(ctx context.Context, docTypeID int64) error {
	if err := c.repo.SetDeadline(ctx, docTypeID, nil); err != nil {
		return c.mapRepoErr(err, docTypeID)
	}
	c.deadlines.Remove(docTypeID)

	c.logger.Info("Срок сдачи снят", slog.Int64("doc_type_id", docTypeID))
	return nil
}

// PutTemplate заменяет файл-шаблон типа документа.
func (c *CatalogService) PutTemplate(ctx context.Context, docTypeID int64, up FileUpload) (*model.CurrentFile, error) {
	if _, err := c.DocType(ctx, docTypeID); err != nil {
		return nil, err
	}

	var cf *model.CurrentFile
	err := c.store.InScope(ctx, func(scope *repository.Scope) error {
		var err error
		cf, err = c.files.Put(ctx, scope, model.DocTypeOwner(docTypeID), up)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cf, nil
}

// OpenTemplate открывает файл-шаблон. Вызывающий закрывает ReadCloser.
func (c *CatalogService) OpenTemplate(ctx context.Context, docTypeID int64) (io.ReadCloser, *model.CurrentFile, error) {
	return c.files.Open(ctx, c.store.Direct(), model.DocTypeOwner(docTypeID))
}

func (c *CatalogService) today() time.Time {
	return dateOnly(c.now().In(c.location))
}

func (c *CatalogService) mapRepoErr(err error, docTypeID int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: тип документа %d", ErrNotFound, docTypeID)
	}
	return err
}

// dateOnly отбрасывает время, сохраняя календарную дату.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
