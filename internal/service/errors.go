// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"context"
	"errors"

	"github.com/bigkaa/docreview/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — операция недопустима в текущем состоянии ресурса.
	ErrConflict = errors.New("конфликт состояния ресурса")
	// ErrForbidden — ресурс принадлежит другому владельцу.
	ErrForbidden = errors.New("доступ к ресурсу запрещён")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrDeadlinePassed — срок сдачи документа истёк.
	ErrDeadlinePassed = errors.New("срок сдачи истёк")
	// ErrPathTraversal — локатор файла выходит за пределы хранилища владельца.
	ErrPathTraversal = errors.New("локатор файла вне хранилища владельца")
	// ErrStorageCorrupt — указатель на файл есть, а самого файла нет.
	ErrStorageCorrupt = errors.New("файл отсутствует в хранилище")
	// ErrReviewerUnavailable — сервис проверки недоступен.
	ErrReviewerUnavailable = errors.New("сервис проверки недоступен")
	// ErrMalformedReviewerResponse — ответ сервиса проверки не разобран.
	ErrMalformedReviewerResponse = errors.New("некорректный ответ сервиса проверки")
)

// Store — доступ к репозиториям: транзакционный и прямой.
type Store interface {
	// InScope выполняет fn в транзакции и по её завершении запускает хуки Scope.
	InScope(ctx context.Context, fn func(s *repository.Scope) error) error
	// Direct возвращает репозитории вне транзакции.
	Direct() *repository.Scope
}
