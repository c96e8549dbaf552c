// Пакет storage — физическое хранилище файлов заявок и шаблонов.
// Ключи хранилища относительные и привязаны к пространству имён владельца
// (например, submissions/<id>/<uuid>_<name>.pdf).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/bigkaa/docreview/internal/config"
)

var (
	// ErrNotExist — объект по ключу отсутствует.
	ErrNotExist = errors.New("объект не найден в хранилище")
	// ErrPathTraversal — ключ выходит за пределы пространства имён.
	ErrPathTraversal = errors.New("ключ выходит за пределы хранилища")
)

// Object — результат записи объекта.
type Object struct {
	Key string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// Backend — байтово-адресуемое хранилище по ключу.
type Backend interface {
	// Save записывает содержимое r под ключом key целиком или не записывает ничего.
	Save(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)
	// Open открывает объект для чтения; ErrNotExist, если его нет.
	// Вызывающий обязан закрыть ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete удаляет объект; отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, key string) (bool, error)
}

// New создаёт бэкенд по типу из конфигурации.
func New(cfg *config.Config) (Backend, error) {
	switch cfg.StorageType {
	case config.StorageTypeLocal:
		return NewLocal(cfg.StorageDir)
	case config.StorageTypeS3:
		return NewS3(S3Options{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("неподдерживаемый тип хранилища: %s", cfg.StorageType)
	}
}

// CleanKey нормализует ключ и отклоняет абсолютные пути и выход через «..».
func CleanKey(key string) (string, error) {
	k := strings.ReplaceAll(key, "\\", "/")
	if k == "" || strings.HasPrefix(k, "/") || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, key)
	}
	cleaned := path.Clean(k)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, key)
	}
	return cleaned, nil
}

// WithinNamespace проверяет, что ключ лежит внутри пространства имён.
func WithinNamespace(key, namespace string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	ns, err := CleanKey(namespace)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(cleaned, ns+"/") {
		return "", fmt.Errorf("%w: %q вне %q", ErrPathTraversal, key, namespace)
	}
	return cleaned, nil
}

// ObjectKey формирует уникальный ключ объекта в пространстве имён.
// Формат: {namespace}/{uuid8}_{name}.{ext}
func ObjectKey(namespace, originalFilename string) string {
	base := filepath.Base(strings.ReplaceAll(originalFilename, "\\", "/"))
	ext := filepath.Ext(base)
	name := sanitize(strings.TrimSuffix(base, ext))

	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}

	uid := uuid.New().String()[:8]
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		return fmt.Sprintf("%s/%s_%s.%s", namespace, uid, name, sanitize(ext))
	}
	return fmt.Sprintf("%s/%s_%s", namespace, uid, name)
}

// sanitize оставляет буквы и цифры любых алфавитов, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}
