// files.go — разбор multipart-загрузок и отдача файлов.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/docreview/internal/api/errors"
	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/service"
)

const (
	// multipartOverhead — запас на заголовки и текстовые поля формы.
	multipartOverhead = 1 << 20
	// multipartMemory — часть формы, которая держится в памяти.
	multipartMemory = 32 << 20
)

// parseMultipart ограничивает тело запроса и разбирает форму.
func (h *APIHandler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.ValidationError(w, fmt.Sprintf("Размер запроса превышает %d байт", h.maxFileSize))
			return false
		}
		apierrors.ValidationError(w, "Ошибка парсинга multipart: "+err.Error())
		return false
	}
	return true
}

// formFile возвращает загруженный файл из поля "file" или nil, если поля нет.
// Вызывающий закрывает возвращённый multipart.File.
func (h *APIHandler) formFile(w http.ResponseWriter, r *http.Request) (*service.FileUpload, multipart.File, bool) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, true
	}
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' не разобрано: "+err.Error())
		return nil, nil, false
	}
	if header.Size > h.maxFileSize {
		_ = file.Close()
		apierrors.ValidationError(w, fmt.Sprintf("Размер файла превышает %d байт", h.maxFileSize))
		return nil, nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &service.FileUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     file,
	}, file, true
}

// formValue возвращает значение поля формы и признак его наличия.
func formValue(r *http.Request, name string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values, ok := r.MultipartForm.Value[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// serveFile отдаёт файл как вложение и закрывает rc.
func (h *APIHandler) serveFile(w http.ResponseWriter, rc io.ReadCloser, cf *model.CurrentFile) {
	defer rc.Close()

	contentType := cf.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": cf.OriginalName}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	if cf.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(cf.Size, 10))
	}
	if cf.Checksum != "" {
		w.Header().Set("ETag", `"`+cf.Checksum+`"`)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Ошибка отдачи файла",
			slog.String("owner", cf.Owner.String()),
			slog.String("error", err.Error()),
		)
	}
}
