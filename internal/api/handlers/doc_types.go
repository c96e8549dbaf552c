// doc_types.go — обработчики /api/v1/doc-types endpoints:
// тип документа, срок сдачи и файл-шаблон.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/docreview/internal/api/errors"
	"github.com/bigkaa/docreview/internal/api/generated"
	"github.com/bigkaa/docreview/internal/api/middleware"
	"github.com/bigkaa/docreview/internal/domain/model"
)

// GetDocType — GET /api/v1/doc-types/{docTypeId}.
// Доступ: любой аутентифицированный субъект.
func (h *APIHandler) GetDocType(w http.ResponseWriter, r *http.Request, docTypeId generated.DocTypeId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r) == nil {
		return
	}

	dt, err := h.catalog.DocType(r.Context(), docTypeId)
	if err != nil {
		h.writeServiceError(w, err, "получение типа документа")
		return
	}
	fields, err := h.catalog.RequiredFields(r.Context(), docTypeId)
	if err != nil {
		h.writeServiceError(w, err, "получение обязательных полей")
		return
	}

	resp := generated.DocType{
		Id:             dt.ID,
		DepartmentId:   dt.DepartmentID,
		Title:          dt.Title,
		RequiredFields: make([]generated.RequiredField, 0, len(fields)),
	}
	for _, f := range fields {
		resp.RequiredFields = append(resp.RequiredFields, generated.RequiredField{
			Id:           f.ID,
			FieldName:    f.FieldName,
			ExampleValue: f.ExampleValue,
			OrderNo:      f.OrderNo,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDeadline — GET /api/v1/doc-types/{docTypeId}/deadline.
func (h *APIHandler) GetDeadline(w http.ResponseWriter, r *http.Request, docTypeId generated.DocTypeId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r) == nil {
		return
	}

	if _, err := h.catalog.DocType(r.Context(), docTypeId); err != nil {
		h.writeServiceError(w, err, "получение срока сдачи")
		return
	}
	d, err := h.catalog.Deadline(r.Context(), docTypeId)
	if err != nil {
		h.writeServiceError(w, err, "получение срока сдачи")
		return
	}
	writeJSON(w, http.StatusOK, mapDeadline(docTypeId, d))
}

// SetDeadline — PUT /api/v1/doc-types/{docTypeId}/deadline. Доступ: admin.
func (h *APIHandler) SetDeadline(w http.ResponseWriter, r *http.Request, docTypeId generated.DocTypeId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r, middleware.RoleAdmin) == nil {
		return
	}

	var req generated.SetDeadlineRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	d, err := h.catalog.SetDeadline(r.Context(), docTypeId, req.Deadline.Time)
	if err != nil {
		h.writeServiceError(w, err, "установка срока сдачи")
		return
	}
	writeJSON(w, http.StatusOK, mapDeadline(docTypeId, d))
}

// ClearDeadline — DELETE /api/v1/doc-types/{docTypeId}/deadline. Доступ: admin.
func (h *APIHandler) ClearDeadline(w http.ResponseWriter, r *http.Request, docTypeId generated.DocTypeId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r, middleware.RoleAdmin) == nil {
		return
	}

	if err := h.catalog.ClearDeadline(r.Context(), docTypeId); err != nil {
		h.writeServiceError(w, err, "снятие срока сдачи")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadTemplate — GET /api/v1/doc-types/{docTypeId}/template.
func (h *APIHandler) DownloadTemplate(w http.ResponseWriter, r *http.Request, docTypeId generated.DocTypeId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r) == nil {
		return
	}

	rc, cf, err := h.catalog.OpenTemplate(r.Context(), docTypeId)
	if err != nil {
		h.writeServiceError(w, err, "получение шаблона")
		return
	}
	h.serveFile(w, rc, cf)
}

// UploadTemplate — PUT /api/v1/doc-types/{docTypeId}/template.
// Multipart form: file (обязательно). Доступ: admin.
func (h *APIHandler) UploadTemplate(w http.ResponseWriter, r *http.Request, docTypeId generated.DocTypeId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r, middleware.RoleAdmin) == nil {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}

	upload, file, ok := h.formFile(w, r)
	if !ok {
		return
	}
	if upload == nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	cf, err := h.catalog.PutTemplate(r.Context(), docTypeId, *upload)
	if err != nil {
		h.writeServiceError(w, err, "загрузка шаблона")
		return
	}
	writeJSON(w, http.StatusOK, generated.FileInfo{
		FileName:    cf.OriginalName,
		ContentType: cf.ContentType,
		Size:        cf.Size,
		Checksum:    cf.Checksum,
		UploadedAt:  cf.UploadedAt,
	})
}

func mapDeadline(docTypeID int64, d *model.Deadline) generated.Deadline {
	out := generated.Deadline{DocTypeId: docTypeID}
	if d != nil && d.Date != nil {
		out.Deadline = &openapi_types.Date{Time: *d.Date}
	}
	return out
}
