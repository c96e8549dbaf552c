// submissions.go — обработчики /api/v1/submissions endpoints.
// Доступ: роль student, заявки только своего владельца.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/docreview/internal/api/errors"
	"github.com/bigkaa/docreview/internal/api/generated"
	"github.com/bigkaa/docreview/internal/api/middleware"
	"github.com/bigkaa/docreview/internal/domain/model"
)

// CreateSubmission — POST /api/v1/submissions.
// Multipart form: docTypeId, fieldsJson, file.
func (h *APIHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, middleware.RoleStudent)
	if claims == nil {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}

	raw, _ := formValue(r, "docTypeId")
	docTypeID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || docTypeID <= 0 {
		apierrors.ValidationError(w, "Поле docTypeId обязательно и должно быть положительным числом")
		return
	}
	fieldsJSON, _ := formValue(r, "fieldsJson")

	upload, file, ok := h.formFile(w, r)
	if !ok {
		return
	}
	if file != nil {
		defer file.Close()
	}

	summary, err := h.submissions.Create(r.Context(), claims.Subject, docTypeID, fieldsJSON, upload)
	if err != nil {
		h.writeServiceError(w, err, "создание заявки")
		return
	}
	writeJSON(w, http.StatusCreated, mapSummary(summary))
}

// ListMySubmissions — GET /api/v1/submissions/my.
func (h *APIHandler) ListMySubmissions(w http.ResponseWriter, r *http.Request, params generated.ListMySubmissionsParams) {
	claims := requireRole(w, r, middleware.RoleStudent)
	if claims == nil {
		return
	}

	limit := 0
	if params.Limit != nil {
		limit = *params.Limit
	}
	statusCSV := ""
	if params.Status != nil {
		statusCSV = *params.Status
	}

	views, err := h.submissions.ListMine(r.Context(), claims.Subject, limit, statusCSV)
	if err != nil {
		h.writeServiceError(w, err, "получение списка заявок")
		return
	}
	writeJSON(w, http.StatusOK, mapSubmissionList(views))
}

// GetSubmission — GET /api/v1/submissions/{submissionId}.
func (h *APIHandler) GetSubmission(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleStudent)
	if claims == nil {
		return
	}

	summary, err := h.submissions.Get(r.Context(), claims.Subject, submissionId.String())
	if err != nil {
		h.writeServiceError(w, err, "получение заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapSummary(summary))
}

// UpdateSubmission — PUT /api/v1/submissions/{submissionId}.
// Multipart form: fieldsJson и/или file, оба опциональны.
func (h *APIHandler) UpdateSubmission(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleStudent)
	if claims == nil {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}

	var fieldsJSON *string
	if v, ok := formValue(r, "fieldsJson"); ok {
		fieldsJSON = &v
	}

	upload, file, ok := h.formFile(w, r)
	if !ok {
		return
	}
	if file != nil {
		defer file.Close()
	}

	summary, err := h.submissions.Update(r.Context(), claims.Subject, submissionId.String(), fieldsJSON, upload)
	if err != nil {
		h.writeServiceError(w, err, "изменение заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapSummary(summary))
}

// SubmitSubmission — POST /api/v1/submissions/{submissionId}/submit.
func (h *APIHandler) SubmitSubmission(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleStudent)
	if claims == nil {
		return
	}

	var req generated.SubmitRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	mode, err := model.ParseSubmitMode(string(req.Mode))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	summary, err := h.submissions.Submit(r.Context(), claims.Subject, submissionId.String(), mode)
	if err != nil {
		h.writeServiceError(w, err, "отправка заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapSummary(summary))
}

// GetReviewResult — GET /api/v1/submissions/{submissionId}/review-result.
func (h *APIHandler) GetReviewResult(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleStudent)
	if claims == nil {
		return
	}

	res, err := h.submissions.ReviewResult(r.Context(), claims.Subject, submissionId.String())
	if err != nil {
		h.writeServiceError(w, err, "получение результата проверки")
		return
	}

	findings := make([]generated.Finding, 0, len(res.Findings))
	for _, f := range res.Findings {
		findings = append(findings, generated.Finding{Label: f.Label, Message: f.Message})
	}
	writeJSON(w, http.StatusOK, generated.ReviewResult{
		SubmissionId: parseSubmissionID(res.SubmissionID),
		Status:       generated.SubmissionStatus(res.Status),
		SubmittedAt:  res.SubmittedAt,
		DebugTexts:   res.DebugTexts,
		Findings:     findings,
		Verdict:      res.Verdict,
		Reason:       res.Reason,
	})
}
