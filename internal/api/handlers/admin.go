// admin.go — обработчики /api/v1/admin/submissions endpoints.
// Доступ: роль admin.
package handlers

import (
	"net/http"

	"github.com/bigkaa/docreview/internal/api/generated"
	"github.com/bigkaa/docreview/internal/api/middleware"
	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/service"
)

// AdminListSubmissions — GET /api/v1/admin/submissions.
func (h *APIHandler) AdminListSubmissions(w http.ResponseWriter, r *http.Request, params generated.AdminListSubmissionsParams) {
	if requireRole(w, r, middleware.RoleAdmin) == nil {
		return
	}

	var statuses []model.Status
	if params.Status != nil {
		statuses = service.ParseStatusFilter(*params.Status)
	}

	views, err := h.admin.Queue(r.Context(), params.DepartmentId, statuses)
	if err != nil {
		h.writeServiceError(w, err, "получение очереди заявок")
		return
	}
	writeJSON(w, http.StatusOK, mapSubmissionList(views))
}

// AdminGetSubmission — GET /api/v1/admin/submissions/{submissionId}.
func (h *APIHandler) AdminGetSubmission(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r, middleware.RoleAdmin) == nil {
		return
	}

	d, err := h.admin.Detail(r.Context(), submissionId.String())
	if err != nil {
		h.writeServiceError(w, err, "получение заявки")
		return
	}

	resp := generated.SubmissionDetail{
		Submission:   mapSubmission(d.Submission, d.File, d.Fields),
		OwnerId:      d.Submission.OwnerID,
		DocTypeTitle: d.DocTypeTitle,
		History:      make([]generated.HistoryEntry, 0, len(d.History)),
	}
	for _, e := range d.History {
		resp.History = append(resp.History, generated.HistoryEntry{
			Id:        e.ID,
			Action:    string(e.Action),
			Memo:      e.Memo,
			ActorId:   e.ActorID,
			Actor:     service.ActorLabel(e),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdminStartReview — POST /api/v1/admin/submissions/{submissionId}/start-review.
func (h *APIHandler) AdminStartReview(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleAdmin)
	if claims == nil {
		return
	}

	sub, err := h.admin.StartReview(r.Context(), claims.Subject, submissionId.String())
	if err != nil {
		h.writeServiceError(w, err, "начало проверки")
		return
	}
	writeJSON(w, http.StatusOK, mapSubmission(sub, nil, nil))
}

// AdminApproveSubmission — POST /api/v1/admin/submissions/{submissionId}/approve.
func (h *APIHandler) AdminApproveSubmission(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleAdmin)
	if claims == nil {
		return
	}

	sub, err := h.admin.Approve(r.Context(), claims.Subject, submissionId.String())
	if err != nil {
		h.writeServiceError(w, err, "одобрение заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapSubmission(sub, nil, nil))
}

// AdminRejectSubmission — POST /api/v1/admin/submissions/{submissionId}/reject.
// Тело опционально: {"reason": "..."}.
func (h *APIHandler) AdminRejectSubmission(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	claims := requireRole(w, r, middleware.RoleAdmin)
	if claims == nil {
		return
	}

	var req generated.RejectRequest
	if !h.decodeOptionalBody(w, r, &req) {
		return
	}
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}

	sub, err := h.admin.Reject(r.Context(), claims.Subject, submissionId.String(), reason)
	if err != nil {
		h.writeServiceError(w, err, "отклонение заявки")
		return
	}
	writeJSON(w, http.StatusOK, mapSubmission(sub, nil, nil))
}

// AdminDownloadFile — GET /api/v1/admin/submissions/{submissionId}/file.
func (h *APIHandler) AdminDownloadFile(w http.ResponseWriter, r *http.Request, submissionId generated.SubmissionId) { //nolint:revive // имя из сгенерированного интерфейса
	if requireRole(w, r, middleware.RoleAdmin) == nil {
		return
	}

	rc, cf, err := h.admin.Download(r.Context(), submissionId.String())
	if err != nil {
		h.writeServiceError(w, err, "скачивание файла")
		return
	}
	h.serveFile(w, rc, cf)
}
