// handler.go — основной обработчик API, реализующий generated.ServerInterface.
// Делегирует запросы в сервисный слой и переводит ошибки сервиса в ответы API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/docreview/internal/api/errors"
	"github.com/bigkaa/docreview/internal/api/generated"
	"github.com/bigkaa/docreview/internal/api/middleware"
	"github.com/bigkaa/docreview/internal/domain/lifecycle"
	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/service"
)

// SubmissionOps — операции владельца над заявками.
type SubmissionOps interface {
	Create(ctx context.Context, ownerID string, docTypeID int64, fieldsJSON string, file *service.FileUpload) (*service.SubmissionSummary, error)
	Update(ctx context.Context, ownerID, id string, fieldsJSON *string, file *service.FileUpload) (*service.SubmissionSummary, error)
	Submit(ctx context.Context, ownerID, id string, mode model.SubmitMode) (*service.SubmissionSummary, error)
	Get(ctx context.Context, ownerID, id string) (*service.SubmissionSummary, error)
	ListMine(ctx context.Context, ownerID string, limit int, statusCSV string) ([]*model.SubmissionView, error)
	ReviewResult(ctx context.Context, ownerID, id string) (*service.ReviewResult, error)
}

// AdminOps — очередь и решения администратора.
type AdminOps interface {
	Queue(ctx context.Context, departmentID int64, statuses []model.Status) ([]*model.SubmissionView, error)
	Detail(ctx context.Context, id string) (*service.SubmissionDetail, error)
	StartReview(ctx context.Context, actorID, id string) (*model.Submission, error)
	Approve(ctx context.Context, actorID, id string) (*model.Submission, error)
	Reject(ctx context.Context, actorID, id, reason string) (*model.Submission, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *model.CurrentFile, error)
}

// CatalogOps — типы документов, сроки и шаблоны.
type CatalogOps interface {
	DocType(ctx context.Context, id int64) (*model.DocType, error)
	RequiredFields(ctx context.Context, docTypeID int64) ([]model.RequiredField, error)
	Deadline(ctx context.Context, docTypeID int64) (*model.Deadline, error)
	SetDeadline(ctx context.Context, docTypeID int64, date time.Time) (*model.Deadline, error)
	ClearDeadline(ctx context.Context, docTypeID int64) error
	PutTemplate(ctx context.Context, docTypeID int64, up service.FileUpload) (*model.CurrentFile, error)
	OpenTemplate(ctx context.Context, docTypeID int64) (io.ReadCloser, *model.CurrentFile, error)
}

// APIHandler — основной обработчик API Review Module.
type APIHandler struct {
	health      *HealthHandler
	submissions SubmissionOps
	admin       AdminOps
	catalog     CatalogOps
	maxFileSize int64
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxFileSize — предельный размер загружаемого файла в байтах.
func NewAPIHandler(
	health *HealthHandler,
	submissions SubmissionOps,
	admin AdminOps,
	catalog CatalogOps,
	maxFileSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		submissions: submissions,
		admin:       admin,
		catalog:     catalog,
		maxFileSize: maxFileSize,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

var _ generated.ServerInterface = (*APIHandler)(nil)

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// requireRole возвращает claims, если у субъекта есть одна из ролей.
// Иначе пишет 401/403 и возвращает nil.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...string) *middleware.AuthClaims {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return nil
	}
	if len(roles) > 0 && !claims.HasAnyRole(roles...) {
		apierrors.Forbidden(w, "Недостаточно прав для операции")
		return nil
	}
	return claims
}

// decodeBody разбирает JSON-тело и проверяет теги validate.
func (h *APIHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decode(w, r, dst, false)
}

// decodeOptionalBody — как decodeBody, но пустое тело допустимо.
func (h *APIHandler) decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decode(w, r, dst, true)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			apierrors.ValidationError(w, "Некорректное поле "+verrs[0].Field()+": "+verrs[0].Tag())
			return false
		}
		apierrors.ValidationError(w, err.Error())
		return false
	}
	return true
}

// writeServiceError переводит ошибку сервиса в ответ API.
// op — описание операции для лога и сообщения о внутренней ошибке.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var te *lifecycle.TransitionError
	switch {
	case errors.As(err, &te):
		apierrors.InvalidTransition(w, te.Message)
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrDeadlinePassed):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrStorageCorrupt), errors.Is(err, service.ErrPathTraversal):
		h.logger.Error("Файл недоступен в хранилище",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.StorageCorrupt(w, "Файл недоступен в хранилище")
	default:
		h.logger.Error("Ошибка операции",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка: "+op)
	}
}

// parseSubmissionID — идентификатор заявки в формате API.
func parseSubmissionID(id string) generated.SubmissionId {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return u
}

func mapSubmission(sub *model.Submission, file *model.CurrentFile, fields []model.FieldValue) generated.Submission {
	out := generated.Submission{
		Id:              parseSubmissionID(sub.ID),
		DocTypeId:       sub.DocTypeID,
		Status:          generated.SubmissionStatus(sub.Status),
		RejectionReason: sub.RejectionReason,
		SubmittedAt:     sub.SubmittedAt,
		ReviewedAt:      sub.ReviewedAt,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
		Fields:          make([]generated.FieldValue, 0, len(fields)),
	}
	if file != nil {
		out.File = &generated.FileInfo{
			FileName:    file.OriginalName,
			ContentType: file.ContentType,
			Size:        file.Size,
			Checksum:    file.Checksum,
			UploadedAt:  file.UploadedAt,
		}
	}
	for _, f := range fields {
		out.Fields = append(out.Fields, generated.FieldValue{
			Label:           f.FieldName,
			Value:           f.FieldValue,
			RequiredFieldId: f.RequiredFieldID,
		})
	}
	return out
}

func mapSummary(s *service.SubmissionSummary) generated.Submission {
	return mapSubmission(s.Submission, s.File, s.Fields)
}

func mapSubmissionList(views []*model.SubmissionView) generated.SubmissionList {
	items := make([]generated.SubmissionListItem, 0, len(views))
	for _, v := range views {
		items = append(items, generated.SubmissionListItem{
			Id:           parseSubmissionID(v.ID),
			OwnerId:      v.OwnerID,
			DocTypeId:    v.DocTypeID,
			DocTypeTitle: v.DocTypeTitle,
			Status:       generated.SubmissionStatus(v.Status),
			FileName:     service.FileLabel(v),
			SubmittedAt:  v.SubmittedAt,
			CreatedAt:    v.CreatedAt,
		})
	}
	return generated.SubmissionList{Items: items, Total: len(items)}
}
