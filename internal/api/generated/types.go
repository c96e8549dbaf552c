// Пакет generated — контракт HTTP API Review Module в формате oapi-codegen:
// DTO, параметры запросов, ServerInterface и обвязка chi.
package generated

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// SubmissionStatus — статус заявки.
type SubmissionStatus string

// Значения SubmissionStatus.
const (
	SubmissionStatusDRAFT       SubmissionStatus = "DRAFT"
	SubmissionStatusSUBMITTED   SubmissionStatus = "SUBMITTED"
	SubmissionStatusBOTREVIEW   SubmissionStatus = "BOT_REVIEW"
	SubmissionStatusNEEDSFIX    SubmissionStatus = "NEEDS_FIX"
	SubmissionStatusUNDERREVIEW SubmissionStatus = "UNDER_REVIEW"
	SubmissionStatusAPPROVED    SubmissionStatus = "APPROVED"
	SubmissionStatusREJECTED    SubmissionStatus = "REJECTED"
)

// SubmitRequestMode — режим отправки.
type SubmitRequestMode string

// Значения SubmitRequestMode.
const (
	SubmitRequestModeFINAL  SubmitRequestMode = "FINAL"
	SubmitRequestModeDIRECT SubmitRequestMode = "DIRECT"
)

// SubmissionId — идентификатор заявки.
type SubmissionId = openapi_types.UUID

// DocTypeId — идентификатор типа документа.
type DocTypeId = int64

// FileInfo — текущий файл.
type FileInfo struct {
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// FieldValue — значение поля формы.
type FieldValue struct {
	Label           string `json:"label"`
	Value           string `json:"value"`
	RequiredFieldId *int64 `json:"requiredFieldId,omitempty"`
}

// Submission — заявка с файлом и значениями полей.
type Submission struct {
	Id              SubmissionId     `json:"id"`
	DocTypeId       DocTypeId        `json:"docTypeId"`
	Status          SubmissionStatus `json:"status"`
	RejectionReason *string          `json:"rejectionReason,omitempty"`
	SubmittedAt     *time.Time       `json:"submittedAt,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	File            *FileInfo        `json:"file,omitempty"`
	Fields          []FieldValue     `json:"fields"`
}

// SubmissionListItem — строка списка заявок.
type SubmissionListItem struct {
	Id           SubmissionId     `json:"id"`
	OwnerId      string           `json:"ownerId"`
	DocTypeId    DocTypeId        `json:"docTypeId"`
	DocTypeTitle string           `json:"docTypeTitle"`
	Status       SubmissionStatus `json:"status"`
	FileName     string           `json:"fileName"`
	SubmittedAt  *time.Time       `json:"submittedAt,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// SubmissionList — список заявок.
type SubmissionList struct {
	Items []SubmissionListItem `json:"items"`
	Total int                  `json:"total"`
}

// Finding — замечание автоматической проверки.
type Finding struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// ReviewResult — результат автоматической проверки.
type ReviewResult struct {
	SubmissionId SubmissionId     `json:"submissionId"`
	Status       SubmissionStatus `json:"status"`
	SubmittedAt  *time.Time       `json:"submittedAt,omitempty"`
	DebugTexts   []string         `json:"debugTexts"`
	Findings     []Finding        `json:"findings"`
	Verdict      string           `json:"verdict"`
	Reason       string           `json:"reason"`
}

// HistoryEntry — запись истории заявки.
type HistoryEntry struct {
	Id        int64     `json:"id"`
	Action    string    `json:"action"`
	Memo      string    `json:"memo"`
	ActorId   *string   `json:"actorId,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubmissionDetail — заявка для администратора.
type SubmissionDetail struct {
	Submission   Submission     `json:"submission"`
	OwnerId      string         `json:"ownerId"`
	DocTypeTitle string         `json:"docTypeTitle"`
	History      []HistoryEntry `json:"history"`
}

// RequiredField — обязательное поле типа документа.
type RequiredField struct {
	Id           int64   `json:"id"`
	FieldName    string  `json:"fieldName"`
	ExampleValue *string `json:"exampleValue,omitempty"`
	OrderNo      int     `json:"orderNo"`
}

// DocType — тип документа.
type DocType struct {
	Id             DocTypeId       `json:"id"`
	DepartmentId   int64           `json:"departmentId"`
	Title          string          `json:"title"`
	RequiredFields []RequiredField `json:"requiredFields"`
}

// Deadline — срок сдачи; Deadline == nil — срок не установлен.
type Deadline struct {
	DocTypeId DocTypeId           `json:"docTypeId"`
	Deadline  *openapi_types.Date `json:"deadline"`
}

// SetDeadlineRequest — тело PUT /doc-types/{docTypeId}/deadline.
type SetDeadlineRequest struct {
	Deadline *openapi_types.Date `json:"deadline" validate:"required"`
}

// SubmitRequest — тело POST /submissions/{submissionId}/submit.
type SubmitRequest struct {
	Mode SubmitRequestMode `json:"mode" validate:"required"`
}

// RejectRequest — тело POST /admin/submissions/{submissionId}/reject.
type RejectRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

// ListMySubmissionsParams — параметры GET /submissions/my.
type ListMySubmissionsParams struct {
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
	// Status — статусы через запятую
	Status *string `form:"status,omitempty" json:"status,omitempty"`
}

// AdminListSubmissionsParams — параметры GET /admin/submissions.
type AdminListSubmissionsParams struct {
	DepartmentId int64   `form:"departmentId" json:"departmentId"`
	Status       *string `form:"status,omitempty" json:"status,omitempty"`
}
