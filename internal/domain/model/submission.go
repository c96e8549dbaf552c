// Пакет model — доменные модели Review Module.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status — статус заявки в жизненном цикле проверки.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusBotReview   Status = "BOT_REVIEW"
	StatusNeedsFix    Status = "NEEDS_FIX"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
)

// AllStatuses — все статусы в порядке жизненного цикла.
var AllStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusBotReview, StatusNeedsFix,
	StatusUnderReview, StatusApproved, StatusRejected,
}

// ParseStatus преобразует строку в Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("недопустимый статус: %q", s)
}

// IsTerminal возвращает true для APPROVED и REJECTED.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// HistoryAction — категория записи истории.
type HistoryAction string

const (
	ActionSubmitted HistoryAction = "SUBMITTED"
	ActionModified  HistoryAction = "MODIFIED"
	ActionApproved  HistoryAction = "APPROVED"
	ActionRejected  HistoryAction = "REJECTED"
)

// SubmitMode — режим отправки заявки владельцем.
type SubmitMode string

const (
	// SubmitFinal — отправка через автоматическую проверку.
	SubmitFinal SubmitMode = "FINAL"
	// SubmitDirect — сразу в очередь администратора.
	SubmitDirect SubmitMode = "DIRECT"
)

// ParseSubmitMode разбирает режим отправки.
func ParseSubmitMode(s string) (SubmitMode, error) {
	switch m := SubmitMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case SubmitFinal, SubmitDirect:
		return m, nil
	default:
		return "", fmt.Errorf("недопустимый режим отправки: %q, допустимые: FINAL, DIRECT", s)
	}
}

// Submission — заявка владельца по типу документа.
type Submission struct {
	ID              string
	OwnerID         string
	DocTypeID       int64
	Status          Status
	RejectionReason *string
	SubmittedAt     *time.Time
	ReviewedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HistoryEntry — неизменяемая запись журнала аудита заявки.
type HistoryEntry struct {
	ID           int64
	SubmissionID string
	Action       HistoryAction
	Memo         string
	// ActorID — nil для действий владельца и системы
	ActorID *string
	// Detail — сериализованный подробный результат проверки (режим подробного аудита)
	Detail    []byte
	CreatedAt time.Time
}

// OwnerKind — тип владельца файла.
type OwnerKind string

const (
	OwnerSubmission OwnerKind = "submission"
	OwnerDocType    OwnerKind = "doc_type"
)

// FileOwner — владелец единственного текущего файла.
type FileOwner struct {
	Kind OwnerKind
	ID   string
}

// SubmissionOwner возвращает владельца-заявку.
func SubmissionOwner(id string) FileOwner {
	return FileOwner{Kind: OwnerSubmission, ID: id}
}

// DocTypeOwner возвращает владельца-тип документа.
func DocTypeOwner(id int64) FileOwner {
	return FileOwner{Kind: OwnerDocType, ID: fmt.Sprintf("%d", id)}
}

// Namespace возвращает префикс ключей хранилища для владельца.
func (o FileOwner) Namespace() string {
	switch o.Kind {
	case OwnerDocType:
		return "doctype/" + o.ID
	default:
		return "submissions/" + o.ID
	}
}

func (o FileOwner) String() string {
	return string(o.Kind) + ":" + o.ID
}

// CurrentFile — указатель на текущий файл владельца.
type CurrentFile struct {
	Owner        FileOwner
	Locator      string
	OriginalName string
	ContentType  string
	Size         int64
	Checksum     string
	UploadedAt   time.Time
}

// FieldValue — значение поля формы заявки.
type FieldValue struct {
	SubmissionID    string
	RequiredFieldID *int64
	FieldName       string
	FieldValue      string
}

// SubmissionView — заявка с данными для списков: название типа
// документа и имя текущего файла (nil, если файла нет).
type SubmissionView struct {
	Submission
	DocTypeTitle string
	FileName     *string
}
