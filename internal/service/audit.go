// audit.go — журнал аудита заявки (только добавление).
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/repository"
)

// DetailMemo — заметка записи с подробным результатом проверки.
const DetailMemo = "자동 검토 상세 결과"

// ReviewDetail — подробный результат автоматической проверки.
type ReviewDetail struct {
	Type           string            `json:"type"`
	Verdict        string            `json:"verdict"`
	Findings       []verdict.Finding `json:"findings"`
	Reason         string            `json:"reason,omitempty"`
	ProcessingTime string            `json:"processing_time,omitempty"`
	DurationMs     int64             `json:"duration_ms"`
	SectionCounts  json.RawMessage   `json:"section_counts,omitempty"`
	Details        json.RawMessage   `json:"details,omitempty"`
	DebugText      string            `json:"debug_text,omitempty"`
}

// AuditLedger — запись и чтение истории заявки.
// Записи только добавляются; изменения и удаления не предусмотрены.
type AuditLedger struct {
	logger *slog.Logger
}

// NewAuditLedger создаёт журнал аудита.
func NewAuditLedger(logger *slog.Logger) *AuditLedger {
	return &AuditLedger{logger: logger.With(slog.String("component", "audit"))}
}

// Append добавляет запись в транзакции scope.
func (a *AuditLedger) Append(ctx context.Context, scope *repository.Scope, e *model.HistoryEntry) error {
	if err := scope.History.Append(ctx, e); err != nil {
		return fmt.Errorf("ошибка записи истории заявки %s: %w", e.SubmissionID, err)
	}
	return nil
}

// AppendDetail добавляет запись с подробным результатом.
// Ошибка сериализации логируется и не прерывает транзакцию,
// ошибка записи в БД возвращается.
func (a *AuditLedger) AppendDetail(ctx context.Context, scope *repository.Scope, submissionID string, d *ReviewDetail, now time.Time) error {
	payload, err := json.Marshal(d)
	if err != nil {
		a.logger.Warn("Не удалось сериализовать подробный результат проверки",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return a.Append(ctx, scope, &model.HistoryEntry{
		SubmissionID: submissionID,
		Action:       model.ActionModified,
		Memo:         DetailMemo,
		Detail:       payload,
		CreatedAt:    now.UTC(),
	})
}

// Trail возвращает историю заявки в порядке добавления.
func (a *AuditLedger) Trail(ctx context.Context, scope *repository.Scope, submissionID string) ([]*model.HistoryEntry, error) {
	entries, err := scope.History.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LatestDetail возвращает последний подробный результат или nil, если его нет.
func (a *AuditLedger) LatestDetail(ctx context.Context, scope *repository.Scope, submissionID string) (*ReviewDetail, error) {
	e, err := scope.History.LatestDetail(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var d ReviewDetail
	if err := json.Unmarshal(e.Detail, &d); err != nil {
		a.logger.Warn("Подробный результат проверки не разобран",
			slog.String("submission_id", submissionID),
			slog.Int64("entry_id", e.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return &d, nil
}
