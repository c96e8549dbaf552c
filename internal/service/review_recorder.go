// review_recorder.go — фиксация результата автоматической проверки
// в собственной транзакции, независимой от транзакции отправки.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/docreview/internal/domain/lifecycle"
	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/repository"
	"github.com/bigkaa/docreview/internal/reviewclient"
)

// ReviewRecorder применяет вердикт или сбой проверки к заявке.
type ReviewRecorder struct {
	store         Store
	ledger        *AuditLedger
	detailEnabled bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewReviewRecorder создаёт ReviewRecorder.
// detailEnabled включает запись подробного результата проверки в историю.
func NewReviewRecorder(store Store, ledger *AuditLedger, detailEnabled bool, logger *slog.Logger) *ReviewRecorder {
	return &ReviewRecorder{
		store:         store,
		ledger:        ledger,
		detailEnabled: detailEnabled,
		logger:        logger.With(slog.String("component", "review_recorder")),
		now:           time.Now,
	}
}

// RecordOutcome применяет ответ сервиса проверки.
//
// Статус меняется, только если заявка всё ещё в BOT_REVIEW. Если за время
// проверки администратор уже взял заявку, вердикт попадает только в историю.
// Подробный результат пишется отдельной транзакцией после основной; его сбой
// только логируется.
func (r *ReviewRecorder) RecordOutcome(ctx context.Context, submissionID string, res *reviewclient.Result, elapsed time.Duration) error {
	decision := res.Decision()
	outcome := verdict.Map(decision, res.Findings, res.Reason)

	now := r.now()
	err := r.store.InScope(ctx, func(scope *repository.Scope) error {
		sub, err := r.load(ctx, scope, submissionID)
		if err != nil {
			return err
		}

		cause := lifecycle.Cause{Action: outcome.Action, Memo: sanitizeText(outcome.Memo)}

		entry, err := r.apply(ctx, scope, sub, outcome.Target, cause, now)
		if err != nil {
			return err
		}
		if err := r.ledger.Append(ctx, scope, entry); err != nil {
			return err
		}

		r.logger.Info("Результат проверки записан",
			slog.String("submission_id", submissionID),
			slog.String("verdict", decision.Kind.String()),
			slog.String("status", string(sub.Status)),
		)
		return nil
	})
	if err != nil {
		return err
	}
	reviewVerdictsTotal.WithLabelValues(decision.Kind.String()).Inc()

	if r.detailEnabled {
		r.recordDetail(ctx, submissionID, &ReviewDetail{
			Type:           "ocr_review",
			Verdict:        sanitizeText(decision.Raw),
			Findings:       sanitizeFindings(res.Findings),
			Reason:         sanitizeText(res.Reason),
			ProcessingTime: sanitizeText(res.ProcessingTime),
			DurationMs:     elapsed.Milliseconds(),
			SectionCounts:  res.SectionCounts,
			Details:        res.Details,
			DebugText:      sanitizeText(res.DebugText),
		}, now)
	}
	return nil
}

// recordDetail добавляет запись с подробным результатом в собственной транзакции.
func (r *ReviewRecorder) recordDetail(ctx context.Context, submissionID string, d *ReviewDetail, now time.Time) {
	err := r.store.InScope(ctx, func(scope *repository.Scope) error {
		return r.ledger.AppendDetail(ctx, scope, submissionID, d, now)
	})
	if err != nil {
		reviewDetailFailuresTotal.Inc()
		r.logger.Warn("Подробный результат проверки не записан",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()),
		)
	}
}

// RecordFailure переводит заявку в NEEDS_FIX с причиной сбоя.
// Повторный вызов для заявки в NEEDS_FIX добавляет ещё одну запись истории.
func (r *ReviewRecorder) RecordFailure(ctx context.Context, submissionID, reason string) error {
	return r.recordFailure(ctx, submissionID, reason, false)
}

// RecordAbandoned переводит в NEEDS_FIX заявку, чьё событие проверки
// исчерпало попытки доставки. Заявка вне BOT_REVIEW не меняется.
func (r *ReviewRecorder) RecordAbandoned(ctx context.Context, submissionID, reason string) error {
	return r.recordFailure(ctx, submissionID, reason, true)
}

func (r *ReviewRecorder) recordFailure(ctx context.Context, submissionID, reason string, onlyBotReview bool) error {
	reason = sanitizeText(reason)
	return r.store.InScope(ctx, func(scope *repository.Scope) error {
		sub, err := r.load(ctx, scope, submissionID)
		if err != nil {
			return err
		}
		if onlyBotReview && sub.Status != model.StatusBotReview {
			return nil
		}

		cause := lifecycle.Cause{Action: model.ActionModified, Memo: reason}
		entry, err := r.apply(ctx, scope, sub, model.StatusNeedsFix, cause, r.now())
		if err != nil {
			return err
		}
		if err := r.ledger.Append(ctx, scope, entry); err != nil {
			return err
		}

		r.logger.Warn("Сбой проверки записан",
			slog.String("submission_id", submissionID),
			slog.String("reason", reason),
			slog.String("status", string(sub.Status)),
		)
		return nil
	})
}

func (r *ReviewRecorder) load(ctx context.Context, scope *repository.Scope, submissionID string) (*model.Submission, error) {
	sub, err := scope.Submissions.GetForUpdate(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, submissionID)
		}
		return nil, err
	}
	return sub, nil
}

// apply меняет статус, если переход допустим из текущего состояния
// автоматической проверки, иначе только формирует запись истории.
func (r *ReviewRecorder) apply(ctx context.Context, scope *repository.Scope, sub *model.Submission, target model.Status, cause lifecycle.Cause, now time.Time) (*model.HistoryEntry, error) {
	automated := sub.Status == model.StatusBotReview ||
		(sub.Status == model.StatusNeedsFix && target == model.StatusNeedsFix)
	if !automated {
		r.logger.Warn("Заявка вышла из автоматической проверки, статус не меняется",
			slog.String("submission_id", sub.ID),
			slog.String("status", string(sub.Status)),
			slog.String("target", string(target)),
		)
		return lifecycle.Record(sub, cause, now), nil
	}

	entry, err := lifecycle.Transition(sub, target, cause, now)
	if err != nil {
		return nil, err
	}
	if err := scope.Submissions.SaveState(ctx, sub); err != nil {
		return nil, fmt.Errorf("ошибка сохранения статуса заявки %s: %w", sub.ID, err)
	}
	return entry, nil
}

// sanitizeText удаляет NUL-байты: PostgreSQL не принимает их в TEXT и JSONB.
func sanitizeText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func sanitizeFindings(f []verdict.Finding) []verdict.Finding {
	out := make([]verdict.Finding, 0, len(f))
	for _, item := range f {
		out = append(out, verdict.Finding{
			Label:   sanitizeText(item.Label),
			Message: sanitizeText(item.Message),
		})
	}
	return out
}
