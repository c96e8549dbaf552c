// admin_review.go — решения администратора по заявкам.
package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/docreview/internal/domain/lifecycle"
	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/repository"
)

// Заметки истории действий администратора.
const (
	MemoReviewStarted = "관리자 검토 시작"
	MemoApproved      = "승인 처리되었습니다."
	MemoRejectPrefix  = "반려 사유: "

	// SystemActorLabel — подпись записи истории без администратора.
	SystemActorLabel = "학생/시스템"
)

// SubmissionDetail — заявка для администратора с полной историей.
type SubmissionDetail struct {
	Submission   *model.Submission
	DocTypeTitle string
	File         *model.CurrentFile
	Fields       []model.FieldValue
	History      []*model.HistoryEntry
}

// ActorLabel — подпись автора записи истории.
func ActorLabel(e *model.HistoryEntry) string {
	if e.ActorID == nil {
		return SystemActorLabel
	}
	return *e.ActorID
}

// AdminReviewService — очередь и решения администратора.
type AdminReviewService struct {
	store   Store
	catalog *CatalogService
	files   *FileVersionStore
	ledger  *AuditLedger
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdminReviewService создаёт AdminReviewService.
func NewAdminReviewService(store Store, catalog *CatalogService, files *FileVersionStore, ledger *AuditLedger, logger *slog.Logger) *AdminReviewService {
	return &AdminReviewService{
		store:   store,
		catalog: catalog,
		files:   files,
		ledger:  ledger,
		logger:  logger.With(slog.String("component", "admin_review")),
		now:     time.Now,
	}
}

// Queue возвращает заявки по типам документов подразделения.
func (a *AdminReviewService) Queue(ctx context.Context, departmentID int64, statuses []model.Status) ([]*model.SubmissionView, error) {
	return a.store.Direct().Submissions.ListByDepartment(ctx, departmentID, statuses)
}

// Detail возвращает заявку с типом документа, файлом, полями и историей.
func (a *AdminReviewService) Detail(ctx context.Context, id string) (*SubmissionDetail, error) {
	direct := a.store.Direct()

	sub, err := direct.Submissions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	dt, err := a.catalog.DocType(ctx, sub.DocTypeID)
	if err != nil {
		return nil, err
	}
	d := &SubmissionDetail{Submission: sub, DocTypeTitle: dt.Title}

	if cf, err := a.files.Current(ctx, direct, model.SubmissionOwner(id)); err == nil {
		d.File = cf
	}

	if d.Fields, err = direct.Fields.List(ctx, id); err != nil {
		return nil, err
	}
	if d.History, err = a.ledger.Trail(ctx, direct, id); err != nil {
		return nil, err
	}
	return d, nil
}

// StartReview переводит заявку в UNDER_REVIEW.
func (a *AdminReviewService) StartReview(ctx context.Context, actorID, id string) (*model.Submission, error) {
	return a.decide(ctx, id, func(scope *repository.Scope, sub *model.Submission, now time.Time) error {
		entry, err := lifecycle.EnterReview(sub, a.cause(model.ActionModified, MemoReviewStarted, actorID, nil), now)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return a.persist(ctx, scope, sub, entry)
	})
}

// Approve одобряет заявку; при необходимости сначала переводит её в UNDER_REVIEW.
func (a *AdminReviewService) Approve(ctx context.Context, actorID, id string) (*model.Submission, error) {
	return a.decide(ctx, id, func(scope *repository.Scope, sub *model.Submission, now time.Time) error {
		if err := a.enterReview(ctx, scope, sub, actorID, now); err != nil {
			return err
		}
		entry, err := lifecycle.Transition(sub, model.StatusApproved,
			a.cause(model.ActionApproved, MemoApproved, actorID, nil), now)
		if err != nil {
			return err
		}
		return a.persist(ctx, scope, sub, entry)
	})
}

// Reject отклоняет заявку с причиной (пустая причина — NoReason).
func (a *AdminReviewService) Reject(ctx context.Context, actorID, id, reason string) (*model.Submission, error) {
	reason = strings.TrimSpace(reason)
	memoReason := reason
	if memoReason == "" {
		memoReason = verdict.NoReason
	}

	var stored *string
	if reason != "" {
		stored = &reason
	}

	return a.decide(ctx, id, func(scope *repository.Scope, sub *model.Submission, now time.Time) error {
		if err := a.enterReview(ctx, scope, sub, actorID, now); err != nil {
			return err
		}
		entry, err := lifecycle.Transition(sub, model.StatusRejected,
			a.cause(model.ActionRejected, MemoRejectPrefix+memoReason, actorID, stored), now)
		if err != nil {
			return err
		}
		return a.persist(ctx, scope, sub, entry)
	})
}

// Download открывает текущий файл заявки. Вызывающий закрывает ReadCloser.
func (a *AdminReviewService) Download(ctx context.Context, id string) (io.ReadCloser, *model.CurrentFile, error) {
	if _, err := a.store.Direct().Submissions.GetByID(ctx, id); err != nil {
		return nil, nil, mapRepoErr(err)
	}
	return a.files.Open(ctx, a.store.Direct(), model.SubmissionOwner(id))
}

// decide выполняет решение над заблокированной заявкой в транзакции.
func (a *AdminReviewService) decide(ctx context.Context, id string, fn func(scope *repository.Scope, sub *model.Submission, now time.Time) error) (*model.Submission, error) {
	var sub *model.Submission
	err := a.store.InScope(ctx, func(scope *repository.Scope) error {
		var err error
		if sub, err = scope.Submissions.GetForUpdate(ctx, id); err != nil {
			return mapRepoErr(err)
		}
		return fn(scope, sub, a.now())
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}

	a.logger.Info("Решение по заявке",
		slog.String("submission_id", id),
		slog.String("status", string(sub.Status)),
	)
	return sub, nil
}

// enterReview переводит заявку в UNDER_REVIEW с записью истории,
// если она ещё не там.
func (a *AdminReviewService) enterReview(ctx context.Context, scope *repository.Scope, sub *model.Submission, actorID string, now time.Time) error {
	entry, err := lifecycle.EnterReview(sub, a.cause(model.ActionModified, MemoReviewStarted, actorID, nil), now)
	if err != nil || entry == nil {
		return err
	}
	return a.ledger.Append(ctx, scope, entry)
}

func (a *AdminReviewService) persist(ctx context.Context, scope *repository.Scope, sub *model.Submission, entry *model.HistoryEntry) error {
	if err := a.ledger.Append(ctx, scope, entry); err != nil {
		return err
	}
	if err := scope.Submissions.SaveState(ctx, sub); err != nil {
		return mapRepoErr(err)
	}
	return nil
}

func (a *AdminReviewService) cause(action model.HistoryAction, memo, actorID string, reason *string) lifecycle.Cause {
	actor := actorID
	return lifecycle.Cause{Action: action, Memo: memo, ActorID: &actor, Reason: reason}
}
