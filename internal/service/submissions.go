// submissions.go — операции владельца над заявками: создание, правка,
// отправка, просмотр и результат автоматической проверки.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/docreview/internal/domain/lifecycle"
	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/repository"
)

// Заметки истории действий владельца.
const (
	MemoCreated        = "학생 제출"
	MemoDraftSaved     = "학생 수정(임시 저장)"
	MemoFinalSubmit    = "학생 최종제출(FINAL)"
	MemoFinalResubmit  = "학생 재제출(FINAL)"
	MemoDirectSubmit   = "학생 바로제출(DIRECT)"
	MemoDirectResubmit = "학생 재제출(DIRECT)"

	// NoFileLabel — подпись в списках для заявки без файла.
	NoFileLabel = "(파일 미존재)"
)

// Лимиты списка заявок владельца.
const (
	DefaultListLimit = 10
	MaxListLimit     = 20
)

// SubmissionSummary — заявка с текущим файлом и значениями полей.
type SubmissionSummary struct {
	Submission *model.Submission
	// File — nil, если файла нет
	File   *model.CurrentFile
	Fields []model.FieldValue
}

// ReviewResult — история и последний подробный результат проверки.
type ReviewResult struct {
	SubmissionID string
	Status       model.Status
	SubmittedAt  *time.Time
	// DebugTexts — заметки всех записей истории по порядку
	DebugTexts []string
	Findings   []verdict.Finding
	Verdict    string
	Reason     string
}

// SubmissionService — операции владельца над заявками.
type SubmissionService struct {
	store    Store
	catalog  *CatalogService
	files    *FileVersionStore
	ledger   *AuditLedger
	notifier *CommitNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewSubmissionService создаёт SubmissionService.
func NewSubmissionService(
	store Store,
	catalog *CatalogService,
	files *FileVersionStore,
	ledger *AuditLedger,
	notifier *CommitNotifier,
	logger *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		store:    store,
		catalog:  catalog,
		files:    files,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "submissions")),
		now:      time.Now,
	}
}

// Create создаёт заявку с файлом и передаёт её на автоматическую проверку.
// Сигнал проверки становится видимым только после коммита.
func (s *SubmissionService) Create(ctx context.Context, ownerID string, docTypeID int64, fieldsJSON string, file *FileUpload) (*SubmissionSummary, error) {
	if _, err := s.catalog.DocType(ctx, docTypeID); err != nil {
		return nil, err
	}
	if err := s.catalog.EnsureOpen(ctx, docTypeID); err != nil {
		return nil, err
	}
	if file == nil || file.Size <= 0 || file.Content == nil {
		return nil, fmt.Errorf("%w: файл обязателен и не может быть пустым", ErrValidation)
	}

	inputs, err := ParseFields(fieldsJSON)
	if err != nil {
		return nil, err
	}
	required, err := s.catalog.RequiredFields(ctx, docTypeID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNoActive(ctx, ownerID, docTypeID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &model.Submission{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		DocTypeID: docTypeID,
		Status:    model.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	summary := &SubmissionSummary{Submission: sub}
	err = s.store.InScope(ctx, func(scope *repository.Scope) error {
		if err := scope.Submissions.Create(ctx, sub); err != nil {
			return mapRepoErr(err)
		}

		cf, err := s.files.Put(ctx, scope, model.SubmissionOwner(sub.ID), *file)
		if err != nil {
			return err
		}
		summary.File = cf

		values := BindFields(sub.ID, inputs, required)
		if err := scope.Fields.Replace(ctx, sub.ID, values); err != nil {
			return err
		}
		summary.Fields = values

		entry, err := lifecycle.Transition(sub, model.StatusSubmitted,
			lifecycle.Cause{Action: model.ActionSubmitted, Memo: MemoCreated}, now)
		if err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, scope, entry); err != nil {
			return err
		}

		return s.handOff(ctx, scope, sub, now)
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}

	s.logger.Info("Заявка создана",
		slog.String("submission_id", sub.ID),
		slog.String("owner_id", ownerID),
		slog.Int64("doc_type_id", docTypeID),
		slog.String("status", string(sub.Status)),
	)
	return summary, nil
}

// Update правит файл и/или значения полей заявки (черновое сохранение).
// fieldsJSON == nil и file == nil — без изменений.
func (s *SubmissionService) Update(ctx context.Context, ownerID, id string, fieldsJSON *string, file *FileUpload) (*SubmissionSummary, error) {
	var inputs []FieldInput
	if fieldsJSON != nil {
		var err error
		if inputs, err = ParseFields(*fieldsJSON); err != nil {
			return nil, err
		}
	}
	if file != nil && (file.Size <= 0 || file.Content == nil) {
		return nil, fmt.Errorf("%w: файл не может быть пустым", ErrValidation)
	}

	summary := &SubmissionSummary{}
	err := s.store.InScope(ctx, func(scope *repository.Scope) error {
		sub, err := s.lockOwned(ctx, scope, ownerID, id)
		if err != nil {
			return err
		}
		summary.Submission = sub

		if err := lifecycle.EnsureRevisable(sub); err != nil {
			return err
		}

		changed := false
		if fieldsJSON != nil {
			required, err := s.catalog.RequiredFields(ctx, sub.DocTypeID)
			if err != nil {
				return err
			}
			if err := scope.Fields.Replace(ctx, sub.ID, BindFields(sub.ID, inputs, required)); err != nil {
				return err
			}
			changed = true
		}
		if file != nil {
			if _, err := s.files.Put(ctx, scope, model.SubmissionOwner(sub.ID), *file); err != nil {
				return err
			}
			changed = true
		}
		if !changed {
			return nil
		}

		now := s.now()
		entry := lifecycle.Record(sub, lifecycle.Cause{Action: model.ActionModified, Memo: MemoDraftSaved}, now)
		if err := s.ledger.Append(ctx, scope, entry); err != nil {
			return err
		}
		return s.save(ctx, scope, sub)
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}

	return s.fill(ctx, summary)
}

// Submit отправляет заявку: FINAL — через автоматическую проверку,
// DIRECT — сразу в очередь администратора.
func (s *SubmissionService) Submit(ctx context.Context, ownerID, id string, mode model.SubmitMode) (*SubmissionSummary, error) {
	if mode != model.SubmitFinal && mode != model.SubmitDirect {
		return nil, fmt.Errorf("%w: режим отправки обязателен (FINAL или DIRECT)", ErrValidation)
	}

	summary := &SubmissionSummary{}
	err := s.store.InScope(ctx, func(scope *repository.Scope) error {
		sub, err := s.lockOwned(ctx, scope, ownerID, id)
		if err != nil {
			return err
		}
		summary.Submission = sub

		if err := lifecycle.EnsureRevisable(sub); err != nil {
			return err
		}
		if err := s.catalog.EnsureOpen(ctx, sub.DocTypeID); err != nil {
			return err
		}
		if mode == model.SubmitFinal {
			if _, err := s.files.Current(ctx, scope, model.SubmissionOwner(sub.ID)); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: для отправки FINAL нужен файл", ErrValidation)
				}
				return err
			}
		}

		now := s.now().UTC()
		entry, err := lifecycle.Transition(sub, model.StatusSubmitted,
			lifecycle.Cause{Action: model.ActionSubmitted, Memo: submitMemo(mode, sub.Status)}, now)
		if err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, scope, entry); err != nil {
			return err
		}

		if mode == model.SubmitFinal {
			return s.handOff(ctx, scope, sub, now)
		}
		return s.save(ctx, scope, sub)
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}

	s.logger.Info("Заявка отправлена",
		slog.String("submission_id", id),
		slog.String("mode", string(mode)),
		slog.String("status", string(summary.Submission.Status)),
	)
	return s.fill(ctx, summary)
}

// Get возвращает заявку владельца.
func (s *SubmissionService) Get(ctx context.Context, ownerID, id string) (*SubmissionSummary, error) {
	sub, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.fill(ctx, &SubmissionSummary{Submission: sub})
}

// ListMine возвращает заявки владельца, новые первыми.
// limit приводится к [1, MaxListLimit] (0 — DefaultListLimit),
// неизвестные статусы в statusCSV игнорируются.
func (s *SubmissionService) ListMine(ctx context.Context, ownerID string, limit int, statusCSV string) ([]*model.SubmissionView, error) {
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit < 1:
		limit = 1
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.store.Direct().Submissions.ListByOwner(ctx, ownerID, ParseStatusFilter(statusCSV), limit)
}

// ReviewResult возвращает заметки истории и последний подробный результат проверки.
func (s *SubmissionService) ReviewResult(ctx context.Context, ownerID, id string) (*ReviewResult, error) {
	sub, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	direct := s.store.Direct()
	trail, err := s.ledger.Trail(ctx, direct, id)
	if err != nil {
		return nil, err
	}

	res := &ReviewResult{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		SubmittedAt:  sub.SubmittedAt,
		DebugTexts:   make([]string, 0, len(trail)),
		Findings:     []verdict.Finding{},
	}
	for _, e := range trail {
		res.DebugTexts = append(res.DebugTexts, e.Memo)
	}

	detail, err := s.ledger.LatestDetail(ctx, direct, id)
	if err != nil {
		return nil, err
	}
	if detail != nil {
		res.Verdict = detail.Verdict
		res.Reason = detail.Reason
		if detail.Findings != nil {
			res.Findings = detail.Findings
		}
	}
	return res, nil
}

// FileLabel — имя файла для списков.
func FileLabel(v *model.SubmissionView) string {
	if v.FileName == nil || *v.FileName == "" {
		return NoFileLabel
	}
	return *v.FileName
}

// ParseStatusFilter разбирает список статусов через запятую.
// Неизвестные значения пропускаются.
func ParseStatusFilter(csv string) []model.Status {
	var out []model.Status
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if st, err := model.ParseStatus(part); err == nil {
			out = append(out, st)
		}
	}
	return out
}

func submitMemo(mode model.SubmitMode, from model.Status) string {
	resubmit := from == model.StatusRejected || from == model.StatusNeedsFix
	switch {
	case mode == model.SubmitFinal && resubmit:
		return MemoFinalResubmit
	case mode == model.SubmitFinal:
		return MemoFinalSubmit
	case resubmit:
		return MemoDirectResubmit
	default:
		return MemoDirectSubmit
	}
}

// handOff передаёт заявку на автоматическую проверку в той же транзакции.
func (s *SubmissionService) handOff(ctx context.Context, scope *repository.Scope, sub *model.Submission, now time.Time) error {
	if err := lifecycle.HandOff(sub, now); err != nil {
		return err
	}
	if err := s.save(ctx, scope, sub); err != nil {
		return err
	}
	return s.notifier.Publish(ctx, scope, sub.ID)
}

func (s *SubmissionService) save(ctx context.Context, scope *repository.Scope, sub *model.Submission) error {
	if err := scope.Submissions.SaveState(ctx, sub); err != nil {
		return mapRepoErr(err)
	}
	return nil
}

func (s *SubmissionService) ensureNoActive(ctx context.Context, ownerID string, docTypeID int64) error {
	active, err := s.store.Direct().Submissions.FindActive(ctx, ownerID, docTypeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: незавершённая заявка %s (%s) уже существует", ErrConflict, active.ID, active.Status)
}

func (s *SubmissionService) lockOwned(ctx context.Context, scope *repository.Scope, ownerID, id string) (*model.Submission, error) {
	sub, err := scope.Submissions.GetForUpdate(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if sub.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: заявка %s", ErrForbidden, id)
	}
	return sub, nil
}

func (s *SubmissionService) getOwned(ctx context.Context, ownerID, id string) (*model.Submission, error) {
	sub, err := s.store.Direct().Submissions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if sub.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: заявка %s", ErrForbidden, id)
	}
	return sub, nil
}

// fill дополняет сводку текущим файлом и значениями полей.
func (s *SubmissionService) fill(ctx context.Context, summary *SubmissionSummary) (*SubmissionSummary, error) {
	direct := s.store.Direct()
	id := summary.Submission.ID

	cf, err := s.files.Current(ctx, direct, model.SubmissionOwner(id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	summary.File = cf

	fields, err := direct.Fields.List(ctx, id)
	if err != nil {
		return nil, err
	}
	summary.Fields = fields
	return summary, nil
}

// mapRepoErr переводит ошибки репозиториев в ошибки сервиса.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

// mapLifecycleErr переводит ошибки жизненного цикла в ErrConflict,
// сохраняя исходную ошибку в цепочке.
func mapLifecycleErr(err error) error {
	var te *lifecycle.TransitionError
	if errors.As(err, &te) || errors.Is(err, lifecycle.ErrNotRevisable) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
