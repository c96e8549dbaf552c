// Пакет lifecycle — конечный автомат статусов заявки.
//
// Основной путь:
//
//	DRAFT → SUBMITTED → BOT_REVIEW → {SUBMITTED, NEEDS_FIX, REJECTED}
//	{SUBMITTED, BOT_REVIEW, NEEDS_FIX} → UNDER_REVIEW → {APPROVED, REJECTED}
//
// NEEDS_FIX и REJECTED допускают правку и повторную отправку владельцем.
// Только этот пакет меняет поле Status заявки.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// CodeInvalidTransition — машиночитаемый код недопустимого перехода.
const CodeInvalidTransition = "INVALID_TRANSITION"

// ErrNotRevisable — правка заявки в текущем статусе запрещена.
var ErrNotRevisable = errors.New("правка заявки в текущем статусе запрещена")

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[model.Status]map[model.Status]bool{
	model.StatusDraft: {model.StatusSubmitted: true},
	model.StatusSubmitted: {
		model.StatusBotReview:   true,
		model.StatusUnderReview: true,
	},
	model.StatusBotReview: {
		model.StatusSubmitted:   true, // проверка пройдена
		model.StatusNeedsFix:    true,
		model.StatusRejected:    true,
		model.StatusUnderReview: true,
	},
	model.StatusNeedsFix: {
		model.StatusSubmitted:   true, // повторная отправка
		model.StatusNeedsFix:    true, // повторная фиксация сбоя проверки
		model.StatusUnderReview: true,
	},
	model.StatusRejected:    {model.StatusSubmitted: true},
	model.StatusUnderReview: {model.StatusApproved: true, model.StatusRejected: true},
	model.StatusApproved:    {},
}

// revisable — статусы, в которых владелец может править заявку.
var revisable = map[model.Status]bool{
	model.StatusDraft:    true,
	model.StatusRejected: true,
	model.StatusNeedsFix: true,
}

// reviewable — статусы, из которых администратор может начать проверку.
var reviewable = map[model.Status]bool{
	model.StatusSubmitted:   true,
	model.StatusBotReview:   true,
	model.StatusNeedsFix:    true,
	model.StatusUnderReview: true,
}

// Cause — причина перехода; из неё формируется запись истории.
type Cause struct {
	Action model.HistoryAction
	Memo   string
	// ActorID — администратор; nil для владельца и системы
	ActorID *string
	// Reason — причина отклонения администратором
	Reason *string
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string
	From    model.Status
	To      model.Status
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CanTransition проверяет, входит ли ребро (from, to) в таблицу переходов.
func CanTransition(from, to model.Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Transition переводит заявку в статус target и возвращает запись
// истории, которую вызывающий обязан добавить в той же транзакции.
//
// submittedAt ставится при первом входе в SUBMITTED и далее не меняется.
// reviewedAt ставится при решении администратора (APPROVED/REJECTED с ActorID).
func Transition(s *model.Submission, target model.Status, cause Cause, now time.Time) (*model.HistoryEntry, error) {
	if err := apply(s, target, now); err != nil {
		return nil, err
	}

	if cause.ActorID != nil && (target == model.StatusApproved || target == model.StatusRejected) {
		t := now.UTC()
		s.ReviewedAt = &t
		if target == model.StatusRejected {
			s.RejectionReason = cause.Reason
		}
	}

	return Record(s, cause, now), nil
}

// HandOff выполняет передачу SUBMITTED → BOT_REVIEW.
// Ребро входит в ту же операцию, что и запись SUBMITTED, поэтому
// собственной записи истории не создаёт.
func HandOff(s *model.Submission, now time.Time) error {
	if s.Status != model.StatusSubmitted {
		return invalid(s.Status, model.StatusBotReview)
	}
	return apply(s, model.StatusBotReview, now)
}

// Record формирует запись истории без смены статуса.
func Record(s *model.Submission, cause Cause, now time.Time) *model.HistoryEntry {
	return &model.HistoryEntry{
		SubmissionID: s.ID,
		Action:       cause.Action,
		Memo:         cause.Memo,
		ActorID:      cause.ActorID,
		CreatedAt:    now.UTC(),
	}
}

// EnsureRevisable возвращает ErrNotRevisable, если правка запрещена.
func EnsureRevisable(s *model.Submission) error {
	if !revisable[s.Status] {
		return fmt.Errorf("%w: статус %s", ErrNotRevisable, s.Status)
	}
	return nil
}

// CanRevise сообщает, допускает ли статус правку владельцем.
func CanRevise(status model.Status) bool {
	return revisable[status]
}

// IsReviewable сообщает, может ли администратор принять решение по заявке.
func IsReviewable(status model.Status) bool {
	return reviewable[status]
}

// IsActive — нетерминальный статус; активная заявка блокирует создание
// новой для той же пары (владелец, тип документа).
func IsActive(status model.Status) bool {
	return !status.IsTerminal()
}

// EnterReview переводит заявку в UNDER_REVIEW, если она ещё не там.
func EnterReview(s *model.Submission, cause Cause, now time.Time) (*model.HistoryEntry, error) {
	if s.Status == model.StatusUnderReview {
		return nil, nil
	}
	if !reviewable[s.Status] {
		return nil, invalid(s.Status, model.StatusUnderReview)
	}
	return Transition(s, model.StatusUnderReview, cause, now)
}

func apply(s *model.Submission, target model.Status, now time.Time) error {
	if !CanTransition(s.Status, target) {
		return invalid(s.Status, target)
	}

	if target == model.StatusSubmitted && s.SubmittedAt == nil {
		t := now.UTC()
		s.SubmittedAt = &t
	}
	s.Status = target
	s.UpdatedAt = now.UTC()
	return nil
}

func invalid(from, to model.Status) *TransitionError {
	return &TransitionError{
		Code:    CodeInvalidTransition,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
	}
}
