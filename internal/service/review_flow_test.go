package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/reviewclient"
)

// TestReviewFlow_Pass — PASS: заявка возвращается в SUBMITTED,
// после записи SUBMITTED добавляется одна запись MODIFIED.
func TestReviewFlow_Pass(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)

	created := env.state.submission(id)
	if created.Status != model.StatusBotReview {
		t.Fatalf("Статус после создания = %s, ожидался BOT_REVIEW", created.Status)
	}
	if created.SubmittedAt == nil {
		t.Fatal("submittedAt должен быть установлен при создании")
	}

	if n := env.drain(t); n != 1 {
		t.Fatalf("Обработано токенов: %d, ожидался 1", n)
	}

	got := env.state.submission(id)
	if got.Status != model.StatusSubmitted {
		t.Errorf("Статус = %s, ожидался SUBMITTED", got.Status)
	}
	if !got.SubmittedAt.Equal(*created.SubmittedAt) {
		t.Errorf("submittedAt изменился: %v → %v", created.SubmittedAt, got.SubmittedAt)
	}

	history := env.state.historyOf(id)
	if len(history) != 2 {
		t.Fatalf("Записей истории: %d, ожидалось 2", len(history))
	}
	if history[0].Action != model.ActionSubmitted || history[0].Memo != MemoCreated {
		t.Errorf("Первая запись = %s %q", history[0].Action, history[0].Memo)
	}
	if history[1].Action != model.ActionModified || history[1].Memo != verdict.PassMemo {
		t.Errorf("Вторая запись = %s %q, ожидалось MODIFIED %q", history[1].Action, history[1].Memo, verdict.PassMemo)
	}
	if history[1].ActorID != nil {
		t.Error("Запись автоматической проверки не должна иметь администратора")
	}

	events := env.state.outboxEvents()
	if len(events) != 1 || events[0].Status != model.OutboxDone {
		t.Errorf("Событие outbox: %+v, ожидался статус done", events)
	}
}

// TestReviewFlow_Timeout — таймаут вызова: NEEDS_FIX с пометкой транспортного сбоя,
// создание заявки при этом уже завершилось успешно.
func TestReviewFlow_Timeout(t *testing.T) {
	env := newTestEnv(t)
	env.reviewer.reviewFn = func(context.Context, io.Reader) (*reviewclient.Result, error) {
		return nil, fmt.Errorf("%w: context deadline exceeded (Client.Timeout exceeded while awaiting headers)", reviewclient.ErrUnavailable)
	}

	id := env.createSubmission(t)
	env.drain(t)

	got := env.state.submission(id)
	if got.Status != model.StatusNeedsFix {
		t.Fatalf("Статус = %s, ожидался NEEDS_FIX", got.Status)
	}

	history := env.state.historyOf(id)
	last := history[len(history)-1]
	if last.Action != model.ActionModified {
		t.Errorf("Действие = %s, ожидалось MODIFIED", last.Action)
	}
	if !strings.HasPrefix(last.Memo, verdict.FailurePrefix+"OCR 호출 오류") {
		t.Errorf("Заметка %q не содержит пометку сбоя вызова", last.Memo)
	}

	events := env.state.outboxEvents()
	if events[0].Status != model.OutboxDone {
		t.Errorf("Сбой вызова не повторяется: событие должно быть done, получено %s", events[0].Status)
	}
	if env.reviewer.calls != 1 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидался 1 (без повторов)", env.reviewer.calls)
	}
}

// TestReviewFlow_Reject — REJECT с причиной: REJECTED и шаблонная заметка.
func TestReviewFlow_Reject(t *testing.T) {
	env := newTestEnv(t)
	env.reviewer.reviewFn = func(context.Context, io.Reader) (*reviewclient.Result, error) {
		return &reviewclient.Result{Verdict: "REJECT", Reason: "wrong form", Findings: []verdict.Finding{}}, nil
	}

	id := env.createSubmission(t)
	env.drain(t)

	got := env.state.submission(id)
	if got.Status != model.StatusRejected {
		t.Fatalf("Статус = %s, ожидался REJECTED", got.Status)
	}
	if got.ReviewedAt != nil || got.RejectionReason != nil {
		t.Error("Автоматическое отклонение не ставит reviewedAt и rejectionReason")
	}

	history := env.state.historyOf(id)
	last := history[len(history)-1]
	if last.Action != model.ActionRejected {
		t.Errorf("Действие = %s, ожидалось REJECTED", last.Action)
	}
	if last.Memo != "자동 검토 실패: wrong form" {
		t.Errorf("Заметка = %q", last.Memo)
	}
}

// TestReviewFlow_Outcomes проверяет остальные варианты ответа сервиса.
func TestReviewFlow_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		result     *reviewclient.Result
		err        error
		wantStatus model.Status
		wantMemo   string
	}{
		{
			name: "NEEDS_FIX с замечаниями",
			result: &reviewclient.Result{Verdict: "NEEDS_FIX", Findings: []verdict.Finding{
				{Label: "서명", Message: "누락"},
			}},
			wantStatus: model.StatusNeedsFix,
			wantMemo:   verdict.FailurePrefix + "서명: 누락",
		},
		{
			name:       "нераспознанный вердикт",
			result:     &reviewclient.Result{Verdict: "MAYBE"},
			wantStatus: model.StatusNeedsFix,
			wantMemo:   verdict.UnrecognizedMemo,
		},
		{
			name:       "пустой вердикт",
			result:     &reviewclient.Result{},
			wantStatus: model.StatusNeedsFix,
			wantMemo:   verdict.UnrecognizedMemo,
		},
		{
			name:       "некорректный ответ",
			err:        fmt.Errorf("%w: unexpected EOF", reviewclient.ErrMalformedResponse),
			wantStatus: model.StatusNeedsFix,
			wantMemo:   verdict.FailurePrefix + "OCR 호출 오류 - ",
		},
		{
			name:       "прочая ошибка",
			err:        errors.New("boom"),
			wantStatus: model.StatusNeedsFix,
			wantMemo:   verdict.FailurePrefix + "시스템 오류 - boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.reviewer.reviewFn = func(context.Context, io.Reader) (*reviewclient.Result, error) {
				return tt.result, tt.err
			}

			id := env.createSubmission(t)
			env.drain(t)

			got := env.state.submission(id)
			if got.Status != tt.wantStatus {
				t.Errorf("Статус = %s, ожидался %s", got.Status, tt.wantStatus)
			}
			history := env.state.historyOf(id)
			last := history[len(history)-1].Memo
			if !strings.HasPrefix(last, tt.wantMemo) {
				t.Errorf("Заметка = %q, ожидался префикс %q", last, tt.wantMemo)
			}
		})
	}
}

// TestReviewFlow_Panic — паника в вызове превращается в NEEDS_FIX.
func TestReviewFlow_Panic(t *testing.T) {
	env := newTestEnv(t)
	env.reviewer.reviewFn = func(context.Context, io.Reader) (*reviewclient.Result, error) {
		panic("nil map")
	}

	id := env.createSubmission(t)
	env.drain(t)

	if got := env.state.submission(id); got.Status != model.StatusNeedsFix {
		t.Fatalf("Статус = %s, ожидался NEEDS_FIX", got.Status)
	}
	history := env.state.historyOf(id)
	if memo := history[len(history)-1].Memo; !strings.Contains(memo, "시스템 오류") {
		t.Errorf("Заметка = %q, ожидалась системная ошибка", memo)
	}
}

// TestReviewFlow_MissingFile — указателя на файл нет: сбой без вызова сервиса.
func TestReviewFlow_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)

	env.state.mu.Lock()
	delete(env.state.files, model.SubmissionOwner(id))
	env.state.mu.Unlock()

	env.drain(t)

	if got := env.state.submission(id); got.Status != model.StatusNeedsFix {
		t.Fatalf("Статус = %s, ожидался NEEDS_FIX", got.Status)
	}
	history := env.state.historyOf(id)
	if memo := history[len(history)-1].Memo; memo != verdict.FailurePrefix+"파일 없음" {
		t.Errorf("Заметка = %q", memo)
	}
	if env.reviewer.calls != 0 {
		t.Errorf("Сервис проверки вызван %d раз, ожидалось 0", env.reviewer.calls)
	}
}

// TestReviewFlow_StorageCorrupt — указатель есть, файла нет.
func TestReviewFlow_StorageCorrupt(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)

	cf, err := env.files.Current(context.Background(), env.store.Direct(), model.SubmissionOwner(id))
	if err != nil {
		t.Fatalf("Ошибка получения файла: %v", err)
	}
	if err := env.backend.Delete(context.Background(), cf.Locator); err != nil {
		t.Fatalf("Ошибка удаления: %v", err)
	}

	env.drain(t)

	history := env.state.historyOf(id)
	if memo := history[len(history)-1].Memo; !strings.HasPrefix(memo, verdict.FailurePrefix+"파일 읽기 오류") {
		t.Errorf("Заметка = %q, ожидалась ошибка чтения файла", memo)
	}
}

// TestReviewFlow_DuplicateToken — повторный токен того же события не вызывает
// вторую проверку.
func TestReviewFlow_DuplicateToken(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)

	tok := <-env.notifier.Ready()
	env.orch.Handle(context.Background(), tok)
	env.orch.Handle(context.Background(), tok)

	if env.reviewer.calls != 1 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидался 1", env.reviewer.calls)
	}
	if n := len(env.state.historyOf(id)); n != 2 {
		t.Errorf("Записей истории: %d, ожидалось 2", n)
	}
}

// TestReviewFlow_AdminTookOver — администратор взял заявку до ответа сервиса:
// статус не меняется, вердикт фиксируется в истории.
func TestReviewFlow_AdminTookOver(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)

	env.reviewer.reviewFn = func(ctx context.Context, _ io.Reader) (*reviewclient.Result, error) {
		if _, err := env.admin.StartReview(ctx, testAdmin, id); err != nil {
			t.Errorf("Ошибка начала проверки: %v", err)
		}
		return &reviewclient.Result{Verdict: "REJECT", Reason: "late"}, nil
	}
	env.drain(t)

	got := env.state.submission(id)
	if got.Status != model.StatusUnderReview {
		t.Errorf("Статус = %s, ожидался UNDER_REVIEW", got.Status)
	}
	history := env.state.historyOf(id)
	last := history[len(history)-1]
	if last.Action != model.ActionRejected || !strings.Contains(last.Memo, "late") {
		t.Errorf("Последняя запись = %s %q", last.Action, last.Memo)
	}
}

// TestReviewFlow_DetailWriteFailure — БД отвергает запись подробного результата:
// статус по вердикту применён, событие завершено, повторного вызова нет.
func TestReviewFlow_DetailWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.detailEnabled = true
	env.setFailHistoryIf(func(e *model.HistoryEntry) error {
		if e.Detail != nil {
			return errors.New("unsupported Unicode escape sequence (SQLSTATE 22P05)")
		}
		return nil
	})
	id := env.createSubmission(t)

	relay := NewOutboxRelay(env.store, env.notifier, env.recorder,
		OutboxRelayConfig{Interval: time.Hour, Grace: time.Minute, BatchSize: 10, MaxAttempts: 5}, testLogger())
	now := time.Now()
	for i := 1; i <= 10; i++ {
		env.drain(t)
		relay.now = func() time.Time { return now.Add(time.Duration(i) * 10 * time.Minute) }
		if _, err := relay.RunOnce(context.Background()); err != nil {
			t.Fatalf("Ошибка прохода relay: %v", err)
		}
	}

	if got := env.state.submission(id); got.Status != model.StatusSubmitted {
		t.Errorf("Статус = %s, ожидался SUBMITTED", got.Status)
	}
	if calls := env.reviewerCalls(); calls != 1 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидался 1", calls)
	}
	history := env.state.historyOf(id)
	if len(history) != 2 || history[1].Memo != verdict.PassMemo {
		t.Errorf("История = %+v, ожидались SUBMITTED и запись PASS", history)
	}
	if ev := env.state.outboxEvents()[0]; ev.Status != model.OutboxDone {
		t.Errorf("Статус события = %s, ожидался done", ev.Status)
	}
}

// TestReviewFlow_OutcomeWriteFailure — вердикт не записан: заявка переходит
// в NEEDS_FIX с системной причиной, событие завершено.
func TestReviewFlow_OutcomeWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.reviewer.reviewFn = func(context.Context, io.Reader) (*reviewclient.Result, error) {
		return &reviewclient.Result{Verdict: "REJECT", Reason: "wrong form"}, nil
	}
	env.setFailHistoryIf(func(e *model.HistoryEntry) error {
		if e.Action == model.ActionRejected {
			return errors.New("deadlock detected")
		}
		return nil
	})
	id := env.createSubmission(t)

	env.drain(t)

	if got := env.state.submission(id); got.Status != model.StatusNeedsFix {
		t.Fatalf("Статус = %s, ожидался NEEDS_FIX", got.Status)
	}
	history := env.state.historyOf(id)
	last := history[len(history)-1]
	if !strings.HasPrefix(last.Memo, verdict.FailurePrefix+"시스템 오류 - 결과 기록 실패") {
		t.Errorf("Заметка = %q", last.Memo)
	}
	if !strings.Contains(last.Memo, "deadlock detected") {
		t.Errorf("Заметка %q не содержит причину", last.Memo)
	}
	if ev := env.state.outboxEvents()[0]; ev.Status != model.OutboxDone {
		t.Errorf("Статус события = %s, ожидался done", ev.Status)
	}
	if calls := env.reviewerCalls(); calls != 1 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидался 1", calls)
	}
}

// TestReviewFlow_RedeliveryReusesResponse — не записан ни вердикт, ни сбой:
// повторная доставка записывает сохранённый ответ без нового вызова.
func TestReviewFlow_RedeliveryReusesResponse(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)
	env.setFailHistory(errors.New("connection reset"))

	env.drain(t)

	ev := env.state.outboxEvents()[0]
	if ev.Status != model.OutboxPending {
		t.Fatalf("Статус события = %s, ожидался pending", ev.Status)
	}
	if ev.LastError == nil || !strings.Contains(*ev.LastError, "connection reset") {
		t.Errorf("LastError = %v", ev.LastError)
	}
	if got := env.state.submission(id); got.Status != model.StatusBotReview {
		t.Fatalf("Статус = %s, ожидался BOT_REVIEW до повторной доставки", got.Status)
	}

	env.setFailHistory(nil)
	relay := NewOutboxRelay(env.store, env.notifier, env.recorder,
		OutboxRelayConfig{Interval: time.Hour, Grace: time.Minute, BatchSize: 10, MaxAttempts: 5}, testLogger())
	relay.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n, err := relay.RunOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v; ожидалось 1", n, err)
	}
	env.drain(t)

	if got := env.state.submission(id); got.Status != model.StatusSubmitted {
		t.Errorf("Статус = %s, ожидался SUBMITTED", got.Status)
	}
	if calls := env.reviewerCalls(); calls != 1 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидался 1", calls)
	}
	if ev := env.state.outboxEvents()[0]; ev.Status != model.OutboxDone {
		t.Errorf("Статус события = %s, ожидался done", ev.Status)
	}
}

// TestReviewFlow_DeadEventNeedsFix — событие исчерпало попытки, пока БД
// недоступна: после восстановления relay переводит заявку в NEEDS_FIX.
func TestReviewFlow_DeadEventNeedsFix(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)
	env.setFailHistory(errors.New("connection reset"))

	relay := NewOutboxRelay(env.store, env.notifier, env.recorder,
		OutboxRelayConfig{Interval: time.Hour, Grace: time.Minute, BatchSize: 10, MaxAttempts: 2}, testLogger())
	now := time.Now()

	env.drain(t)
	relay.now = func() time.Time { return now.Add(2 * time.Minute) }
	if n, err := relay.RunOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v; ожидалось 1", n, err)
	}
	env.drain(t)

	if calls := env.reviewerCalls(); calls != 1 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидался 1", calls)
	}
	if ev := env.state.outboxEvents()[0]; ev.AttemptCount != 2 || ev.Status != model.OutboxPending {
		t.Fatalf("Событие = %+v, ожидались 2 попытки и pending", ev)
	}

	env.setFailHistory(nil)
	relay.now = func() time.Time { return now.Add(4 * time.Minute) }
	if n, err := relay.RunOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("RunOnce = %d, %v; ожидалось 0", n, err)
	}

	if ev := env.state.outboxEvents()[0]; ev.Status != model.OutboxDead {
		t.Errorf("Статус события = %s, ожидался dead", ev.Status)
	}
	if got := env.state.submission(id); got.Status != model.StatusNeedsFix {
		t.Fatalf("Статус = %s, ожидался NEEDS_FIX", got.Status)
	}
	history := env.state.historyOf(id)
	if last := history[len(history)-1]; last.Memo != abandonedReason {
		t.Errorf("Заметка = %q, ожидалась %q", last.Memo, abandonedReason)
	}
}

// TestReviewFlow_SkipsNonBotReview — заявка уже вне BOT_REVIEW: событие
// завершается без вызова сервиса.
func TestReviewFlow_SkipsNonBotReview(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubmission(t)

	if _, err := env.admin.Approve(context.Background(), testAdmin, id); err != nil {
		t.Fatalf("Ошибка одобрения: %v", err)
	}
	env.drain(t)

	if env.reviewer.calls != 0 {
		t.Errorf("Вызовов сервиса проверки: %d, ожидалось 0", env.reviewer.calls)
	}
	if ev := env.state.outboxEvents()[0]; ev.Status != model.OutboxDone {
		t.Errorf("Статус события = %s, ожидался done", ev.Status)
	}
}

// TestReviewOrchestrator_StartStop — обработчики забирают токены из очереди.
func TestReviewOrchestrator_StartStop(t *testing.T) {
	env := newTestEnv(t)
	done := make(chan struct{})
	env.reviewer.reviewFn = func(context.Context, io.Reader) (*reviewclient.Result, error) {
		defer close(done)
		return &reviewclient.Result{Verdict: "PASS"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.orch.Start(ctx)

	id := env.createSubmission(t)
	<-done
	env.orch.Stop()

	if got := env.state.submission(id); got.Status != model.StatusSubmitted {
		t.Errorf("Статус = %s, ожидался SUBMITTED", got.Status)
	}
}
