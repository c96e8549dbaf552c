package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/reviewclient"
)

// TestReviewRecorder_RecordFailureRepeated — повторный сбой для заявки
// в NEEDS_FIX успешен и добавляет вторую запись.
func TestReviewRecorder_RecordFailureRepeated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createSubmission(t)

	if err := env.recorder.RecordFailure(ctx, id, "first"); err != nil {
		t.Fatalf("Ошибка первого вызова: %v", err)
	}
	if err := env.recorder.RecordFailure(ctx, id, "second"); err != nil {
		t.Fatalf("Ошибка повторного вызова: %v", err)
	}

	if got := env.state.submission(id); got.Status != model.StatusNeedsFix {
		t.Errorf("Статус = %s, ожидался NEEDS_FIX", got.Status)
	}
	history := env.state.historyOf(id)
	if len(history) != 3 {
		t.Fatalf("Записей истории: %d, ожидалось 3", len(history))
	}
	for i, memo := range []string{"first", "second"} {
		e := history[i+1]
		if e.Action != model.ActionModified || e.Memo != memo {
			t.Errorf("Запись %d = %s %q, ожидалось MODIFIED %q", i+1, e.Action, e.Memo, memo)
		}
	}
}

func TestReviewRecorder_UnknownSubmission(t *testing.T) {
	env := newTestEnv(t)
	err := env.recorder.RecordFailure(context.Background(), "missing", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// TestReviewRecorder_DetailEntry — режим подробного аудита добавляет вторую запись.
func TestReviewRecorder_DetailEntry(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.detailEnabled = true
	id := env.createSubmission(t)

	res := &reviewclient.Result{
		Verdict:        "PASS",
		SectionCounts:  json.RawMessage(`{"header":1}`),
		ProcessingTime: "1.2s",
	}
	if err := env.recorder.RecordOutcome(context.Background(), id, res, 1500*time.Millisecond); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	history := env.state.historyOf(id)
	if len(history) != 3 {
		t.Fatalf("Записей истории: %d, ожидалось 3", len(history))
	}
	detail := history[2]
	if detail.Memo != DetailMemo || detail.Detail == nil {
		t.Fatalf("Запись подробного результата = %+v", detail)
	}

	var d ReviewDetail
	if err := json.Unmarshal(detail.Detail, &d); err != nil {
		t.Fatalf("Подробный результат не разобран: %v", err)
	}
	if d.Verdict != "PASS" || d.DurationMs != 1500 || d.ProcessingTime != "1.2s" {
		t.Errorf("Подробный результат = %+v", d)
	}
	if d.Findings == nil {
		t.Error("Findings должен сериализоваться пустым списком")
	}
}

// TestReviewRecorder_DetailSerializationFailure — ошибка сериализации подробного
// результата не мешает записи статуса.
func TestReviewRecorder_DetailSerializationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.detailEnabled = true
	id := env.createSubmission(t)

	res := &reviewclient.Result{
		Verdict: "REJECT",
		Reason:  "wrong form",
		Details: json.RawMessage(`{not json`),
	}
	if err := env.recorder.RecordOutcome(context.Background(), id, res, time.Second); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	if got := env.state.submission(id); got.Status != model.StatusRejected {
		t.Errorf("Статус = %s, ожидался REJECTED", got.Status)
	}
	history := env.state.historyOf(id)
	if len(history) != 2 {
		t.Fatalf("Записей истории: %d, ожидалось 2 (без подробной)", len(history))
	}
	if !strings.Contains(history[1].Memo, "wrong form") {
		t.Errorf("Заметка = %q", history[1].Memo)
	}
}

// TestReviewRecorder_NotInBotReview — заявка вне автоматической проверки:
// только запись истории.
func TestReviewRecorder_NotInBotReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createSubmission(t)

	if _, err := env.admin.Approve(ctx, testAdmin, id); err != nil {
		t.Fatalf("Ошибка одобрения: %v", err)
	}

	res := &reviewclient.Result{Verdict: "NEEDS_FIX", Findings: []verdict.Finding{{Label: "x", Message: "y"}}}
	if err := env.recorder.RecordOutcome(ctx, id, res, time.Second); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}
	if err := env.recorder.RecordFailure(ctx, id, "late failure"); err != nil {
		t.Fatalf("Ошибка записи сбоя: %v", err)
	}

	if got := env.state.submission(id); got.Status != model.StatusApproved {
		t.Errorf("Статус = %s, ожидался APPROVED", got.Status)
	}
	history := env.state.historyOf(id)
	if last := history[len(history)-1]; last.Memo != "late failure" {
		t.Errorf("Последняя запись = %q", last.Memo)
	}
}

// TestReviewRecorder_StripsNUL — NUL-байты из ответа сервиса не попадают
// в историю: запись статуса и подробного результата проходит.
func TestReviewRecorder_StripsNUL(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.detailEnabled = true
	id := env.createSubmission(t)

	res := &reviewclient.Result{
		Verdict:   "REJECT",
		Reason:    "wrong\x00form",
		DebugText: "page 1\x00",
		Findings:  []verdict.Finding{{Label: "서명\x00", Message: "누락"}},
	}
	if err := env.recorder.RecordOutcome(context.Background(), id, res, time.Second); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	if got := env.state.submission(id); got.Status != model.StatusRejected {
		t.Errorf("Статус = %s, ожидался REJECTED", got.Status)
	}
	history := env.state.historyOf(id)
	if len(history) != 3 {
		t.Fatalf("Записей истории: %d, ожидалось 3", len(history))
	}
	if history[1].Memo != verdict.FailurePrefix+"서명: 누락" {
		t.Errorf("Заметка = %q", history[1].Memo)
	}

	var d ReviewDetail
	if err := json.Unmarshal(history[2].Detail, &d); err != nil {
		t.Fatalf("Подробный результат не разобран: %v", err)
	}
	if d.DebugText != "page 1" || d.Findings[0].Label != "서명" {
		t.Errorf("Подробный результат = %+v", d)
	}
}

func TestReviewRecorder_RecordAbandoned(t *testing.T) {
	tests := []struct {
		name        string
		approve     bool
		wantStatus  model.Status
		wantEntries int
	}{
		{name: "заявка в BOT_REVIEW", wantStatus: model.StatusNeedsFix, wantEntries: 2},
		// одобрение добавляет две записи: начало проверки и решение
		{name: "заявка уже одобрена", approve: true, wantStatus: model.StatusApproved, wantEntries: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			id := env.createSubmission(t)
			if tt.approve {
				if _, err := env.admin.Approve(ctx, testAdmin, id); err != nil {
					t.Fatalf("Ошибка одобрения: %v", err)
				}
			}

			if err := env.recorder.RecordAbandoned(ctx, id, abandonedReason); err != nil {
				t.Fatalf("Ошибка записи: %v", err)
			}

			if got := env.state.submission(id); got.Status != tt.wantStatus {
				t.Errorf("Статус = %s, ожидался %s", got.Status, tt.wantStatus)
			}
			if n := len(env.state.historyOf(id)); n != tt.wantEntries {
				t.Errorf("Записей истории: %d, ожидалось %d", n, tt.wantEntries)
			}
		})
	}
}
