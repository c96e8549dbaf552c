// review_orchestrator.go — обработка сигналов «заявка готова к проверке».
//
// Обработчики читают токены из CommitNotifier, арендуют событие outbox,
// отправляют текущий файл заявки в сервис проверки и передают результат
// в ReviewRecorder. Любая ошибка вызова превращается в NEEDS_FIX,
// заявка не остаётся в BOT_REVIEW.
//
// Если вердикт не удалось записать, заявка переводится в NEEDS_FIX с
// системной причиной. Событие возвращается в pending, только если не
// записан и сбой или процесс останавливается; полученный ответ сервиса
// сохраняется, и повторная доставка записывает его без нового вызова.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/domain/verdict"
	"github.com/bigkaa/docreview/internal/repository"
	"github.com/bigkaa/docreview/internal/reviewclient"
)

// Reviewer — внешний сервис автоматической проверки.
type Reviewer interface {
	Review(ctx context.Context, content io.Reader) (*reviewclient.Result, error)
}

// Категории сбоя проверки (метка метрики и заметка истории).
const (
	failureMissingFile = "missing_file"
	failureFileRead    = "file_read"
	failureReviewer    = "reviewer"
	failureSystem      = "system"
)

// Ответы сервиса, которые не удалось записать, ждут повторной доставки события.
const (
	unrecordedCacheSize = 1024
	unrecordedCacheTTL  = time.Hour
)

// reviewResponse — полученный, но не записанный ответ сервиса проверки.
type reviewResponse struct {
	result  *reviewclient.Result
	elapsed time.Duration
}

// OrchestratorConfig — параметры обработчиков.
type OrchestratorConfig struct {
	Workers  int
	LeaseTTL time.Duration
}

// ReviewOrchestrator — пул обработчиков автоматической проверки.
type ReviewOrchestrator struct {
	store    Store
	files    *FileVersionStore
	reviewer Reviewer
	recorder *ReviewRecorder
	notifier *CommitNotifier
	cfg      OrchestratorConfig
	logger   *slog.Logger
	now      func() time.Time

	consumerID string
	inflight   *keyedLock
	unrecorded *expirable.LRU[string, reviewResponse]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReviewOrchestrator создаёт пул обработчиков.
func NewReviewOrchestrator(
	store Store,
	files *FileVersionStore,
	reviewer Reviewer,
	recorder *ReviewRecorder,
	notifier *CommitNotifier,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *ReviewOrchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &ReviewOrchestrator{
		store:      store,
		files:      files,
		reviewer:   reviewer,
		recorder:   recorder,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "review_orchestrator")),
		now:        time.Now,
		consumerID: "review-" + uuid.NewString(),
		inflight:   newKeyedLock(),
		unrecorded: expirable.NewLRU[string, reviewResponse](unrecordedCacheSize, nil, unrecordedCacheTTL),
	}
}

// Start запускает обработчики.
func (o *ReviewOrchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, o.cancel = context.WithCancel(ctx)

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}

	o.logger.Info("Обработчики проверки запущены",
		slog.Int("workers", o.cfg.Workers),
		slog.String("consumer_id", o.consumerID),
	)
}

// Stop останавливает обработчики и ждёт завершения текущих задач.
func (o *ReviewOrchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.logger.Info("Обработчики проверки остановлены")
}

func (o *ReviewOrchestrator) worker(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case tok := <-o.notifier.Ready():
			o.Handle(ctx, tok)
		}
	}
}

// Handle обрабатывает один токен: аренда события, проверка, завершение события.
func (o *ReviewOrchestrator) Handle(ctx context.Context, tok ReadyToken) {
	log := o.logger.With(
		slog.String("submission_id", tok.SubmissionID),
		slog.String("event_id", tok.EventID),
	)

	o.notifier.taken(tok.EventID)

	now := o.now().UTC()
	outbox := o.store.Direct().Outbox
	ev, err := outbox.Claim(ctx, tok.EventID, o.consumerID, now, now.Add(o.cfg.LeaseTTL))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Debug("Событие уже обработано или арендовано другим обработчиком")
			return
		}
		log.Error("Ошибка аренды события", slog.String("error", err.Error()))
		return
	}

	unlock := o.inflight.Lock(tok.SubmissionID)
	err = o.process(ctx, tok, log)
	unlock()

	// Завершение события не зависит от отмены контекста обработчика.
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Warn("Событие возвращено для повторной доставки",
			slog.Int("attempt", ev.AttemptCount),
			slog.String("error", err.Error()),
		)
		if rerr := outbox.Release(finishCtx, tok.EventID, err.Error()); rerr != nil {
			log.Error("Ошибка возврата события", slog.String("error", rerr.Error()))
		}
		return
	}

	if err := outbox.MarkDone(finishCtx, tok.EventID, o.now().UTC()); err != nil {
		log.Error("Ошибка завершения события", slog.String("error", err.Error()))
	}
}

// process выполняет проверку заявки. Возвращает ошибку, только если
// исход не записан: такое событие нужно доставить повторно.
func (o *ReviewOrchestrator) process(ctx context.Context, tok ReadyToken, log *slog.Logger) (err error) {
	submissionID := tok.SubmissionID
	recordCtx := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			log.Error("Паника при проверке заявки", slog.Any("panic", p))
			err = o.fail(recordCtx, submissionID, failureSystem, fmt.Errorf("panic: %v", p))
		}
	}()

	sub, err := o.store.Direct().Submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Заявка для проверки не найдена")
			return nil
		}
		return err
	}
	if sub.Status != model.StatusBotReview {
		log.Info("Заявка не ожидает автоматической проверки, пропуск",
			slog.String("status", string(sub.Status)),
		)
		return nil
	}

	if resp, ok := o.unrecorded.Get(tok.EventID); ok {
		log.Info("Повторная запись полученного ранее ответа сервиса проверки")
		return o.record(recordCtx, tok, resp, log)
	}

	rc, _, err := o.files.Open(ctx, o.store.Direct(), model.SubmissionOwner(submissionID))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNotFound) {
			return o.fail(recordCtx, submissionID, failureMissingFile, err)
		}
		return o.fail(recordCtx, submissionID, failureFileRead, err)
	}
	defer rc.Close()

	start := time.Now()
	res, err := o.reviewer.Review(ctx, rc)
	elapsed := time.Since(start)
	reviewDuration.Observe(elapsed.Seconds())

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			reviewCallsTotal.WithLabelValues("canceled").Inc()
			return ctx.Err()
		}
		category, cause := classifyReviewError(err)
		if category == failureReviewer {
			if errors.Is(cause, ErrMalformedReviewerResponse) {
				reviewCallsTotal.WithLabelValues("malformed").Inc()
			} else {
				reviewCallsTotal.WithLabelValues("unavailable").Inc()
			}
		} else {
			reviewCallsTotal.WithLabelValues("error").Inc()
		}
		return o.fail(recordCtx, submissionID, category, cause)
	}
	reviewCallsTotal.WithLabelValues("ok").Inc()

	log.Info("Ответ сервиса проверки получен",
		slog.String("verdict", res.Verdict),
		slog.Int("findings", len(res.Findings)),
		slog.Duration("elapsed", elapsed),
	)

	return o.record(recordCtx, tok, reviewResponse{result: res, elapsed: elapsed}, log)
}

// record записывает ответ сервиса. Если запись не удалась, заявка
// переводится в NEEDS_FIX; ответ сохраняется до успешной записи одного из исходов.
func (o *ReviewOrchestrator) record(ctx context.Context, tok ReadyToken, resp reviewResponse, log *slog.Logger) error {
	err := o.recorder.RecordOutcome(ctx, tok.SubmissionID, resp.result, resp.elapsed)
	if err == nil {
		o.unrecorded.Remove(tok.EventID)
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		o.unrecorded.Remove(tok.EventID)
		log.Warn("Заявка удалена до записи результата проверки")
		return nil
	}

	log.Error("Результат проверки не записан, заявка переводится в NEEDS_FIX",
		slog.String("error", err.Error()),
	)
	o.unrecorded.Add(tok.EventID, resp)

	if ferr := o.fail(ctx, tok.SubmissionID, failureSystem, fmt.Errorf("결과 기록 실패: %w", err)); ferr != nil {
		return fmt.Errorf("исход проверки не записан: %w", errors.Join(err, ferr))
	}
	reviewRecoveredTotal.WithLabelValues("fallback").Inc()
	o.unrecorded.Remove(tok.EventID)
	return nil
}

// fail записывает сбой проверки с заметкой по категории.
func (o *ReviewOrchestrator) fail(ctx context.Context, submissionID, category string, cause error) error {
	reviewFailuresTotal.WithLabelValues(category).Inc()
	return o.recorder.RecordFailure(ctx, submissionID, failureReason(category, cause))
}

func classifyReviewError(err error) (string, error) {
	switch {
	case errors.Is(err, reviewclient.ErrMalformedResponse):
		return failureReviewer, fmt.Errorf("%w: %v", ErrMalformedReviewerResponse, err)
	case errors.Is(err, reviewclient.ErrUnavailable):
		return failureReviewer, fmt.Errorf("%w: %v", ErrReviewerUnavailable, err)
	default:
		return failureSystem, err
	}
}

// abandonedReason — заметка для заявки, чьё событие исчерпало попытки доставки.
const abandonedReason = verdict.FailurePrefix + "시스템 오류 - 검토 결과를 기록하지 못했습니다"

// failureReason — заметка истории для категории сбоя.
func failureReason(category string, cause error) string {
	switch category {
	case failureMissingFile:
		return verdict.FailurePrefix + "파일 없음"
	case failureFileRead:
		return verdict.FailurePrefix + "파일 읽기 오류 - " + cause.Error()
	case failureReviewer:
		return verdict.FailurePrefix + "OCR 호출 오류 - " + cause.Error()
	default:
		return verdict.FailurePrefix + "시스템 오류 - " + cause.Error()
	}
}
