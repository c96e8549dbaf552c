// notifier.go — сигнал «заявка готова к проверке», видимый только после коммита.
//
// Publish пишет событие в review_outbox в транзакции вызывающего и
// регистрирует хук AfterCommit, который кладёт токен в очередь обработчиков.
// При откате хук не выполняется, а событие исчезает вместе с транзакцией.
//
// OutboxRelay периодически доставляет события, которые не дошли до очереди:
// переполнение очереди, перезапуск процесса, истёкшая аренда. События,
// чей токен ещё лежит в очереди, повторно не передаются. Заявку, чьё событие
// исчерпало попытки, relay переводит в NEEDS_FIX через DeadEventHandler.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/docreview/internal/domain/model"
	"github.com/bigkaa/docreview/internal/repository"
)

// ReadyToken — токен доставки события обработчику.
type ReadyToken struct {
	EventID      string
	SubmissionID string
}

// CommitNotifier — публикация сигналов SubmissionReady.
type CommitNotifier struct {
	queue  chan ReadyToken
	logger *slog.Logger

	mu     sync.Mutex
	queued map[string]struct{} // события, чей токен лежит в очереди
}

// NewCommitNotifier создаёт публикатор с очередью заданного размера.
func NewCommitNotifier(queueSize int, logger *slog.Logger) *CommitNotifier {
	return &CommitNotifier{
		queue:  make(chan ReadyToken, queueSize),
		logger: logger.With(slog.String("component", "commit_notifier")),
		queued: make(map[string]struct{}),
	}
}

// Publish записывает событие в транзакции scope. Токен уходит
// обработчикам только после успешного коммита.
func (n *CommitNotifier) Publish(ctx context.Context, scope *repository.Scope, submissionID string) error {
	ev := &model.OutboxEvent{ID: uuid.NewString(), SubmissionID: submissionID}
	if err := scope.Outbox.Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("ошибка публикации события проверки: %w", err)
	}

	scope.AfterCommit(func() {
		n.dispatch(ReadyToken{EventID: ev.ID, SubmissionID: submissionID}, "commit")
	})
	return nil
}

// Ready возвращает канал токенов для обработчиков.
func (n *CommitNotifier) Ready() <-chan ReadyToken {
	return n.queue
}

// inQueue сообщает, лежит ли токен события в очереди.
func (n *CommitNotifier) inQueue(eventID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.queued[eventID]
	return ok
}

// taken снимает отметку «в очереди»; вызывается обработчиком,
// получившим токен из Ready.
func (n *CommitNotifier) taken(eventID string) {
	n.mu.Lock()
	delete(n.queued, eventID)
	n.mu.Unlock()
}

// dispatch кладёт токен в очередь без блокировки.
// При переполнении событие остаётся pending и его доставит relay.
func (n *CommitNotifier) dispatch(tok ReadyToken, source string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	select {
	case n.queue <- tok:
		n.queued[tok.EventID] = struct{}{}
		outboxDispatchedTotal.WithLabelValues(source).Inc()
		return true
	default:
		outboxDroppedTotal.Inc()
		n.logger.Warn("Очередь проверки переполнена, событие будет доставлено повторно",
			slog.String("event_id", tok.EventID),
			slog.String("submission_id", tok.SubmissionID),
			slog.String("source", source),
		)
		return false
	}
}

// OutboxRelayConfig — параметры relay.
type OutboxRelayConfig struct {
	Interval    time.Duration
	Grace       time.Duration
	BatchSize   int
	MaxAttempts int
}

// DeadEventHandler — обработка заявки, чьё событие проверки стало dead.
type DeadEventHandler interface {
	RecordAbandoned(ctx context.Context, submissionID, reason string) error
}

// OutboxRelay — фоновая повторная доставка событий outbox.
type OutboxRelay struct {
	store    Store
	notifier *CommitNotifier
	dead     DeadEventHandler
	cfg      OutboxRelayConfig
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutboxRelay создаёт relay. dead может быть nil.
func NewOutboxRelay(store Store, notifier *CommitNotifier, dead DeadEventHandler, cfg OutboxRelayConfig, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		store:    store,
		notifier: notifier,
		dead:     dead,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "outbox_relay")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину. Первый проход выполняется сразу:
// он подбирает события, оставшиеся после перезапуска.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		r.logger.Info("Relay outbox запущен",
			slog.String("interval", r.cfg.Interval.String()),
			slog.String("grace", r.cfg.Grace.String()),
		)

		r.runLogged(ctx)

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Relay outbox остановлен")
				return
			case <-ticker.C:
				r.runLogged(ctx)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (r *OutboxRelay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *OutboxRelay) runLogged(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Ошибка прохода relay outbox", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		r.logger.Info("Relay outbox доставил события", slog.Int("count", n))
	}
}

// RunOnce выполняет один проход: помечает dead исчерпавшие попытки
// события и передаёт в очередь просроченные pending и события с истёкшей арендой.
// Возвращает количество доставленных токенов.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	outbox := r.store.Direct().Outbox
	now := r.now().UTC()

	dead, err := outbox.MarkDead(ctx, now, r.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if len(dead) > 0 {
		r.logger.Warn("События outbox исчерпали попытки доставки",
			slog.Int("count", len(dead)),
			slog.Int("max_attempts", r.cfg.MaxAttempts),
		)
		r.abandon(ctx, dead)
	}

	events, err := outbox.ListDue(ctx, now, now.Add(-r.cfg.Grace), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range events {
		if r.notifier.inQueue(ev.ID) {
			continue
		}
		if !r.notifier.dispatch(ReadyToken{EventID: ev.ID, SubmissionID: ev.SubmissionID}, "relay") {
			break
		}
		delivered++
	}

	if counts, err := outbox.CountByStatus(ctx); err == nil {
		for _, st := range []model.OutboxStatus{model.OutboxPending, model.OutboxLeased, model.OutboxDone, model.OutboxDead} {
			outboxEvents.WithLabelValues(string(st)).Set(float64(counts[st]))
		}
	}

	return delivered, nil
}

// abandon переводит в NEEDS_FIX заявки dead-событий, оставшиеся в BOT_REVIEW.
func (r *OutboxRelay) abandon(ctx context.Context, events []*model.OutboxEvent) {
	if r.dead == nil {
		return
	}
	for _, ev := range events {
		if err := r.dead.RecordAbandoned(ctx, ev.SubmissionID, abandonedReason); err != nil {
			r.logger.Error("Заявка dead-события не переведена в NEEDS_FIX",
				slog.String("event_id", ev.ID),
				slog.String("submission_id", ev.SubmissionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		reviewRecoveredTotal.WithLabelValues("dead_event").Inc()
	}
}
