// metrics.go — Prometheus-метрики проверки заявок.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_review_calls_total",
		Help: "Количество вызовов сервиса проверки по результату.",
	}, []string{"result"}) // result: ok, unavailable, malformed, error

	reviewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_review_duration_seconds",
		Help:    "Длительность вызова сервиса проверки.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 12), // 0.25s … ~512s
	})

	reviewVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_review_verdicts_total",
		Help: "Количество полученных вердиктов проверки.",
	}, []string{"verdict"})

	reviewFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_review_failures_total",
		Help: "Количество сбойных исходов проверки по категории.",
	}, []string{"category"}) // category: missing_file, file_read, reviewer, system

	reviewDetailFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_review_detail_failures_total",
		Help: "Количество незаписанных подробных результатов проверки.",
	})

	reviewRecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_review_recovered_total",
		Help: "Количество заявок, переведённых в NEEDS_FIX после незаписанного исхода.",
	}, []string{"source"}) // source: fallback, dead_event

	outboxDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_outbox_dispatched_total",
		Help: "Количество событий outbox, переданных обработчикам.",
	}, []string{"source"}) // source: commit, relay

	outboxDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_outbox_queue_full_total",
		Help: "Количество событий, не поместившихся в очередь (доставит relay).",
	})

	outboxEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rm_outbox_events",
		Help: "Количество событий outbox по статусам.",
	}, []string{"status"})

	catalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_catalog_cache_hits_total",
		Help: "Общее количество попаданий в кэш каталога.",
	})
	catalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_catalog_cache_misses_total",
		Help: "Общее количество промахов кэша каталога.",
	})
)
