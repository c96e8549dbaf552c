package model

import "time"

// OutboxStatus — состояние события в outbox.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxLeased  OutboxStatus = "leased"
	OutboxDone    OutboxStatus = "done"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxEvent — событие «заявка готова к проверке», записанное
// в той же транзакции, что и перевод заявки в BOT_REVIEW.
type OutboxEvent struct {
	ID             string
	SubmissionID   string
	Status         OutboxStatus
	AttemptCount   int
	LeaseOwner     *string
	LeaseExpiresAt *time.Time
	LastError      *string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}
