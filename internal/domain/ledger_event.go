package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FailureLoggedEvent is the message published when a failure report has been
// distributed across a group's members.
type FailureLoggedEvent struct {
	GroupID             uuid.UUID       `json:"group_id"`
	UserID              uuid.UUID       `json:"user_id"`
	TransactionsCreated int             `json:"transactions_created"`
	TotalDebt           decimal.Decimal `json:"total_debt"`
	Description         *string         `json:"description,omitempty"`
	OccurredAt          time.Time       `json:"occurred_at"`
}

// DebtSettledEvent is the message published when a pending transaction is
// marked paid and its balance effect reversed.
type DebtSettledEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	GroupID       uuid.UUID       `json:"group_id"`
	FromUserID    uuid.UUID       `json:"from_user_id"`
	ToUserID      uuid.UUID       `json:"to_user_id"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// GoalCompletionRecordedEvent is the message published when a member records
// a goal completion.
type GoalCompletionRecordedEvent struct {
	GoalID        uuid.UUID  `json:"goal_id"`
	GroupID       uuid.UUID  `json:"group_id"`
	UserID        uuid.UUID  `json:"user_id"`
	CompletedAt   time.Time  `json:"completed_at"`
	ProofPhotoURL *string    `json:"proof_photo_url,omitempty"`
}
