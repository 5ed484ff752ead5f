package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Goal is a recurring commitment owned by a group: every member is expected
// to complete it once per `frequency_days` window. This struct maps directly
// to the `goals` table.
type Goal struct {
	ID            uuid.UUID       `json:"id"`
	GroupID       uuid.UUID       `json:"group_id"`
	Name          string          `json:"name"`
	Emoji         string          `json:"emoji"`
	FrequencyDays int             `json:"frequency_days"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	IsActive      bool            `json:"is_active"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GoalCompletion is an append-only record that a member fulfilled a goal
// instance. The most recent completion per user drives that user's current
// compliance window.
type GoalCompletion struct {
	ID            uuid.UUID  `json:"id"`
	GoalID        uuid.UUID  `json:"goal_id"`
	UserID        uuid.UUID  `json:"user_id"`
	CompletedAt   time.Time  `json:"completed_at"`
	ProofPhotoURL *string    `json:"proof_photo_url,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// GoalStatus is the derived compliance view for one (goal, user) pair. It is
// recomputed on every read from the goal and the user's completion history
// and is never stored.
type GoalStatus struct {
	GoalID           uuid.UUID  `json:"goal_id"`
	UserID           uuid.UUID  `json:"user_id"`
	LastCompletion   *time.Time `json:"last_completion,omitempty"`
	NextDeadline     time.Time  `json:"next_deadline"`
	IsOverdue        bool       `json:"is_overdue"`
	DaysRemaining    int        `json:"days_remaining"`
	TotalCompletions int        `json:"total_completions"`
}

// CreateGoalRequest is the DTO for creating a goal in a group. When
// PenaltyAmount is omitted the group's default penalty is used.
type CreateGoalRequest struct {
	Name          string           `json:"name"`
	Emoji         string           `json:"emoji"`
	FrequencyDays int              `json:"frequency_days"`
	PenaltyAmount *decimal.Decimal `json:"penalty_amount,omitempty"`
}

// CompleteGoalRequest is the DTO for recording a goal completion. Clients can
// either reference an already-uploaded proof photo by URL or attach the raw
// photo bytes base64-encoded for the service to upload.
type CompleteGoalRequest struct {
	Notes            *string `json:"notes,omitempty"`
	ProofPhotoURL    *string `json:"proof_photo_url,omitempty"`
	ProofPhotoBase64 *string `json:"proof_photo_base64,omitempty"`
}
