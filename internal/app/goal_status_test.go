package app

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pactify/ledger-service/internal/domain"
)

func TestComputeGoalStatus_DeadlineCountdown(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	goal := &domain.Goal{
		ID:            uuid.New(),
		GroupID:       uuid.New(),
		Name:          "Run 5k",
		FrequencyDays: 3,
		IsActive:      true,
		CreatedAt:     createdAt,
	}
	userID := uuid.New()
	deadline := createdAt.Add(72 * time.Hour)

	tests := []struct {
		name        string
		now         time.Time
		wantOverdue bool
		wantDays    int
	}{
		{
			name:        "one full day left",
			now:         deadline.Add(-24 * time.Hour),
			wantOverdue: false,
			wantDays:    1,
		},
		{
			name:        "twenty-five hours left rounds up to two days",
			now:         deadline.Add(-25 * time.Hour),
			wantOverdue: false,
			wantDays:    2,
		},
		{
			name:        "exactly at the deadline",
			now:         deadline,
			wantOverdue: false,
			wantDays:    0,
		},
		{
			name:        "one hour past the deadline",
			now:         deadline.Add(time.Hour),
			wantOverdue: true,
			wantDays:    0,
		},
		{
			name:        "one full day past the deadline",
			now:         deadline.Add(24 * time.Hour),
			wantOverdue: true,
			wantDays:    -1,
		},
		{
			name:        "thirty-six hours past the deadline",
			now:         deadline.Add(36 * time.Hour),
			wantOverdue: true,
			wantDays:    -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeGoalStatus(goal, nil, userID, tt.now)
			if !got.NextDeadline.Equal(deadline) {
				t.Fatalf("expected next deadline %v, got %v", deadline, got.NextDeadline)
			}
			if got.IsOverdue != tt.wantOverdue {
				t.Fatalf("expected overdue=%t, got %t", tt.wantOverdue, got.IsOverdue)
			}
			if got.DaysRemaining != tt.wantDays {
				t.Fatalf("expected days_remaining=%d, got %d", tt.wantDays, got.DaysRemaining)
			}
		})
	}
}

func TestComputeGoalStatus_NeverCompletedAnchorsOnGoalCreation(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	goal := &domain.Goal{
		ID:            uuid.New(),
		GroupID:       uuid.New(),
		Name:          "Weekly review",
		FrequencyDays: 7,
		IsActive:      true,
		CreatedAt:     createdAt,
	}
	userID := uuid.New()

	got := ComputeGoalStatus(goal, nil, userID, createdAt.Add(48*time.Hour))

	if got.LastCompletion != nil {
		t.Fatalf("expected no last completion, got %v", got.LastCompletion)
	}
	if want := createdAt.Add(7 * 24 * time.Hour); !got.NextDeadline.Equal(want) {
		t.Fatalf("expected deadline anchored on goal creation %v, got %v", want, got.NextDeadline)
	}
	if got.TotalCompletions != 0 {
		t.Fatalf("expected zero completions, got %d", got.TotalCompletions)
	}
	if got.IsOverdue {
		t.Fatal("did not expect a fresh goal to be overdue")
	}
	if got.DaysRemaining != 5 {
		t.Fatalf("expected 5 days remaining, got %d", got.DaysRemaining)
	}
}

func TestComputeGoalStatus_AnchorsOnLatestCompletion(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	goal := &domain.Goal{
		ID:            uuid.New(),
		GroupID:       uuid.New(),
		Name:          "Gym session",
		FrequencyDays: 2,
		IsActive:      true,
		CreatedAt:     createdAt,
	}
	userID := uuid.New()
	latest := createdAt.Add(5 * 24 * time.Hour)

	// Deliberately out of order so selection cannot rely on slice position.
	completions := []domain.GoalCompletion{
		{ID: uuid.New(), GoalID: goal.ID, UserID: userID, CompletedAt: createdAt.Add(24 * time.Hour)},
		{ID: uuid.New(), GoalID: goal.ID, UserID: userID, CompletedAt: latest},
		{ID: uuid.New(), GoalID: goal.ID, UserID: userID, CompletedAt: createdAt.Add(3 * 24 * time.Hour)},
	}

	got := ComputeGoalStatus(goal, completions, userID, latest.Add(time.Hour))

	if got.LastCompletion == nil || !got.LastCompletion.Equal(latest) {
		t.Fatalf("expected last completion %v, got %v", latest, got.LastCompletion)
	}
	if want := latest.Add(48 * time.Hour); !got.NextDeadline.Equal(want) {
		t.Fatalf("expected deadline anchored on latest completion %v, got %v", want, got.NextDeadline)
	}
	if got.TotalCompletions != 3 {
		t.Fatalf("expected 3 completions, got %d", got.TotalCompletions)
	}
}

func TestComputeGoalStatus_IgnoresOtherMembersCompletions(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	goal := &domain.Goal{
		ID:            uuid.New(),
		GroupID:       uuid.New(),
		Name:          "Read a chapter",
		FrequencyDays: 1,
		IsActive:      true,
		CreatedAt:     createdAt,
	}
	userID := uuid.New()
	own := createdAt.Add(24 * time.Hour)

	completions := []domain.GoalCompletion{
		{ID: uuid.New(), GoalID: goal.ID, UserID: userID, CompletedAt: own},
		{ID: uuid.New(), GoalID: goal.ID, UserID: uuid.New(), CompletedAt: createdAt.Add(6 * 24 * time.Hour)},
	}

	got := ComputeGoalStatus(goal, completions, userID, own.Add(time.Hour))

	if want := own.Add(24 * time.Hour); !got.NextDeadline.Equal(want) {
		t.Fatalf("expected deadline from the user's own completion %v, got %v", want, got.NextDeadline)
	}
	if got.TotalCompletions != 1 {
		t.Fatalf("expected only the user's own completion counted, got %d", got.TotalCompletions)
	}
}
