/**
 * @description
 * Pure goal-status arithmetic. Given a goal, a user's completion history and
 * an instant, it derives the next deadline and how the user stands against
 * it. Nothing here touches the database or the clock, so the same inputs
 * always yield the same status.
 */

package app

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pactify/ledger-service/internal/domain"
)

const hoursPerDay = 24

// latestCompletion picks the most recent completion. Equal timestamps are
// broken by the larger completion id so concurrent writes at the same instant
// still resolve to one winner.
func latestCompletion(completions []domain.GoalCompletion) *domain.GoalCompletion {
	var latest *domain.GoalCompletion
	for i := range completions {
		candidate := &completions[i]
		if latest == nil || candidate.CompletedAt.After(latest.CompletedAt) {
			latest = candidate
			continue
		}
		if candidate.CompletedAt.Equal(latest.CompletedAt) && candidate.ID.String() > latest.ID.String() {
			latest = candidate
		}
	}
	return latest
}

// ComputeGoalStatus derives one user's standing on a goal at the given
// instant. The next deadline anchors on the user's latest completion, or on
// the goal's creation time when the user has never completed it, plus the
// goal's frequency in days. DaysRemaining rounds up, so a deadline 25 hours
// out reports 2 days; once the deadline passes it counts down into negative
// whole days. Completions belonging to other users are ignored, so the whole
// group's history can be passed in unfiltered.
func ComputeGoalStatus(goal *domain.Goal, completions []domain.GoalCompletion, userID uuid.UUID, now time.Time) domain.GoalStatus {
	own := make([]domain.GoalCompletion, 0, len(completions))
	for _, completion := range completions {
		if completion.UserID == userID {
			own = append(own, completion)
		}
	}

	anchor := goal.CreatedAt
	var last *time.Time
	if latest := latestCompletion(own); latest != nil {
		anchor = latest.CompletedAt
		completedAt := latest.CompletedAt
		last = &completedAt
	}

	nextDeadline := anchor.Add(time.Duration(goal.FrequencyDays) * hoursPerDay * time.Hour)
	remaining := nextDeadline.Sub(now)

	return domain.GoalStatus{
		GoalID:           goal.ID,
		UserID:           userID,
		LastCompletion:   last,
		NextDeadline:     nextDeadline,
		IsOverdue:        nextDeadline.Before(now),
		DaysRemaining:    int(math.Ceil(remaining.Hours() / hoursPerDay)),
		TotalCompletions: len(own),
	}
}
