/**
 * @description
 * Goal lifecycle and completion logic. Goals belong to a group; any member
 * can create one and record completions against it. Completions optionally
 * carry a proof photo, either as a ready URL or as base64 data that gets
 * pushed to the media store first.
 *
 * @dependencies
 * - context, encoding/base64, errors, fmt, log, net/http, sort, strings: Standard Go libraries.
 * - github.com/google/uuid: Identifier handling.
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

// CreateGoal adds a recurring goal to a group. Any member can create one.
// When the request carries no penalty amount the group's default applies.
func (s *Service) CreateGoal(ctx context.Context, groupID, creatorID uuid.UUID, req domain.CreateGoalRequest) (*domain.Goal, error) {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, creatorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}

	penalty := group.DefaultPenaltyAmount
	if req.PenaltyAmount != nil {
		penalty = *req.PenaltyAmount
	}

	goal := &domain.Goal{
		GroupID:       groupID,
		Name:          strings.TrimSpace(req.Name),
		Emoji:         strings.TrimSpace(req.Emoji),
		FrequencyDays: req.FrequencyDays,
		PenaltyAmount: penalty,
		CreatedBy:     creatorID,
	}
	return s.repo.CreateGoal(ctx, goal)
}

// ListGroupGoals returns a group's goals to one of its members.
func (s *Service) ListGroupGoals(ctx context.Context, groupID, actorID uuid.UUID, includeInactive bool) ([]domain.Goal, error) {
	if _, err := s.repo.FindGroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return s.repo.ListGroupGoals(ctx, groupID, includeInactive)
}

// DeactivateGoal retires a goal without erasing its history. Only the goal's
// creator or the group's creator may do it.
func (s *Service) DeactivateGoal(ctx context.Context, goalID, actorID uuid.UUID) error {
	goal, err := s.repo.FindGoalByID(ctx, goalID)
	if err != nil {
		return err
	}
	if goal.CreatedBy != actorID {
		group, err := s.repo.FindGroupByID(ctx, goal.GroupID)
		if err != nil {
			return err
		}
		if group.CreatedBy != actorID {
			return ErrNotGoalOwner
		}
	}
	return s.repo.DeactivateGoal(ctx, goalID)
}

// CompleteGoal records that the actor completed a goal now. A base64 proof
// photo is uploaded to the media store and its URL stored on the completion.
func (s *Service) CompleteGoal(ctx context.Context, goalID, actorID uuid.UUID, req domain.CompleteGoalRequest) (*domain.GoalCompletion, error) {
	goal, err := s.repo.FindGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, goal.GroupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	if !goal.IsActive {
		return nil, ErrGoalInactive
	}

	proofURL := req.ProofPhotoURL
	if req.ProofPhotoBase64 != nil && *req.ProofPhotoBase64 != "" {
		if s.mediaClient == nil {
			return nil, ErrMediaStoreDisabled
		}
		data, err := base64.StdEncoding.DecodeString(*req.ProofPhotoBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProofPhoto, err)
		}
		url, err := s.mediaClient.Upload(ctx, data, http.DetectContentType(data))
		if err != nil {
			return nil, fmt.Errorf("failed to upload proof photo: %w", err)
		}
		proofURL = &url
	}

	completion := &domain.GoalCompletion{
		GoalID:        goalID,
		UserID:        actorID,
		CompletedAt:   s.now().UTC(),
		ProofPhotoURL: proofURL,
		Notes:         req.Notes,
	}
	created, err := s.repo.InsertGoalCompletion(ctx, completion)
	if err != nil {
		return nil, err
	}

	if s.eventProducer != nil {
		event := domain.GoalCompletionRecordedEvent{
			GoalID:        goalID,
			GroupID:       goal.GroupID,
			UserID:        actorID,
			CompletedAt:   created.CompletedAt,
			ProofPhotoURL: created.ProofPhotoURL,
		}
		if err := s.eventProducer.PublishLedgerEvent(ctx, "goal.completion.recorded", event); err != nil {
			log.Printf("level=warn component=app op=complete_goal msg=\"failed to publish event\" goal_id=%s user_id=%s err=%v", goalID, actorID, err)
		}
	}

	return created, nil
}

// GetGoalStatus computes where a member stands on a goal right now. The
// target defaults to the caller; naming another user requires them to be a
// member of the goal's group.
func (s *Service) GetGoalStatus(ctx context.Context, goalID, actorID, targetID uuid.UUID) (*domain.GoalStatus, error) {
	goal, err := s.repo.FindGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, goal.GroupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	if targetID != actorID {
		if _, err := s.repo.FindMembership(ctx, goal.GroupID, targetID); err != nil {
			if errors.Is(err, store.ErrMembershipNotFound) {
				return nil, ErrNotGroupMember
			}
			return nil, err
		}
	}

	completions, err := s.repo.ListGoalCompletionsForUser(ctx, goalID, targetID)
	if err != nil {
		return nil, err
	}
	status := ComputeGoalStatus(goal, completions, targetID, s.now().UTC())
	return &status, nil
}

// GetGoalBoard computes every member's status on one goal, most urgent
// deadline first.
func (s *Service) GetGoalBoard(ctx context.Context, goalID, actorID uuid.UUID) ([]domain.GoalStatus, error) {
	goal, err := s.repo.FindGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, goal.GroupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}

	members, err := s.repo.ListGroupMembers(ctx, goal.GroupID)
	if err != nil {
		return nil, err
	}
	completions, err := s.repo.ListGoalCompletions(ctx, goalID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	statuses := make([]domain.GoalStatus, 0, len(members))
	for _, member := range members {
		statuses = append(statuses, ComputeGoalStatus(goal, completions, member.UserID, now))
	}
	sort.Slice(statuses, func(i, j int) bool {
		if !statuses[i].NextDeadline.Equal(statuses[j].NextDeadline) {
			return statuses[i].NextDeadline.Before(statuses[j].NextDeadline)
		}
		return statuses[i].UserID.String() < statuses[j].UserID.String()
	})
	return statuses, nil
}

// ListGoalCompletions returns a goal's full completion feed to a member of
// its group.
func (s *Service) ListGoalCompletions(ctx context.Context, goalID, actorID uuid.UUID) ([]domain.GoalCompletion, error) {
	goal, err := s.repo.FindGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, goal.GroupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return s.repo.ListGoalCompletions(ctx, goalID)
}
