/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates group lifecycle and balance reads,
 * coordinating between the database repository, the media-store client, the
 * Redis rate limiter and the message broker. Penalty distribution, settlement
 * and goal logic live in their own files in this package.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: Money arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/mediastore, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
	"github.com/pactify/ledger-service/pkg/mediastore"
	"github.com/pactify/ledger-service/pkg/rabbitmq"
)

const (
	inviteCodeLength       = 8
	inviteCodeAllocRetries = 5

	failureIdempotencyStaleWindow = 2 * time.Minute
)

var (
	ErrNotGroupMember      = errors.New("user is not a member of this group")
	ErrNotGroupCreator     = errors.New("only the group creator can perform this action")
	ErrCreatorCannotLeave  = errors.New("group creator cannot leave their own group")
	ErrNotTransactionParty = errors.New("user is not a party to this transaction")
	ErrNotGoalOwner        = errors.New("only the goal creator or the group creator can modify this goal")
	ErrGoalInactive        = errors.New("goal is no longer active")
	ErrMediaStoreDisabled  = errors.New("proof photo uploads are not configured")
	ErrInvalidProofPhoto   = errors.New("proof photo is not valid base64 data")
)

// RateLimitError reports that a user exceeded the failure-report rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", e.RetryAfterSeconds)
}

// Service provides the core business logic for the penalty ledger.
type Service struct {
	repo          store.Repository
	mediaClient   *mediastore.Client
	eventProducer rabbitmq.Publisher
	rateLimiter   *RedisFailureRateLimiter

	failureRateLimitPerMinute int
	failureIdempotencyTTL     time.Duration

	// now supplies every timestamp the service writes, so tests can pin time.
	now func() time.Time
}

// NewService creates a new ledger service instance.
func NewService(
	repo store.Repository,
	media *mediastore.Client,
	producer rabbitmq.Publisher,
	limiter *RedisFailureRateLimiter,
	failureRateLimitPerMinute int,
	failureIdempotencyTTL time.Duration,
) *Service {
	return &Service{
		repo:                      repo,
		mediaClient:               media,
		eventProducer:             producer,
		rateLimiter:               limiter,
		failureRateLimitPerMinute: failureRateLimitPerMinute,
		failureIdempotencyTTL:     failureIdempotencyTTL,
		now:                       time.Now,
	}
}

func newInviteCode() string {
	return strings.ToUpper(uuid.New().String()[:inviteCodeLength])
}

// CreateGroup creates a group and enrolls the creator as its first member.
// Invite codes are random; on the unlikely collision a fresh code is tried.
func (s *Service) CreateGroup(ctx context.Context, creatorID uuid.UUID, req domain.CreateGroupRequest) (*domain.Group, error) {
	group := &domain.Group{
		Name:                 strings.TrimSpace(req.Name),
		DefaultPenaltyAmount: req.DefaultPenaltyAmount,
		CreatedBy:            creatorID,
	}

	for attempt := 0; attempt < inviteCodeAllocRetries; attempt++ {
		group.InviteCode = newInviteCode()
		created, err := s.repo.CreateGroup(ctx, group)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrInviteCodeTaken) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to allocate a unique invite code after %d attempts", inviteCodeAllocRetries)
}

// GetGroup returns a group together with its member roster. Only members can
// view a group.
func (s *Service) GetGroup(ctx context.Context, groupID, actorID uuid.UUID) (*domain.GroupDetail, error) {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	members, err := s.repo.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &domain.GroupDetail{Group: *group, Members: members}, nil
}

// ListGroups returns every group the user belongs to.
func (s *Service) ListGroups(ctx context.Context, userID uuid.UUID) ([]domain.GroupSummary, error) {
	return s.repo.ListUserGroups(ctx, userID)
}

// JoinGroup adds the user to the group behind an invite code.
func (s *Service) JoinGroup(ctx context.Context, userID uuid.UUID, req domain.JoinGroupRequest) (*domain.Group, error) {
	group, err := s.repo.FindGroupByInviteCode(ctx, req.InviteCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.CreateMembership(ctx, group.ID, userID); err != nil {
		return nil, err
	}
	return group, nil
}

// LeaveGroup removes the user from a group. The creator cannot leave their
// own group; they delete it instead. Members with a nonzero balance or
// pending transactions must settle up first.
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) error {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy == userID {
		return ErrCreatorCannotLeave
	}
	return s.repo.DeleteMembership(ctx, groupID, userID)
}

// DeleteGroup removes a group and everything in it. Creator only.
func (s *Service) DeleteGroup(ctx context.Context, groupID, actorID uuid.UUID) error {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy != actorID {
		return ErrNotGroupCreator
	}
	return s.repo.DeleteGroup(ctx, groupID)
}

// GetGroupBoard returns the group's members ordered by balance, best funded
// first. Only members can view it.
func (s *Service) GetGroupBoard(ctx context.Context, groupID, actorID uuid.UUID) ([]domain.Membership, error) {
	if _, err := s.repo.FindGroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return s.repo.ListGroupMembers(ctx, groupID)
}

// GetBalanceOverview sums the user's balances across all their groups. A user
// with no memberships gets a zero net balance and an empty group list.
func (s *Service) GetBalanceOverview(ctx context.Context, userID uuid.UUID) (*domain.BalanceOverview, error) {
	balances, err := s.repo.ListUserGroupBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	net := decimal.Zero
	for _, groupBalance := range balances {
		net = net.Add(groupBalance.Balance)
	}
	return &domain.BalanceOverview{NetBalance: net, Groups: balances}, nil
}

// AuditGroupLedger recomputes the group's ledger invariants for support
// tooling. Only members can run it.
func (s *Service) AuditGroupLedger(ctx context.Context, groupID, actorID uuid.UUID) (*domain.LedgerAudit, error) {
	if _, err := s.repo.FindGroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return s.repo.AuditGroupLedger(ctx, groupID)
}
