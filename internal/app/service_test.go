package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

type groupRepoStub struct {
	store.Repository

	group    *domain.Group
	groupErr error

	inviteCodes    []string
	createFailures int

	joinedGroupID uuid.UUID
	joinedUserID  uuid.UUID
	createMembErr error

	deleteMembErr    error
	deleteMembCalled bool

	balances    []domain.GroupBalance
	balancesErr error
}

func (s *groupRepoStub) CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error) {
	s.inviteCodes = append(s.inviteCodes, group.InviteCode)
	if len(s.inviteCodes) <= s.createFailures {
		return nil, store.ErrInviteCodeTaken
	}
	created := *group
	created.ID = uuid.New()
	created.CreatedAt = time.Now()
	return &created, nil
}

func (s *groupRepoStub) FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	if s.groupErr != nil {
		return nil, s.groupErr
	}
	if s.group == nil {
		return nil, store.ErrGroupNotFound
	}
	return s.group, nil
}

func (s *groupRepoStub) FindGroupByInviteCode(ctx context.Context, inviteCode string) (*domain.Group, error) {
	if s.groupErr != nil {
		return nil, s.groupErr
	}
	if s.group == nil {
		return nil, store.ErrGroupNotFound
	}
	return s.group, nil
}

func (s *groupRepoStub) CreateMembership(ctx context.Context, groupID, userID uuid.UUID) (*domain.Membership, error) {
	if s.createMembErr != nil {
		return nil, s.createMembErr
	}
	s.joinedGroupID = groupID
	s.joinedUserID = userID
	return &domain.Membership{GroupID: groupID, UserID: userID}, nil
}

func (s *groupRepoStub) DeleteMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	s.deleteMembCalled = true
	return s.deleteMembErr
}

func (s *groupRepoStub) ListUserGroupBalances(ctx context.Context, userID uuid.UUID) ([]domain.GroupBalance, error) {
	if s.balancesErr != nil {
		return nil, s.balancesErr
	}
	return s.balances, nil
}

func TestCreateGroup_RetriesWhenInviteCodeCollides(t *testing.T) {
	repo := &groupRepoStub{createFailures: 1}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	created, err := svc.CreateGroup(context.Background(), uuid.New(), domain.CreateGroupRequest{
		Name:                 "Book Club",
		DefaultPenaltyAmount: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.inviteCodes) != 2 {
		t.Fatalf("expected a second attempt after the collision, got %d attempts", len(repo.inviteCodes))
	}
	if repo.inviteCodes[0] == repo.inviteCodes[1] {
		t.Fatalf("expected a fresh invite code on retry, got %q twice", repo.inviteCodes[0])
	}
	if len(created.InviteCode) != 8 {
		t.Fatalf("expected an 8 character invite code, got %q", created.InviteCode)
	}
}

func TestCreateGroup_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := &groupRepoStub{createFailures: 100}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	_, err := svc.CreateGroup(context.Background(), uuid.New(), domain.CreateGroupRequest{
		Name:                 "Book Club",
		DefaultPenaltyAmount: decimal.NewFromInt(5),
	})
	if err == nil {
		t.Fatal("expected an error after exhausting invite code attempts")
	}
	if len(repo.inviteCodes) != inviteCodeAllocRetries {
		t.Fatalf("expected %d attempts, got %d", inviteCodeAllocRetries, len(repo.inviteCodes))
	}
}

func TestJoinGroup_CreatesMembershipForInviteCode(t *testing.T) {
	group := &domain.Group{ID: uuid.New(), Name: "Book Club", InviteCode: "AB12CD34"}
	repo := &groupRepoStub{group: group}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)
	userID := uuid.New()

	joined, err := svc.JoinGroup(context.Background(), userID, domain.JoinGroupRequest{InviteCode: "AB12CD34"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if joined.ID != group.ID {
		t.Fatalf("expected to join group %s, got %s", group.ID, joined.ID)
	}
	if repo.joinedGroupID != group.ID || repo.joinedUserID != userID {
		t.Fatalf("unexpected membership params: group=%s user=%s", repo.joinedGroupID, repo.joinedUserID)
	}
}

func TestJoinGroup_DuplicateMembershipBubblesUp(t *testing.T) {
	repo := &groupRepoStub{
		group:         &domain.Group{ID: uuid.New()},
		createMembErr: store.ErrAlreadyMember,
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	_, err := svc.JoinGroup(context.Background(), uuid.New(), domain.JoinGroupRequest{InviteCode: "AB12CD34"})
	if !errors.Is(err, store.ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestLeaveGroup_CreatorCannotLeave(t *testing.T) {
	creatorID := uuid.New()
	repo := &groupRepoStub{group: &domain.Group{ID: uuid.New(), CreatedBy: creatorID}}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	err := svc.LeaveGroup(context.Background(), repo.group.ID, creatorID)
	if !errors.Is(err, ErrCreatorCannotLeave) {
		t.Fatalf("expected ErrCreatorCannotLeave, got %v", err)
	}
	if repo.deleteMembCalled {
		t.Fatal("did not expect the creator's membership to be deleted")
	}
}

func TestLeaveGroup_OutstandingBalanceBlocksExit(t *testing.T) {
	repo := &groupRepoStub{
		group:         &domain.Group{ID: uuid.New(), CreatedBy: uuid.New()},
		deleteMembErr: store.ErrOutstandingBalance,
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	err := svc.LeaveGroup(context.Background(), repo.group.ID, uuid.New())
	if !errors.Is(err, store.ErrOutstandingBalance) {
		t.Fatalf("expected ErrOutstandingBalance, got %v", err)
	}
}

func TestDeleteGroup_RequiresCreator(t *testing.T) {
	repo := &groupRepoStub{group: &domain.Group{ID: uuid.New(), CreatedBy: uuid.New()}}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	err := svc.DeleteGroup(context.Background(), repo.group.ID, uuid.New())
	if !errors.Is(err, ErrNotGroupCreator) {
		t.Fatalf("expected ErrNotGroupCreator, got %v", err)
	}
}

func TestGetBalanceOverview_SumsPerGroupBalances(t *testing.T) {
	repo := &groupRepoStub{
		balances: []domain.GroupBalance{
			{GroupID: uuid.New(), GroupName: "Book Club", Balance: decimal.RequireFromString("5.50")},
			{GroupID: uuid.New(), GroupName: "Run Club", Balance: decimal.RequireFromString("-3.25")},
		},
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	overview, err := svc.GetBalanceOverview(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !overview.NetBalance.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("expected net balance 2.25, got %s", overview.NetBalance)
	}
	if len(overview.Groups) != 2 {
		t.Fatalf("expected 2 group balances, got %d", len(overview.Groups))
	}
}

func TestGetBalanceOverview_NoMembershipsYieldsZero(t *testing.T) {
	repo := &groupRepoStub{}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	overview, err := svc.GetBalanceOverview(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !overview.NetBalance.IsZero() {
		t.Fatalf("expected zero net balance, got %s", overview.NetBalance)
	}
	if len(overview.Groups) != 0 {
		t.Fatalf("expected no group balances, got %d", len(overview.Groups))
	}
}
