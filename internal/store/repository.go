/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For money amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pactify/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Group methods
	CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error)
	FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
	FindGroupByInviteCode(ctx context.Context, inviteCode string) (*domain.Group, error)
	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
	ListUserGroups(ctx context.Context, userID uuid.UUID) ([]domain.GroupSummary, error)

	// Membership methods
	CreateMembership(ctx context.Context, groupID, userID uuid.UUID) (*domain.Membership, error)
	DeleteMembership(ctx context.Context, groupID, userID uuid.UUID) error
	FindMembership(ctx context.Context, groupID, userID uuid.UUID) (*domain.Membership, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.Membership, error)
	ListUserGroupBalances(ctx context.Context, userID uuid.UUID) ([]domain.GroupBalance, error)

	// Ledger mutation methods. Both execute as a single database transaction
	// with the group row locked first, so all balance changes within one
	// group are serialized.
	DistributeFailure(ctx context.Context, params DistributeFailureParams) (*DistributeFailureResult, error)
	SettleTransaction(ctx context.Context, transactionID uuid.UUID, settledAt time.Time) (*domain.Transaction, error)

	// Transaction read methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListGroupTransactions(ctx context.Context, groupID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	ListUserTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	AuditGroupLedger(ctx context.Context, groupID uuid.UUID) (*domain.LedgerAudit, error)

	// Goal methods
	CreateGoal(ctx context.Context, goal *domain.Goal) (*domain.Goal, error)
	FindGoalByID(ctx context.Context, goalID uuid.UUID) (*domain.Goal, error)
	ListGroupGoals(ctx context.Context, groupID uuid.UUID, includeInactive bool) ([]domain.Goal, error)
	DeactivateGoal(ctx context.Context, goalID uuid.UUID) error
	InsertGoalCompletion(ctx context.Context, completion *domain.GoalCompletion) (*domain.GoalCompletion, error)
	ListGoalCompletionsForUser(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalCompletion, error)
	ListGoalCompletions(ctx context.Context, goalID uuid.UUID) ([]domain.GoalCompletion, error)

	// Failure-report idempotency methods
	AcquireFailureIdempotency(ctx context.Context, userID uuid.UUID, key string, groupID uuid.UUID, requestHash string, ttl, staleWindow time.Duration) (cached *domain.LogFailureResponse, acquired bool, err error)
	CompleteFailureIdempotency(ctx context.Context, userID uuid.UUID, key string, response domain.LogFailureResponse) error
	ReleaseFailureIdempotency(ctx context.Context, userID uuid.UUID, key string) error
}

// DistributeFailureParams carries the inputs of one failure distribution.
type DistributeFailureParams struct {
	GroupID       uuid.UUID
	ActorID       uuid.UUID
	Description   *string
	ProofPhotoURL *string
}

// DistributeFailureResult reports what a distribution applied: one pending
// transaction per co-member, each for PenaltyAmount, totalling TotalDebt.
type DistributeFailureResult struct {
	TransactionsCreated int
	PenaltyAmount       decimal.Decimal
	TotalDebt           decimal.Decimal
	Transactions        []domain.Transaction
}
