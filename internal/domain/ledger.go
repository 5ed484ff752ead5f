/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and event
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are `decimal.Decimal` values backed by NUMERIC(12,2) columns,
 *   which avoids floating-point inaccuracies with money-like data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction status values. A transaction is created pending and flips to
// paid exactly once when it is settled.
const (
	TransactionStatusPending = "pending"
	TransactionStatusPaid    = "paid"
)

// Group represents an accountability group. Each group carries the penalty
// amount charged per co-member whenever one of its members logs a failure.
// This struct maps directly to the `groups` table in the database.
type Group struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	InviteCode           string          `json:"invite_code"`
	DefaultPenaltyAmount decimal.Decimal `json:"default_penalty_amount"`
	CreatedBy            uuid.UUID       `json:"created_by"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Membership is one user's participation record in one group. The running
// balance is positive when the group owes the member money and negative when
// the member owes the group. Within any group the balances of all members
// always sum to zero; only the failure-distribution and settlement paths may
// mutate them.
type Membership struct {
	GroupID        uuid.UUID       `json:"group_id"`
	UserID         uuid.UUID       `json:"user_id"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	FailureCount   int             `json:"failure_count"`
	JoinedAt       time.Time       `json:"joined_at"`
}

// Transaction is a single directed debt between two members of a group:
// `from_user_id` owes `amount` to `to_user_id`. Rows are immutable except for
// the pending→paid settlement flip.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	GroupID       uuid.UUID       `json:"group_id"`
	FromUserID    uuid.UUID       `json:"from_user_id"`
	ToUserID      uuid.UUID       `json:"to_user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Description   *string         `json:"description,omitempty"`
	ProofPhotoURL *string         `json:"proof_photo_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

// CreateGroupRequest is the DTO for creating a new group.
type CreateGroupRequest struct {
	Name                 string          `json:"name"`
	DefaultPenaltyAmount decimal.Decimal `json:"default_penalty_amount"`
}

// JoinGroupRequest is the DTO for joining a group by invite code.
type JoinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

// GroupSummary is one row of the caller's group list, pairing the group with
// the caller's balance in it.
type GroupSummary struct {
	Group       Group           `json:"group"`
	Balance     decimal.Decimal `json:"balance"`
	MemberCount int             `json:"member_count"`
}

// GroupDetail is the full group view returned to members, with the member
// list ordered by balance descending (the group leaderboard).
type GroupDetail struct {
	Group   Group        `json:"group"`
	Members []Membership `json:"members"`
}

// LogFailureRequest is the DTO for reporting a failure in a group.
type LogFailureRequest struct {
	Description   *string `json:"description,omitempty"`
	ProofPhotoURL *string `json:"proof_photo_url,omitempty"`
}

// LogFailureResponse summarizes the distribution a failure report produced.
type LogFailureResponse struct {
	TransactionsCreated int             `json:"transactions_created"`
	TotalDebt           decimal.Decimal `json:"total_debt"`
}

// SettleDebtResponse is returned after a pending transaction is settled.
type SettleDebtResponse struct {
	Success     bool         `json:"success"`
	Transaction *Transaction `json:"transaction"`
}

// TransactionListOptions controls filtering and pagination for transaction
// list queries. Role filters the caller's side of the debt: "debtor" selects
// transactions they owe, "creditor" transactions owed to them.
type TransactionListOptions struct {
	Status string
	Role   string
	Limit  int
	Offset int
}

// GroupBalance is one entry of the caller's cross-group balance view.
type GroupBalance struct {
	GroupID   uuid.UUID       `json:"group_id"`
	GroupName string          `json:"group_name"`
	Balance   decimal.Decimal `json:"balance"`
}

// BalanceOverview aggregates the caller's balances across every group they
// belong to. NetBalance is the plain sum of the per-group balances.
type BalanceOverview struct {
	NetBalance decimal.Decimal `json:"net_balance"`
	Groups     []GroupBalance  `json:"groups"`
}

// LedgerAudit reports the outcome of a closed-ledger consistency check for
// one group: the member balances must sum to zero and must be explained
// exactly by the pending transactions on record.
type LedgerAudit struct {
	GroupID       uuid.UUID       `json:"group_id"`
	Members       int             `json:"members"`
	BalanceSum    decimal.Decimal `json:"balance_sum"`
	PendingTotal  decimal.Decimal `json:"pending_total"`
	PendingCount  int             `json:"pending_count"`
	ExpectedZero  bool            `json:"expected_zero"`
	BalancesMatch bool            `json:"balances_match"`
}
