/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to groups, memberships, transactions, goals and goal completions.
 *
 * The two ledger mutations (DistributeFailure, SettleTransaction) run inside a
 * single database transaction that locks the group row first, so every balance
 * change within one group is serialized and the per-group zero-sum invariant
 * can never observe a partial update.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Money amounts backed by NUMERIC columns.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pactify/ledger-service/internal/domain"
)

var (
	ErrGroupNotFound             = errors.New("group not found")
	ErrMembershipNotFound        = errors.New("membership not found")
	ErrAlreadyMember             = errors.New("user is already a member of this group")
	ErrOutstandingBalance        = errors.New("membership has a nonzero balance")
	ErrPendingTransactions       = errors.New("membership has pending transactions")
	ErrInviteCodeTaken           = errors.New("invite code already in use")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrTransactionAlreadySettled = errors.New("transaction already settled")
	ErrGoalNotFound              = errors.New("goal not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS groups (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name TEXT NOT NULL,
    invite_code TEXT NOT NULL UNIQUE,
    default_penalty_amount NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (default_penalty_amount >= 0),
    created_by UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS group_members (
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    user_id UUID NOT NULL,
    current_balance NUMERIC(12,2) NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0 CHECK (failure_count >= 0),
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (group_id, user_id)
);
CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    from_user_id UUID NOT NULL,
    to_user_id UUID NOT NULL,
    amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid')),
    description TEXT,
    proof_photo_url TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    settled_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_transactions_group_created ON transactions (group_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_from_user ON transactions (from_user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_to_user ON transactions (to_user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS goals (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    emoji TEXT NOT NULL DEFAULT '',
    frequency_days INTEGER NOT NULL CHECK (frequency_days >= 1),
    penalty_amount NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (penalty_amount >= 0),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_by UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS goal_completions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    goal_id UUID NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
    user_id UUID NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    proof_photo_url TEXT,
    notes TEXT
);
CREATE INDEX IF NOT EXISTS idx_goal_completions_goal_user ON goal_completions (goal_id, user_id, completed_at DESC);
CREATE TABLE IF NOT EXISTS failure_report_idempotency (
    user_id UUID NOT NULL,
    idempotency_key TEXT NOT NULL,
    group_id UUID NOT NULL,
    request_hash TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'processing' CHECK (status IN ('processing', 'completed')),
    response_payload JSONB,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, idempotency_key)
);
`

// EnsureSchema creates the service's tables if they do not exist yet (idempotent).
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaDDL)
	return err
}

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

// CreateGroup inserts a new group together with the creator's membership in a
// single transaction, so a group is never visible without its first member.
func (r *PostgresRepository) CreateGroup(ctx context.Context, group *domain.Group) (*domain.Group, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertGroupQuery := `
		INSERT INTO groups (name, invite_code, default_penalty_amount, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insertGroupQuery, group.Name, group.InviteCode, group.DefaultPenaltyAmount, group.CreatedBy).
		Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrInviteCodeTaken
		}
		return nil, fmt.Errorf("failed to insert group: %w", err)
	}

	insertMemberQuery := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
	`
	if _, err := tx.Exec(ctx, insertMemberQuery, group.ID, group.CreatedBy); err != nil {
		return nil, fmt.Errorf("failed to insert creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return group, nil
}

// FindGroupByID retrieves a group by its ID.
func (r *PostgresRepository) FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	var group domain.Group
	query := `
		SELECT id, name, invite_code, default_penalty_amount, created_by, created_at
		FROM groups
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, groupID).Scan(
		&group.ID, &group.Name, &group.InviteCode, &group.DefaultPenaltyAmount, &group.CreatedBy, &group.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// FindGroupByInviteCode retrieves a group by its invite code, case-insensitively.
func (r *PostgresRepository) FindGroupByInviteCode(ctx context.Context, inviteCode string) (*domain.Group, error) {
	var group domain.Group
	query := `
		SELECT id, name, invite_code, default_penalty_amount, created_by, created_at
		FROM groups
		WHERE upper(btrim(invite_code)) = upper(btrim($1))
	`
	err := r.db.QueryRow(ctx, query, inviteCode).Scan(
		&group.ID, &group.Name, &group.InviteCode, &group.DefaultPenaltyAmount, &group.CreatedBy, &group.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// DeleteGroup removes a group. Memberships, transactions, goals and goal
// completions are removed by foreign-key cascade.
func (r *PostgresRepository) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// ListUserGroups returns every group the user belongs to, paired with the
// user's balance in it and the group's member count.
func (r *PostgresRepository) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]domain.GroupSummary, error) {
	query := `
		SELECT g.id, g.name, g.invite_code, g.default_penalty_amount, g.created_by, g.created_at,
		       gm.current_balance,
		       (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id) AS member_count
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.created_at ASC, g.id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []domain.GroupSummary{}
	for rows.Next() {
		var summary domain.GroupSummary
		err := rows.Scan(
			&summary.Group.ID, &summary.Group.Name, &summary.Group.InviteCode,
			&summary.Group.DefaultPenaltyAmount, &summary.Group.CreatedBy, &summary.Group.CreatedAt,
			&summary.Balance, &summary.MemberCount,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// ---------------------------------------------------------------------------
// Memberships
// ---------------------------------------------------------------------------

// CreateMembership adds a user to a group with a zero balance.
func (r *PostgresRepository) CreateMembership(ctx context.Context, groupID, userID uuid.UUID) (*domain.Membership, error) {
	var membership domain.Membership
	query := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		RETURNING group_id, user_id, current_balance, failure_count, joined_at
	`
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(
		&membership.GroupID, &membership.UserID, &membership.CurrentBalance,
		&membership.FailureCount, &membership.JoinedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, ErrAlreadyMember
			case "23503":
				return nil, ErrGroupNotFound
			}
		}
		return nil, err
	}
	return &membership, nil
}

// DeleteMembership removes a user from a group. The member must have a zero
// balance and no pending transactions as either party; otherwise removing the
// row would strand debt and break the group's zero-sum ledger. The group row
// is locked first so leaving serializes against concurrent distributions.
func (r *PostgresRepository) DeleteMembership(ctx context.Context, groupID, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&lockedID); err != nil {
		if err == pgx.ErrNoRows {
			return ErrGroupNotFound
		}
		return fmt.Errorf("failed to lock group: %w", err)
	}

	var balance decimal.Decimal
	balanceQuery := `
		SELECT current_balance
		FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`
	if err := tx.QueryRow(ctx, balanceQuery, groupID, userID).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return ErrMembershipNotFound
		}
		return err
	}
	if !balance.IsZero() {
		return ErrOutstandingBalance
	}

	var pendingCount int
	pendingQuery := `
		SELECT COUNT(*)
		FROM transactions
		WHERE group_id = $1 AND status = 'pending' AND (from_user_id = $2 OR to_user_id = $2)
	`
	if err := tx.QueryRow(ctx, pendingQuery, groupID, userID).Scan(&pendingCount); err != nil {
		return err
	}
	if pendingCount > 0 {
		return ErrPendingTransactions
	}

	if _, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	return tx.Commit(ctx)
}

// FindMembership retrieves one user's membership record in one group.
func (r *PostgresRepository) FindMembership(ctx context.Context, groupID, userID uuid.UUID) (*domain.Membership, error) {
	var membership domain.Membership
	query := `
		SELECT group_id, user_id, current_balance, failure_count, joined_at
		FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(
		&membership.GroupID, &membership.UserID, &membership.CurrentBalance,
		&membership.FailureCount, &membership.JoinedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &membership, nil
}

// ListGroupMembers returns a group's memberships ordered by balance
// descending, which is the order the group leaderboard displays.
func (r *PostgresRepository) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.Membership, error) {
	query := `
		SELECT group_id, user_id, current_balance, failure_count, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY current_balance DESC, joined_at ASC, user_id ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []domain.Membership{}
	for rows.Next() {
		var membership domain.Membership
		err := rows.Scan(
			&membership.GroupID, &membership.UserID, &membership.CurrentBalance,
			&membership.FailureCount, &membership.JoinedAt,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, membership)
	}
	return members, rows.Err()
}

// ListUserGroupBalances returns one (group, balance) pair per membership of
// the user, in stable group-creation order.
func (r *PostgresRepository) ListUserGroupBalances(ctx context.Context, userID uuid.UUID) ([]domain.GroupBalance, error) {
	query := `
		SELECT g.id, g.name, gm.current_balance
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.created_at ASC, g.id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := []domain.GroupBalance{}
	for rows.Next() {
		var balance domain.GroupBalance
		if err := rows.Scan(&balance.GroupID, &balance.GroupName, &balance.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}

// ---------------------------------------------------------------------------
// Ledger mutations
// ---------------------------------------------------------------------------

// DistributeFailure applies one failure report as a single atomic unit: it
// creates one pending transaction per co-member at the group's default
// penalty, debits the actor by the total, credits each co-member by the
// penalty and increments the actor's failure count. With no co-members the
// report still succeeds and only the failure count changes.
func (r *PostgresRepository) DistributeFailure(ctx context.Context, params DistributeFailureParams) (*DistributeFailureResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the group row. All ledger writes for this group queue behind it.
	var penalty decimal.Decimal
	lockQuery := `
		SELECT default_penalty_amount
		FROM groups
		WHERE id = $1
		FOR UPDATE
	`
	if err := tx.QueryRow(ctx, lockQuery, params.GroupID).Scan(&penalty); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to lock group: %w", err)
	}

	// 2. Record the failure on the actor's membership. Zero rows means the
	// actor is not a member.
	bumpQuery := `
		UPDATE group_members
		SET failure_count = failure_count + 1
		WHERE group_id = $1 AND user_id = $2
	`
	bumpResult, err := tx.Exec(ctx, bumpQuery, params.GroupID, params.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment failure count: %w", err)
	}
	if bumpResult.RowsAffected() == 0 {
		return nil, ErrMembershipNotFound
	}

	// 3. Enumerate the recipients.
	recipientQuery := `
		SELECT user_id
		FROM group_members
		WHERE group_id = $1 AND user_id <> $2
		ORDER BY user_id ASC
	`
	rows, err := tx.Query(ctx, recipientQuery, params.GroupID, params.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate recipients: %w", err)
	}
	recipients := []uuid.UUID{}
	for rows.Next() {
		var recipientID uuid.UUID
		if err := rows.Scan(&recipientID); err != nil {
			rows.Close()
			return nil, err
		}
		recipients = append(recipients, recipientID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalDebt := penalty.Mul(decimal.NewFromInt(int64(len(recipients))))
	result := &DistributeFailureResult{
		TransactionsCreated: len(recipients),
		PenaltyAmount:       penalty,
		TotalDebt:           totalDebt,
		Transactions:        []domain.Transaction{},
	}

	if len(recipients) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return result, nil
	}

	// 4. One pending transaction per recipient.
	insertQuery := `
		INSERT INTO transactions (group_id, from_user_id, to_user_id, amount, status, description, proof_photo_url)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING id, created_at
	`
	for _, recipientID := range recipients {
		txRecord := domain.Transaction{
			GroupID:       params.GroupID,
			FromUserID:    params.ActorID,
			ToUserID:      recipientID,
			Amount:        penalty,
			Status:        domain.TransactionStatusPending,
			Description:   params.Description,
			ProofPhotoURL: params.ProofPhotoURL,
		}
		err := tx.QueryRow(ctx, insertQuery,
			params.GroupID, params.ActorID, recipientID, penalty, params.Description, params.ProofPhotoURL,
		).Scan(&txRecord.ID, &txRecord.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert penalty transaction: %w", err)
		}
		result.Transactions = append(result.Transactions, txRecord)
	}

	// 5. Debit the actor by the total owed.
	debitQuery := `
		UPDATE group_members
		SET current_balance = current_balance - $3
		WHERE group_id = $1 AND user_id = $2
	`
	debitResult, err := tx.Exec(ctx, debitQuery, params.GroupID, params.ActorID, totalDebt)
	if err != nil {
		return nil, fmt.Errorf("failed to debit actor balance: %w", err)
	}
	if debitResult.RowsAffected() != 1 {
		return nil, fmt.Errorf("actor balance update touched %d rows", debitResult.RowsAffected())
	}

	// 6. Credit every recipient by the per-head penalty. The row count must
	// equal the recipient count or the ledger would no longer sum to zero.
	creditQuery := `
		UPDATE group_members
		SET current_balance = current_balance + $3
		WHERE group_id = $1 AND user_id <> $2
	`
	creditResult, err := tx.Exec(ctx, creditQuery, params.GroupID, params.ActorID, penalty)
	if err != nil {
		return nil, fmt.Errorf("failed to credit recipient balances: %w", err)
	}
	if int(creditResult.RowsAffected()) != len(recipients) {
		return nil, fmt.Errorf("recipient balance update touched %d rows, expected %d", creditResult.RowsAffected(), len(recipients))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// SettleTransaction marks a pending transaction paid and reverses its balance
// effect: the debtor's balance rises by the amount, the creditor's falls by
// the same amount. Settling an already-paid transaction returns
// ErrTransactionAlreadySettled without touching any balance.
func (r *PostgresRepository) SettleTransaction(ctx context.Context, transactionID uuid.UUID, settledAt time.Time) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Resolve the group, then take the group lock before re-reading the row,
	// keeping the same lock order as DistributeFailure.
	var groupID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT group_id FROM transactions WHERE id = $1`, transactionID).Scan(&groupID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	var lockedID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&lockedID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to lock group: %w", err)
	}

	record := domain.Transaction{ID: transactionID, GroupID: groupID}
	reloadQuery := `
		SELECT from_user_id, to_user_id, amount, status, description, proof_photo_url, created_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, reloadQuery, transactionID).Scan(
		&record.FromUserID, &record.ToUserID, &record.Amount, &record.Status,
		&record.Description, &record.ProofPhotoURL, &record.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if record.Status == domain.TransactionStatusPaid {
		return nil, ErrTransactionAlreadySettled
	}

	updateQuery := `
		UPDATE transactions
		SET status = 'paid', settled_at = $2
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, updateQuery, transactionID, settledAt); err != nil {
		return nil, fmt.Errorf("failed to mark transaction paid: %w", err)
	}

	creditDebtorQuery := `
		UPDATE group_members
		SET current_balance = current_balance + $3
		WHERE group_id = $1 AND user_id = $2
	`
	creditResult, err := tx.Exec(ctx, creditDebtorQuery, groupID, record.FromUserID, record.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust debtor balance: %w", err)
	}
	if creditResult.RowsAffected() != 1 {
		return nil, fmt.Errorf("debtor balance update touched %d rows", creditResult.RowsAffected())
	}

	debitCreditorQuery := `
		UPDATE group_members
		SET current_balance = current_balance - $3
		WHERE group_id = $1 AND user_id = $2
	`
	debitResult, err := tx.Exec(ctx, debitCreditorQuery, groupID, record.ToUserID, record.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust creditor balance: %w", err)
	}
	if debitResult.RowsAffected() != 1 {
		return nil, fmt.Errorf("creditor balance update touched %d rows", debitResult.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	record.Status = domain.TransactionStatusPaid
	record.SettledAt = &settledAt
	return &record, nil
}

// ---------------------------------------------------------------------------
// Transaction reads
// ---------------------------------------------------------------------------

const transactionColumns = `id, group_id, from_user_id, to_user_id, amount, status, description, proof_photo_url, created_at, settled_at`

func scanTransaction(rows pgx.Rows) (domain.Transaction, error) {
	var record domain.Transaction
	err := rows.Scan(
		&record.ID, &record.GroupID, &record.FromUserID, &record.ToUserID,
		&record.Amount, &record.Status, &record.Description, &record.ProofPhotoURL,
		&record.CreatedAt, &record.SettledAt,
	)
	return record, err
}

// FindTransactionByID retrieves a single transaction.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var record domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&record.ID, &record.GroupID, &record.FromUserID, &record.ToUserID,
		&record.Amount, &record.Status, &record.Description, &record.ProofPhotoURL,
		&record.CreatedAt, &record.SettledAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &record, nil
}

func clampListOptions(opts domain.TransactionListOptions) (int, int) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListGroupTransactions returns a group's transactions, newest first.
func (r *PostgresRepository) ListGroupTransactions(ctx context.Context, groupID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	limit, offset := clampListOptions(opts)

	conditions := []string{"group_id = $1"}
	args := []interface{}{groupID}
	if opts.Status != "" {
		args = append(args, opts.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, transactionColumns, strings.Join(conditions, " AND "), len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, record)
	}
	return transactions, rows.Err()
}

// ListUserTransactions returns the user's transactions across all groups.
// Role narrows the user's side of the debt: "debtor" selects transactions the
// user owes, "creditor" transactions owed to the user.
func (r *PostgresRepository) ListUserTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	limit, offset := clampListOptions(opts)

	args := []interface{}{userID}
	var roleCondition string
	switch opts.Role {
	case "debtor":
		roleCondition = "from_user_id = $1"
	case "creditor":
		roleCondition = "to_user_id = $1"
	default:
		roleCondition = "(from_user_id = $1 OR to_user_id = $1)"
	}
	conditions := []string{roleCondition}
	if opts.Status != "" {
		args = append(args, opts.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, transactionColumns, strings.Join(conditions, " AND "), len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, record)
	}
	return transactions, rows.Err()
}

// AuditGroupLedger recomputes the group's ledger invariants: the member
// balances must sum to zero, and each member's stored balance must equal the
// net effect of the group's pending transactions on that member.
func (r *PostgresRepository) AuditGroupLedger(ctx context.Context, groupID uuid.UUID) (*domain.LedgerAudit, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrGroupNotFound
	}

	audit := domain.LedgerAudit{GroupID: groupID}

	memberQuery := `
		SELECT COUNT(*), COALESCE(SUM(current_balance), 0)
		FROM group_members
		WHERE group_id = $1
	`
	if err := r.db.QueryRow(ctx, memberQuery, groupID).Scan(&audit.Members, &audit.BalanceSum); err != nil {
		return nil, err
	}

	pendingQuery := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE group_id = $1 AND status = 'pending'
	`
	if err := r.db.QueryRow(ctx, pendingQuery, groupID).Scan(&audit.PendingCount, &audit.PendingTotal); err != nil {
		return nil, err
	}

	matchQuery := `
		SELECT NOT EXISTS (
			SELECT 1
			FROM group_members gm
			LEFT JOIN (
				SELECT user_id, SUM(delta) AS expected
				FROM (
					SELECT to_user_id AS user_id, amount AS delta
					FROM transactions
					WHERE group_id = $1 AND status = 'pending'
					UNION ALL
					SELECT from_user_id AS user_id, -amount AS delta
					FROM transactions
					WHERE group_id = $1 AND status = 'pending'
				) deltas
				GROUP BY user_id
			) effect ON effect.user_id = gm.user_id
			WHERE gm.group_id = $1 AND gm.current_balance <> COALESCE(effect.expected, 0)
		)
	`
	if err := r.db.QueryRow(ctx, matchQuery, groupID).Scan(&audit.BalancesMatch); err != nil {
		return nil, err
	}

	audit.ExpectedZero = audit.BalanceSum.IsZero()
	return &audit, nil
}

// ---------------------------------------------------------------------------
// Goals
// ---------------------------------------------------------------------------

// CreateGoal inserts a new goal for a group.
func (r *PostgresRepository) CreateGoal(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	query := `
		INSERT INTO goals (group_id, name, emoji, frequency_days, penalty_amount, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING id, is_active, created_at
	`
	err := r.db.QueryRow(ctx, query,
		goal.GroupID, goal.Name, goal.Emoji, goal.FrequencyDays, goal.PenaltyAmount, goal.CreatedBy,
	).Scan(&goal.ID, &goal.IsActive, &goal.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return goal, nil
}

// FindGoalByID retrieves a goal by its ID.
func (r *PostgresRepository) FindGoalByID(ctx context.Context, goalID uuid.UUID) (*domain.Goal, error) {
	var goal domain.Goal
	query := `
		SELECT id, group_id, name, emoji, frequency_days, penalty_amount, is_active, created_by, created_at
		FROM goals
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, goalID).Scan(
		&goal.ID, &goal.GroupID, &goal.Name, &goal.Emoji, &goal.FrequencyDays,
		&goal.PenaltyAmount, &goal.IsActive, &goal.CreatedBy, &goal.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return &goal, nil
}

// ListGroupGoals returns a group's goals, active ones first, newest first
// within each state. Inactive goals are included only on request.
func (r *PostgresRepository) ListGroupGoals(ctx context.Context, groupID uuid.UUID, includeInactive bool) ([]domain.Goal, error) {
	query := `
		SELECT id, group_id, name, emoji, frequency_days, penalty_amount, is_active, created_by, created_at
		FROM goals
		WHERE group_id = $1 AND (is_active OR $2)
		ORDER BY is_active DESC, created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, groupID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := []domain.Goal{}
	for rows.Next() {
		var goal domain.Goal
		err := rows.Scan(
			&goal.ID, &goal.GroupID, &goal.Name, &goal.Emoji, &goal.FrequencyDays,
			&goal.PenaltyAmount, &goal.IsActive, &goal.CreatedBy, &goal.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// DeactivateGoal soft-deletes a goal. Completions already recorded remain.
func (r *PostgresRepository) DeactivateGoal(ctx context.Context, goalID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE goals SET is_active = FALSE WHERE id = $1`, goalID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}

// InsertGoalCompletion appends one completion record. CompletedAt is supplied
// by the caller so the service clock stays authoritative.
func (r *PostgresRepository) InsertGoalCompletion(ctx context.Context, completion *domain.GoalCompletion) (*domain.GoalCompletion, error) {
	query := `
		INSERT INTO goal_completions (goal_id, user_id, completed_at, proof_photo_url, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		completion.GoalID, completion.UserID, completion.CompletedAt, completion.ProofPhotoURL, completion.Notes,
	).Scan(&completion.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return completion, nil
}

// ListGoalCompletionsForUser returns one user's completions for a goal,
// newest first, with the id as a deterministic tie-break.
func (r *PostgresRepository) ListGoalCompletionsForUser(ctx context.Context, goalID, userID uuid.UUID) ([]domain.GoalCompletion, error) {
	query := `
		SELECT id, goal_id, user_id, completed_at, proof_photo_url, notes
		FROM goal_completions
		WHERE goal_id = $1 AND user_id = $2
		ORDER BY completed_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, goalID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completions := []domain.GoalCompletion{}
	for rows.Next() {
		var completion domain.GoalCompletion
		err := rows.Scan(
			&completion.ID, &completion.GoalID, &completion.UserID,
			&completion.CompletedAt, &completion.ProofPhotoURL, &completion.Notes,
		)
		if err != nil {
			return nil, err
		}
		completions = append(completions, completion)
	}
	return completions, rows.Err()
}

// ListGoalCompletions returns every member's completions for a goal, newest
// first, for the goal dashboard.
func (r *PostgresRepository) ListGoalCompletions(ctx context.Context, goalID uuid.UUID) ([]domain.GoalCompletion, error) {
	query := `
		SELECT id, goal_id, user_id, completed_at, proof_photo_url, notes
		FROM goal_completions
		WHERE goal_id = $1
		ORDER BY completed_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completions := []domain.GoalCompletion{}
	for rows.Next() {
		var completion domain.GoalCompletion
		err := rows.Scan(
			&completion.ID, &completion.GoalID, &completion.UserID,
			&completion.CompletedAt, &completion.ProofPhotoURL, &completion.Notes,
		)
		if err != nil {
			return nil, err
		}
		completions = append(completions, completion)
	}
	return completions, rows.Err()
}
