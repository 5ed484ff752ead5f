package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pactify/ledger-service/internal/domain"
)

const (
	failureIdempotencyStatusProcessing = "processing"
	failureIdempotencyStatusCompleted  = "completed"
)

var (
	ErrFailureIdempotencyInProgress = errors.New("failure report with this idempotency key is in progress")
	ErrFailureIdempotencyConflict   = errors.New("idempotency key was used with a different request")
)

func isUndefinedTableError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// AcquireFailureIdempotency reserves an idempotency key for one failure
// report. It returns the cached response when a completed row already holds
// this key, acquired=true when the caller owns the key and must run the
// distribution, and an in-progress or conflict error otherwise. Rows that
// stayed in processing past the stale window are reclaimed so a crashed
// request cannot wedge its key forever. A missing table degrades to a plain
// acquire so the endpoint keeps working before the schema bootstrap ran.
func (r *PostgresRepository) AcquireFailureIdempotency(
	ctx context.Context,
	userID uuid.UUID,
	key string,
	groupID uuid.UUID,
	requestHash string,
	ttl time.Duration,
	staleWindow time.Duration,
) (cachedResponse *domain.LogFailureResponse, acquired bool, err error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if staleWindow <= 0 {
		staleWindow = 2 * time.Minute
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("begin idempotency tx: %w", err)
	}
	defer tx.Rollback(ctx)

	expiresAt := time.Now().UTC().Add(ttl)
	insertQuery := `
		INSERT INTO failure_report_idempotency (
			user_id,
			idempotency_key,
			group_id,
			request_hash,
			status,
			expires_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`
	insertResult, err := tx.Exec(
		ctx,
		insertQuery,
		userID,
		key,
		groupID,
		requestHash,
		failureIdempotencyStatusProcessing,
		expiresAt,
	)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if insertResult.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	var (
		existingGroupID uuid.UUID
		existingHash    string
		status          string
		responsePayload []byte
		updatedAt       time.Time
		existingExpires time.Time
	)
	selectQuery := `
		SELECT group_id, request_hash, status, response_payload, updated_at, expires_at
		FROM failure_report_idempotency
		WHERE user_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`
	if err := tx.QueryRow(ctx, selectQuery, userID, key).Scan(
		&existingGroupID,
		&existingHash,
		&status,
		&responsePayload,
		&updatedAt,
		&existingExpires,
	); err != nil {
		if isUndefinedTableError(err) {
			return nil, true, nil
		}
		if err == pgx.ErrNoRows {
			return nil, false, ErrFailureIdempotencyInProgress
		}
		return nil, false, fmt.Errorf("load idempotency row: %w", err)
	}

	if existingGroupID != groupID || existingHash != requestHash {
		return nil, false, ErrFailureIdempotencyConflict
	}

	now := time.Now().UTC()
	if status == failureIdempotencyStatusCompleted {
		if len(responsePayload) == 0 {
			return nil, false, ErrFailureIdempotencyInProgress
		}
		var response domain.LogFailureResponse
		if err := json.Unmarshal(responsePayload, &response); err != nil {
			return nil, false, fmt.Errorf("decode idempotent response payload: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return &response, false, nil
	}

	isStale := updatedAt.Before(now.Add(-staleWindow)) || existingExpires.Before(now)
	if !isStale {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return nil, false, ErrFailureIdempotencyInProgress
	}

	reclaimQuery := `
		UPDATE failure_report_idempotency
		SET
			group_id = $3,
			request_hash = $4,
			status = $5,
			response_payload = NULL,
			expires_at = $6,
			updated_at = NOW()
		WHERE user_id = $1 AND idempotency_key = $2
	`
	if _, err := tx.Exec(
		ctx,
		reclaimQuery,
		userID,
		key,
		groupID,
		requestHash,
		failureIdempotencyStatusProcessing,
		expiresAt,
	); err != nil {
		if isUndefinedTableError(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("reclaim stale idempotency row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

// CompleteFailureIdempotency stores the distribution response on the key so
// replays of the same request return it without re-running the distribution.
func (r *PostgresRepository) CompleteFailureIdempotency(
	ctx context.Context,
	userID uuid.UUID,
	key string,
	response domain.LogFailureResponse,
) error {
	responsePayload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal idempotent response payload: %w", err)
	}

	query := `
		UPDATE failure_report_idempotency
		SET
			status = $4,
			response_payload = $3::jsonb,
			updated_at = NOW()
		WHERE user_id = $1 AND idempotency_key = $2
	`
	result, err := r.db.Exec(
		ctx,
		query,
		userID,
		key,
		string(responsePayload),
		failureIdempotencyStatusCompleted,
	)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil
		}
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFailureIdempotencyInProgress
	}
	return nil
}

// ReleaseFailureIdempotency frees a reserved key after the distribution
// failed, so the client can retry with the same key.
func (r *PostgresRepository) ReleaseFailureIdempotency(
	ctx context.Context,
	userID uuid.UUID,
	key string,
) error {
	query := `
		DELETE FROM failure_report_idempotency
		WHERE user_id = $1
		  AND idempotency_key = $2
		  AND status = $3
	`
	_, err := r.db.Exec(ctx, query, userID, key, failureIdempotencyStatusProcessing)
	if isUndefinedTableError(err) {
		return nil
	}
	return err
}
