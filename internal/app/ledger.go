/**
 * @description
 * This file holds the ledger mutations of the service: logging a failure
 * (which fans a penalty out to every co-member) and settling a single debt.
 * Both delegate the balance arithmetic to one atomic repository call and
 * publish an event on success. It also carries the transaction read paths.
 *
 * @dependencies
 * - context, crypto/sha256, errors, log: Standard Go libraries.
 * - github.com/google/uuid: Identifier parsing and comparison.
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

// failureRequestHash fingerprints a failure report so an idempotency key
// replayed with a different body is rejected instead of answered from cache.
func failureRequestHash(groupID uuid.UUID, req domain.LogFailureRequest) string {
	h := sha256.New()
	h.Write([]byte(groupID.String()))
	h.Write([]byte{0})
	if req.Description != nil {
		h.Write([]byte(*req.Description))
	}
	h.Write([]byte{0})
	if req.ProofPhotoURL != nil {
		h.Write([]byte(*req.ProofPhotoURL))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LogFailure records that the actor broke a group commitment. One pending
// transaction per co-member is created at the group's default penalty, the
// actor is debited by the total and each co-member credited by the penalty.
// In a single-member group the report succeeds with zero transactions and
// only the failure count moves.
func (s *Service) LogFailure(ctx context.Context, groupID, actorID uuid.UUID, req domain.LogFailureRequest, idempotencyKey string) (*domain.LogFailureResponse, error) {
	// 1. The group must exist and the actor must belong to it.
	if _, err := s.repo.FindGroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}

	// 2. Throttle per (group, actor). Redis being down fails open; the limiter
	// is a guard against runaway clients, not a correctness dependency.
	allowed, retryAfter, err := s.rateLimiter.Allow(ctx, groupID, actorID, s.failureRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=app op=log_failure msg=\"rate limiter unavailable\" user_id=%s err=%v", actorID, err)
	} else if !allowed {
		return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
	}

	// 3. Reserve the idempotency key when the client sent one. A completed
	// replay short-circuits with the stored response.
	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		requestHash := failureRequestHash(groupID, req)
		cached, acquired, err := s.repo.AcquireFailureIdempotency(ctx, actorID, key, groupID, requestHash, s.failureIdempotencyTTL, failureIdempotencyStaleWindow)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
		if !acquired {
			return nil, store.ErrFailureIdempotencyInProgress
		}
	}

	// 4. Apply the distribution atomically.
	result, err := s.repo.DistributeFailure(ctx, store.DistributeFailureParams{
		GroupID:       groupID,
		ActorID:       actorID,
		Description:   req.Description,
		ProofPhotoURL: req.ProofPhotoURL,
	})
	if err != nil {
		if key != "" {
			if relErr := s.repo.ReleaseFailureIdempotency(ctx, actorID, key); relErr != nil {
				log.Printf("level=warn component=app op=log_failure msg=\"failed to release idempotency key\" user_id=%s err=%v", actorID, relErr)
			}
		}
		return nil, err
	}

	response := &domain.LogFailureResponse{
		TransactionsCreated: result.TransactionsCreated,
		TotalDebt:           result.TotalDebt,
	}

	if key != "" {
		if err := s.repo.CompleteFailureIdempotency(ctx, actorID, key, *response); err != nil {
			log.Printf("level=warn component=app op=log_failure msg=\"failed to store idempotent response\" user_id=%s err=%v", actorID, err)
		}
	}

	// 5. Tell the rest of the platform. Publish failures never unwind the
	// distribution that already committed.
	if s.eventProducer != nil {
		event := domain.FailureLoggedEvent{
			GroupID:             groupID,
			UserID:              actorID,
			TransactionsCreated: result.TransactionsCreated,
			TotalDebt:           result.TotalDebt,
			Description:         req.Description,
			OccurredAt:          s.now().UTC(),
		}
		if err := s.eventProducer.PublishLedgerEvent(ctx, "ledger.failure.logged", event); err != nil {
			log.Printf("level=warn component=app op=log_failure msg=\"failed to publish event\" group_id=%s user_id=%s err=%v", groupID, actorID, err)
		}
	}

	return response, nil
}

// SettleDebt marks one pending transaction as paid and reverses its effect on
// the two balances. The debtor, the creditor and the group creator may settle;
// anyone else is rejected. Settling twice fails without moving any balance.
func (s *Service) SettleDebt(ctx context.Context, transactionID, actorID uuid.UUID) (*domain.SettleDebtResponse, error) {
	txRecord, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if txRecord.FromUserID != actorID && txRecord.ToUserID != actorID {
		group, err := s.repo.FindGroupByID(ctx, txRecord.GroupID)
		if err != nil {
			return nil, err
		}
		if group.CreatedBy != actorID {
			return nil, ErrNotTransactionParty
		}
	}

	settled, err := s.repo.SettleTransaction(ctx, transactionID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if s.eventProducer != nil {
		event := domain.DebtSettledEvent{
			TransactionID: settled.ID,
			GroupID:       settled.GroupID,
			FromUserID:    settled.FromUserID,
			ToUserID:      settled.ToUserID,
			Amount:        settled.Amount,
			OccurredAt:    s.now().UTC(),
		}
		if err := s.eventProducer.PublishLedgerEvent(ctx, "ledger.debt.settled", event); err != nil {
			log.Printf("level=warn component=app op=settle_debt msg=\"failed to publish event\" transaction_id=%s err=%v", settled.ID, err)
		}
	}

	return &domain.SettleDebtResponse{Success: true, Transaction: settled}, nil
}

// GetTransaction returns one transaction. Any member of its group can view it.
func (s *Service) GetTransaction(ctx context.Context, transactionID, actorID uuid.UUID) (*domain.Transaction, error) {
	txRecord, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, txRecord.GroupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return txRecord, nil
}

// ListGroupTransactions returns a group's transaction history to one of its
// members.
func (s *Service) ListGroupTransactions(ctx context.Context, groupID, actorID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	if _, err := s.repo.FindGroupByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindMembership(ctx, groupID, actorID); err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return s.repo.ListGroupTransactions(ctx, groupID, opts)
}

// ListUserTransactions returns the calling user's own transactions across all
// their groups.
func (s *Service) ListUserTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	return s.repo.ListUserTransactions(ctx, userID, opts)
}
