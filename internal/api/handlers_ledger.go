/**
 * @description
 * This file contains the HTTP handlers for the penalty ledger itself: logging
 * failures, settling debts and reading transaction history.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pactify/ledger-service/internal/app"
	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

func mapLedgerError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrGroupNotFound):
		return http.StatusNotFound, "Group not found."
	case errors.Is(err, store.ErrTransactionNotFound):
		return http.StatusNotFound, "Transaction not found."
	case errors.Is(err, app.ErrNotGroupMember):
		return http.StatusForbidden, "You are not a member of this group."
	case errors.Is(err, app.ErrNotTransactionParty):
		return http.StatusForbidden, "Only the debtor, the creditor or the group creator can settle this debt."
	case errors.Is(err, store.ErrTransactionAlreadySettled):
		return http.StatusConflict, "This transaction has already been settled."
	case errors.Is(err, store.ErrFailureIdempotencyInProgress):
		return http.StatusConflict, "A failure report with this idempotency key is still being processed."
	case errors.Is(err, store.ErrFailureIdempotencyConflict):
		return http.StatusConflict, "This idempotency key was already used with a different request."
	}
	return http.StatusInternalServerError, "Could not process ledger request."
}

func normalizeTransactionStatusFilter(raw string) (string, error) {
	status := strings.TrimSpace(strings.ToLower(raw))
	if status == "" {
		return "", nil
	}
	switch status {
	case domain.TransactionStatusPending, domain.TransactionStatusPaid:
		return status, nil
	default:
		return "", errors.New("invalid transaction status")
	}
}

func normalizeTransactionRoleFilter(raw string) (string, error) {
	role := strings.TrimSpace(strings.ToLower(raw))
	if role == "" {
		return "", nil
	}
	switch role {
	case "debtor", "creditor":
		return role, nil
	default:
		return "", errors.New("invalid transaction role")
	}
}

// LogFailureHandler records that the caller broke a group commitment and fans
// the penalty out to every other member. Clients may send an Idempotency-Key
// header to make retries safe.
func (h *LedgerHandlers) LogFailureHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid group ID format")
		return
	}

	// Both fields are optional, so an empty body is a valid report.
	var req domain.LogFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	response, err := h.service.LogFailure(r.Context(), groupID, userID, req, idempotencyKey)
	if err != nil {
		var rateErr *app.RateLimitError
		if errors.As(err, &rateErr) {
			w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
			h.writeError(w, http.StatusTooManyRequests, "Too many failure reports. Try again shortly.")
			return
		}
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=log_failure outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// SettleDebtHandler marks one pending transaction as paid.
func (h *LedgerHandlers) SettleDebtHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID format")
		return
	}

	response, err := h.service.SettleDebt(r.Context(), transactionID, userID)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=settle_debt outcome=failed transaction_id=%s user_id=%s err=%v", transactionID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetTransactionHandler returns one transaction to a member of its group.
func (h *LedgerHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID format")
		return
	}

	txRecord, err := h.service.GetTransaction(r.Context(), transactionID, userID)
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=get_transaction outcome=failed transaction_id=%s user_id=%s err=%v", transactionID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, txRecord)
}

// ListGroupTransactionsHandler returns a group's transaction history,
// optionally filtered by status.
func (h *LedgerHandlers) ListGroupTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid group ID format")
		return
	}

	statusFilter, err := normalizeTransactionStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := parseOptionalPositiveInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	transactions, err := h.service.ListGroupTransactions(r.Context(), groupID, userID, domain.TransactionListOptions{
		Status: statusFilter,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		status, msg := mapLedgerError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=list_group_transactions outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, transactions)
}

// ListUserTransactionsHandler returns the caller's transactions across all
// their groups, optionally narrowed by status and by which side of the debt
// they are on.
func (h *LedgerHandlers) ListUserTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	statusFilter, err := normalizeTransactionStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	roleFilter, err := normalizeTransactionRoleFilter(r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := parseOptionalPositiveInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	transactions, err := h.service.ListUserTransactions(r.Context(), userID, domain.TransactionListOptions{
		Status: statusFilter,
		Role:   roleFilter,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		log.Printf("level=error component=api endpoint=list_user_transactions outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve transactions.")
		return
	}

	h.writeJSON(w, http.StatusOK, transactions)
}
