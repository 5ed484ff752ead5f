/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's group and
 * balance endpoints. Handlers are responsible for parsing incoming requests,
 * calling the appropriate methods on the application service, and writing the
 * HTTP response. They act as the bridge between the web layer and the
 * business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pactify/ledger-service/internal/app"
	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

const maxGroupNameLength = 100

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// resolveAuthenticatedUserID extracts the caller's UUID from the request
// context populated by the auth middleware. A non-zero status code means the
// request must be rejected with that code and message.
func (h *LedgerHandlers) resolveAuthenticatedUserID(r *http.Request) (uuid.UUID, int, string) {
	subject, ok := GetAuthUserID(r.Context())
	if !ok {
		return uuid.Nil, http.StatusUnauthorized, "Could not get user ID from context"
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, http.StatusBadRequest, "Invalid user ID format"
	}
	return userID, 0, ""
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must be >= 0")
	}
	return value, nil
}

func mapGroupError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrGroupNotFound):
		return http.StatusNotFound, "Group not found."
	case errors.Is(err, store.ErrMembershipNotFound):
		return http.StatusNotFound, "Membership not found."
	case errors.Is(err, app.ErrNotGroupMember):
		return http.StatusForbidden, "You are not a member of this group."
	case errors.Is(err, app.ErrNotGroupCreator):
		return http.StatusForbidden, "Only the group creator can do this."
	case errors.Is(err, app.ErrCreatorCannotLeave):
		return http.StatusConflict, "The group creator cannot leave their own group."
	case errors.Is(err, store.ErrAlreadyMember):
		return http.StatusConflict, "You are already a member of this group."
	case errors.Is(err, store.ErrOutstandingBalance):
		return http.StatusConflict, "Settle your balance before leaving the group."
	case errors.Is(err, store.ErrPendingTransactions):
		return http.StatusConflict, "Settle your pending transactions before leaving the group."
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return http.StatusConflict, "This record already exists."
		}
	}

	return http.StatusInternalServerError, "Could not process group request."
}

// CreateGroupHandler handles requests to create a new accountability group.
func (h *LedgerHandlers) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	var req domain.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "Group name is required")
		return
	}
	if len(name) > maxGroupNameLength {
		h.writeError(w, http.StatusBadRequest, "Group name is too long")
		return
	}
	if req.DefaultPenaltyAmount.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "Default penalty amount cannot be negative")
		return
	}

	group, err := h.service.CreateGroup(r.Context(), userID, req)
	if err != nil {
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=create_group outcome=failed user_id=%s err=%v", userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, group)
}

// ListGroupsHandler returns every group the authenticated user belongs to.
func (h *LedgerHandlers) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	groups, err := h.service.ListGroups(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_groups outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve groups.")
		return
	}

	h.writeJSON(w, http.StatusOK, groups)
}

// GetGroupHandler returns one group with its member roster.
func (h *LedgerHandlers) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
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

	detail, err := h.service.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=get_group outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

// JoinGroupHandler adds the authenticated user to the group behind an invite code.
func (h *LedgerHandlers) JoinGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	var req domain.JoinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.InviteCode) == "" {
		h.writeError(w, http.StatusBadRequest, "Invite code is required")
		return
	}

	group, err := h.service.JoinGroup(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, store.ErrGroupNotFound) {
			h.writeError(w, http.StatusNotFound, "No group matches this invite code.")
			return
		}
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=join_group outcome=failed user_id=%s err=%v", userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, group)
}

// LeaveGroupHandler removes the authenticated user from a group.
func (h *LedgerHandlers) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.LeaveGroup(r.Context(), groupID, userID); err != nil {
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=leave_group outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// DeleteGroupHandler removes a group entirely. Creator only.
func (h *LedgerHandlers) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteGroup(r.Context(), groupID, userID); err != nil {
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=delete_group outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// GetGroupBoardHandler returns the group's members ordered by balance.
func (h *LedgerHandlers) GetGroupBoardHandler(w http.ResponseWriter, r *http.Request) {
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

	board, err := h.service.GetGroupBoard(r.Context(), groupID, userID)
	if err != nil {
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=get_group_board outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, board)
}

// GetBalanceHandler returns the authenticated user's net balance across all
// their groups plus the per-group breakdown.
func (h *LedgerHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	overview, err := h.service.GetBalanceOverview(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=get_balance outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not retrieve balance.")
		return
	}

	h.writeJSON(w, http.StatusOK, overview)
}

// AuditGroupLedgerHandler recomputes the group's ledger invariants. Intended
// for support tooling; any member may call it.
func (h *LedgerHandlers) AuditGroupLedgerHandler(w http.ResponseWriter, r *http.Request) {
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

	audit, err := h.service.AuditGroupLedger(r.Context(), groupID, userID)
	if err != nil {
		status, msg := mapGroupError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=audit_group outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	if !audit.ExpectedZero || !audit.BalancesMatch {
		log.Printf("level=error component=api endpoint=audit_group outcome=drift group_id=%s balance_sum=%s balances_match=%t", groupID, audit.BalanceSum, audit.BalancesMatch)
	}

	h.writeJSON(w, http.StatusOK, audit)
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
