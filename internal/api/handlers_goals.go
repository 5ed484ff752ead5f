/**
 * @description
 * This file contains the HTTP handlers for goal endpoints: creating goals,
 * recording completions and reading status boards.
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
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pactify/ledger-service/internal/app"
	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

const maxGoalNameLength = 100

func mapGoalError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrGoalNotFound):
		return http.StatusNotFound, "Goal not found."
	case errors.Is(err, store.ErrGroupNotFound):
		return http.StatusNotFound, "Group not found."
	case errors.Is(err, app.ErrNotGroupMember):
		return http.StatusForbidden, "You are not a member of this group."
	case errors.Is(err, app.ErrNotGoalOwner):
		return http.StatusForbidden, "Only the goal creator or the group creator can modify this goal."
	case errors.Is(err, app.ErrGoalInactive):
		return http.StatusConflict, "This goal is no longer active."
	case errors.Is(err, app.ErrInvalidProofPhoto):
		return http.StatusBadRequest, "Proof photo is not valid base64 data."
	case errors.Is(err, app.ErrMediaStoreDisabled):
		return http.StatusServiceUnavailable, "Proof photo uploads are currently unavailable."
	}
	return http.StatusInternalServerError, "Could not process goal request."
}

// CreateGoalHandler adds a recurring goal to a group.
func (h *LedgerHandlers) CreateGoalHandler(w http.ResponseWriter, r *http.Request) {
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

	var req domain.CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "Goal name is required")
		return
	}
	if len(name) > maxGoalNameLength {
		h.writeError(w, http.StatusBadRequest, "Goal name is too long")
		return
	}
	if req.FrequencyDays < 1 {
		h.writeError(w, http.StatusBadRequest, "Frequency must be at least 1 day")
		return
	}
	if req.PenaltyAmount != nil && req.PenaltyAmount.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "Penalty amount cannot be negative")
		return
	}

	goal, err := h.service.CreateGoal(r.Context(), groupID, userID, req)
	if err != nil {
		status, msg := mapGoalError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=create_goal outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, goal)
}

// ListGroupGoalsHandler returns a group's goals. Retired goals are included
// when include_inactive=true.
func (h *LedgerHandlers) ListGroupGoalsHandler(w http.ResponseWriter, r *http.Request) {
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

	includeInactive := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("include_inactive")), "true")

	goals, err := h.service.ListGroupGoals(r.Context(), groupID, userID, includeInactive)
	if err != nil {
		status, msg := mapGoalError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=list_goals outcome=failed group_id=%s user_id=%s err=%v", groupID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, goals)
}

// DeactivateGoalHandler retires a goal while keeping its completion history.
func (h *LedgerHandlers) DeactivateGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	goalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal ID format")
		return
	}

	if err := h.service.DeactivateGoal(r.Context(), goalID, userID); err != nil {
		status, msg := mapGoalError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=deactivate_goal outcome=failed goal_id=%s user_id=%s err=%v", goalID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// CompleteGoalHandler records that the caller completed a goal. The proof
// photo arrives either as a ready URL or as base64 data to upload.
func (h *LedgerHandlers) CompleteGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	goalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal ID format")
		return
	}

	var req domain.CompleteGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ProofPhotoURL != nil && req.ProofPhotoBase64 != nil {
		h.writeError(w, http.StatusBadRequest, "Provide either proof_photo_url or proof_photo_base64, not both")
		return
	}

	completion, err := h.service.CompleteGoal(r.Context(), goalID, userID, req)
	if err != nil {
		status, msg := mapGoalError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=complete_goal outcome=failed goal_id=%s user_id=%s err=%v", goalID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusCreated, completion)
}

// GetGoalStatusHandler computes where a member stands on a goal right now.
// The user_id query parameter defaults to the caller.
func (h *LedgerHandlers) GetGoalStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	goalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal ID format")
		return
	}

	targetID := userID
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		targetID, err = uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid user_id format")
			return
		}
	}

	status, err := h.service.GetGoalStatus(r.Context(), goalID, userID, targetID)
	if err != nil {
		code, msg := mapGoalError(err)
		if code == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=get_goal_status outcome=failed goal_id=%s user_id=%s err=%v", goalID, userID, err)
		}
		h.writeError(w, code, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// GetGoalBoardHandler returns every member's status on one goal, most urgent
// deadline first.
func (h *LedgerHandlers) GetGoalBoardHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	goalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal ID format")
		return
	}

	board, err := h.service.GetGoalBoard(r.Context(), goalID, userID)
	if err != nil {
		status, msg := mapGoalError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=get_goal_board outcome=failed goal_id=%s user_id=%s err=%v", goalID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, board)
}

// ListGoalCompletionsHandler returns a goal's completion feed.
func (h *LedgerHandlers) ListGoalCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, statusCode, message := h.resolveAuthenticatedUserID(r)
	if statusCode != 0 {
		h.writeError(w, statusCode, message)
		return
	}

	goalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal ID format")
		return
	}

	completions, err := h.service.ListGoalCompletions(r.Context(), goalID, userID)
	if err != nil {
		status, msg := mapGoalError(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api endpoint=list_goal_completions outcome=failed goal_id=%s user_id=%s err=%v", goalID, userID, err)
		}
		h.writeError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, completions)
}
