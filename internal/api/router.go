/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Group lifecycle
		r.Post("/groups", h.CreateGroupHandler)
		r.Get("/groups", h.ListGroupsHandler)
		r.Post("/groups/join", h.JoinGroupHandler)
		r.Get("/groups/{id}", h.GetGroupHandler)
		r.Delete("/groups/{id}", h.DeleteGroupHandler)
		r.Post("/groups/{id}/leave", h.LeaveGroupHandler)
		r.Get("/groups/{id}/board", h.GetGroupBoardHandler)
		r.Get("/groups/{id}/ledger/audit", h.AuditGroupLedgerHandler)

		// Penalty ledger
		r.Post("/groups/{id}/failures", h.LogFailureHandler)
		r.Get("/groups/{id}/transactions", h.ListGroupTransactionsHandler)
		r.Get("/transactions", h.ListUserTransactionsHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)
		r.Post("/transactions/{id}/settle", h.SettleDebtHandler)

		// Goals
		r.Post("/groups/{id}/goals", h.CreateGoalHandler)
		r.Get("/groups/{id}/goals", h.ListGroupGoalsHandler)
		r.Delete("/goals/{id}", h.DeactivateGoalHandler)
		r.Post("/goals/{id}/completions", h.CompleteGoalHandler)
		r.Get("/goals/{id}/completions", h.ListGoalCompletionsHandler)
		r.Get("/goals/{id}/status", h.GetGoalStatusHandler)
		r.Get("/goals/{id}/board", h.GetGoalBoardHandler)

		// Balance
		r.Get("/balance", h.GetBalanceHandler)
	})

	return r
}
