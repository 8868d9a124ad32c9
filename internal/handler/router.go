package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/leejoonhun/sentinel-vault/internal/engine"
	"github.com/leejoonhun/sentinel-vault/internal/keeper"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/store"
	"github.com/leejoonhun/sentinel-vault/internal/token"
	"github.com/leejoonhun/sentinel-vault/internal/vault"
)

// Deps holds the components served over HTTP.
type Deps struct {
	Vault   *vault.Vault
	Orders  *engine.Module
	Tokens  *token.Registry
	Events  *store.EventStore
	Router  keeper.Router // optional; fills in execution targets
	Metrics http.Handler  // optional; served at /metrics

	// Admin and Feed enable the simulated-ledger controls (minting and
	// price reports). Both are optional.
	Admin common.Address
	Feed  *oracle.Feed
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(deps Deps, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	vaultH := NewVaultHandler(deps.Vault, deps.Tokens)
	orderH := NewOrderHandler(deps.Orders, deps.Tokens, deps.Router)
	eventH := NewEventHandler(deps.Events)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Vault routes.
	r.Post("/vault/deposits", vaultH.Deposit)
	r.Post("/vault/deposits/withdraw", vaultH.WithdrawDeposit)
	r.Post("/vault/withdrawals", vaultH.Withdraw)
	r.Post("/vault/modules", vaultH.SetModule)
	r.Post("/vault/pause", vaultH.Pause)
	r.Post("/vault/unpause", vaultH.Unpause)
	r.Post("/vault/invoke", vaultH.Invoke)
	r.Get("/vault/balances/{token}", vaultH.Balance)

	// Order routes.
	r.Post("/orders", orderH.Create)
	r.Get("/orders", orderH.List)
	r.Post("/orders/execute-batch", orderH.ExecuteBatch)
	r.Get("/orders/{order_id}", orderH.Get)
	r.Post("/orders/{order_id}/cancel", orderH.Cancel)
	r.Post("/orders/{order_id}/execute", orderH.Execute)
	r.Post("/orders/{order_id}/expire", orderH.Expire)
	r.Post("/keepers", orderH.SetKeeper)

	// Event log.
	r.Get("/events", eventH.List)

	if deps.Feed != nil {
		ledgerH := NewLedgerHandler(deps.Admin, deps.Tokens, deps.Feed)
		r.Post("/tokens/{token}/mint", ledgerH.Mint)
		r.Post("/oracle/prices", ledgerH.SetPrice)
		r.Get("/oracle/prices/{asset}", ledgerH.GetPrice)
	}

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, caller, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("caller", r.Header.Get(CallerHeader)),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
