package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

// LedgerHandler exposes the administrator controls of the simulated
// ledger: minting token balances and reporting oracle prices.
type LedgerHandler struct {
	admin  common.Address
	tokens *token.Registry
	feed   *oracle.Feed
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(admin common.Address, tokens *token.Registry, feed *oracle.Feed) *LedgerHandler {
	return &LedgerHandler{admin: admin, tokens: tokens, feed: feed}
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type priceRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

type priceResponse struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	UpdatedAt string `json:"updated_at"`
}

func (h *LedgerHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	caller, ok := callerFrom(w, r)
	if !ok {
		return false
	}
	if caller != h.admin {
		mapError(w, &domain.AuthError{Kind: domain.ErrNotAdmin, Caller: caller})
		return false
	}
	return true
}

// Mint handles POST /tokens/{token}/mint.
func (h *LedgerHandler) Mint(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	addr, err := resolveToken(h.tokens, chi.URLParam(r, "token"))
	if err != nil {
		mapError(w, err)
		return
	}
	tok, err := h.tokens.Get(addr)
	if err != nil {
		mapError(w, err)
		return
	}
	var req mintRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		mapError(w, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		mapError(w, fieldError(err.Error()))
		return
	}
	if err := tok.Mint(r.Context(), to, amount); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"token":   tok.Address().Hex(),
		"owner":   to.Hex(),
		"balance": tok.BalanceOf(r.Context(), to).String(),
	})
}

// SetPrice handles POST /oracle/prices.
func (h *LedgerHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req priceRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	asset, err := resolveToken(h.tokens, req.Asset)
	if err != nil {
		mapError(w, err)
		return
	}
	price, err := domain.ParsePrice(req.Price)
	if err != nil {
		mapError(w, fieldError(err.Error()))
		return
	}
	if err := h.feed.Set(asset, price); err != nil {
		mapError(w, err)
		return
	}
	h.writePrice(w, asset)
}

// GetPrice handles GET /oracle/prices/{asset}.
func (h *LedgerHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := resolveToken(h.tokens, chi.URLParam(r, "asset"))
	if err != nil {
		mapError(w, err)
		return
	}
	h.writePrice(w, asset)
}

func (h *LedgerHandler) writePrice(w http.ResponseWriter, asset common.Address) {
	q, ok := h.feed.Quote(asset)
	if !ok {
		mapError(w, domain.ErrPriceUnavailable)
		return
	}
	WriteJSON(w, http.StatusOK, priceResponse{
		Asset:     asset.Hex(),
		Price:     domain.FormatPrice(q.Price),
		UpdatedAt: q.UpdatedAt.UTC().Format(timeFormat),
	})
}
