package handler

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/token"
	"github.com/leejoonhun/sentinel-vault/internal/vault"
)

// VaultHandler handles HTTP requests for vault endpoints.
type VaultHandler struct {
	vault  *vault.Vault
	tokens *token.Registry
}

// NewVaultHandler creates a new VaultHandler.
func NewVaultHandler(v *vault.Vault, tokens *token.Registry) *VaultHandler {
	return &VaultHandler{vault: v, tokens: tokens}
}

// amountRequest is the JSON body of deposit and withdraw requests.
type amountRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

type setModuleRequest struct {
	Module     string `json:"module"`
	Authorized bool   `json:"authorized"`
}

type invokeRequest struct {
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
	Data   string `json:"data"`
}

type invokeResponse struct {
	Target string `json:"target"`
	Result string `json:"result"`
}

// balanceResponse is the JSON response for GET /vault/balances/{token}.
// Deposit is the caller's credit and is present only with X-Caller.
type balanceResponse struct {
	Token   string  `json:"token"`
	Symbol  string  `json:"symbol"`
	Balance string  `json:"balance"`
	Deposit *string `json:"deposit,omitempty"`
}

type depositResponse struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Deposit string `json:"deposit"`
}

// resolveToken accepts a hex address or a registered symbol.
func resolveToken(tokens *token.Registry, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	t, err := tokens.BySymbol(s)
	if err != nil {
		return common.Address{}, &domain.ValidationError{Message: "token " + s + " is not registered", Err: domain.ErrUnknownToken}
	}
	return t.Address(), nil
}

func (h *VaultHandler) parseAmount(req amountRequest) (common.Address, *big.Int, error) {
	tok, err := resolveToken(h.tokens, req.Token)
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return common.Address{}, nil, fieldError(err.Error())
	}
	return tok, amount, nil
}

// Deposit handles POST /vault/deposits.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tok, amount, err := h.parseAmount(req)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := h.vault.Deposit(r.Context(), caller, tok, amount); err != nil {
		mapError(w, err)
		return
	}
	h.writeDeposit(w, r, http.StatusCreated, tok, caller)
}

// WithdrawDeposit handles POST /vault/deposits/withdraw.
func (h *VaultHandler) WithdrawDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tok, amount, err := h.parseAmount(req)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := h.vault.WithdrawDeposit(r.Context(), caller, tok, amount); err != nil {
		mapError(w, err)
		return
	}
	h.writeDeposit(w, r, http.StatusOK, tok, caller)
}

func (h *VaultHandler) writeDeposit(w http.ResponseWriter, r *http.Request, status int, tok, owner common.Address) {
	WriteJSON(w, status, depositResponse{
		Token:   tok.Hex(),
		Owner:   owner.Hex(),
		Deposit: h.vault.DepositOf(r.Context(), tok, owner).String(),
	})
}

// Withdraw handles POST /vault/withdrawals (administrator only).
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tok, amount, err := h.parseAmount(req)
	if err != nil {
		mapError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := h.vault.Withdraw(r.Context(), caller, tok, amount, to); err != nil {
		mapError(w, err)
		return
	}
	h.writeBalance(w, r, tok, nil)
}

// SetModule handles POST /vault/modules.
func (h *VaultHandler) SetModule(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req setModuleRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	module, err := parseAddress("module", req.Module)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := h.vault.SetModule(r.Context(), caller, module, req.Authorized); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, setModuleRequest{Module: module.Hex(), Authorized: req.Authorized})
}

// Pause handles POST /vault/pause.
func (h *VaultHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Unpause handles POST /vault/unpause.
func (h *VaultHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *VaultHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var err error
	if paused {
		err = h.vault.Pause(r.Context(), caller)
	} else {
		err = h.vault.Unpause(r.Context(), caller)
	}
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"paused": h.vault.Paused(r.Context())})
}

// Invoke handles POST /vault/invoke. Only authorized modules may call it.
func (h *VaultHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req invokeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		mapError(w, err)
		return
	}
	data, err := parseData("data", req.Data)
	if err != nil {
		mapError(w, err)
		return
	}
	value := new(big.Int)
	if req.Value != "" {
		if value, err = domain.ParseAmount(req.Value); err != nil {
			mapError(w, fieldError(err.Error()))
			return
		}
	}

	result, err := h.vault.Invoke(r.Context(), caller, target, value, data)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, invokeResponse{Target: target.Hex(), Result: hexutil.Encode(result)})
}

// Balance handles GET /vault/balances/{token}.
func (h *VaultHandler) Balance(w http.ResponseWriter, r *http.Request) {
	tok, err := resolveToken(h.tokens, chi.URLParam(r, "token"))
	if err != nil {
		mapError(w, err)
		return
	}
	var owner *common.Address
	if c := r.Header.Get(CallerHeader); c != "" {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		owner = &caller
	}
	h.writeBalance(w, r, tok, owner)
}

func (h *VaultHandler) writeBalance(w http.ResponseWriter, r *http.Request, tok common.Address, owner *common.Address) {
	bal, err := h.vault.Balance(r.Context(), tok)
	if err != nil {
		mapError(w, err)
		return
	}
	resp := balanceResponse{Token: tok.Hex(), Balance: bal.String()}
	if t, err := h.tokens.Get(tok); err == nil {
		resp.Symbol = t.Symbol()
	}
	if owner != nil {
		d := h.vault.DepositOf(r.Context(), tok, *owner).String()
		resp.Deposit = &d
	}
	WriteJSON(w, http.StatusOK, resp)
}
