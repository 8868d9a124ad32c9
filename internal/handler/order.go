package handler

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/engine"
	"github.com/leejoonhun/sentinel-vault/internal/keeper"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orders *engine.Module
	tokens *token.Registry
	router keeper.Router
}

// NewOrderHandler creates a new OrderHandler. router may be nil, in which
// case execution requests must name their target and calldata.
func NewOrderHandler(orders *engine.Module, tokens *token.Registry, router keeper.Router) *OrderHandler {
	return &OrderHandler{orders: orders, tokens: tokens, router: router}
}

// createOrderRequest is the JSON request body for POST /orders.
type createOrderRequest struct {
	Kind            string  `json:"kind"`
	Oracle          string  `json:"oracle"`
	InputToken      string  `json:"input_token"`
	OutputToken     string  `json:"output_token"`
	InputAmount     string  `json:"input_amount"`
	TargetPrice     string  `json:"target_price"`
	MinOutputAmount *string `json:"min_output_amount"`
	SlippageBps     uint16  `json:"slippage_bps"`
	Deadline        *string `json:"deadline"`
}

// orderResponse is the JSON representation of an order. Nullable fields
// are always present.
type orderResponse struct {
	OrderID         uint64  `json:"order_id"`
	Owner           string  `json:"owner"`
	Kind            string  `json:"kind"`
	Status          string  `json:"status"`
	Oracle          string  `json:"oracle"`
	TargetPrice     string  `json:"target_price"`
	Deadline        *string `json:"deadline"`
	InputToken      string  `json:"input_token"`
	OutputToken     string  `json:"output_token"`
	InputAmount     string  `json:"input_amount"`
	MinOutputAmount string  `json:"min_output_amount"`
	SlippageBps     uint16  `json:"slippage_bps"`
	CreatedAt       string  `json:"created_at"`
	ExecutedAt      *string `json:"executed_at"`
	CancelledAt     *string `json:"cancelled_at"`
	ExpiredAt       *string `json:"expired_at"`
	Keeper          *string `json:"keeper"`
	AmountOut       *string `json:"amount_out"`
}

// orderListResponse is the JSON response for GET /orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// executeRequest names the swap target and calldata. Both may be omitted
// when the server has a router configured.
type executeRequest struct {
	Target string `json:"target,omitempty"`
	Data   string `json:"data,omitempty"`
}

type receiptResponse struct {
	OrderID    uint64 `json:"order_id"`
	TxID       string `json:"tx_id"`
	Keeper     string `json:"keeper"`
	Price      string `json:"price"`
	AmountIn   string `json:"amount_in"`
	AmountOut  string `json:"amount_out"`
	ExecutedAt string `json:"executed_at"`
}

type batchRequest struct {
	Orders []struct {
		OrderID uint64 `json:"order_id"`
		executeRequest
	} `json:"orders"`
}

type batchResultResponse struct {
	OrderID uint64           `json:"order_id"`
	Status  string           `json:"status"`
	Receipt *receiptResponse `json:"receipt,omitempty"`
	Error   *errorResponse   `json:"error,omitempty"`
}

type setKeeperRequest struct {
	Keeper  string `json:"keeper"`
	Allowed bool   `json:"allowed"`
}

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	create, err := h.buildCreate(req)
	if err != nil {
		mapError(w, err)
		return
	}

	id, err := h.orders.CreateOrder(r.Context(), caller, create)
	if err != nil {
		mapError(w, err)
		return
	}
	o, err := h.orders.Order(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(o))
}

func (h *OrderHandler) buildCreate(req createOrderRequest) (engine.CreateOrderRequest, error) {
	var out engine.CreateOrderRequest
	var err error

	out.Kind = domain.OrderKind(req.Kind)
	out.SlippageBps = req.SlippageBps
	if out.Oracle, err = parseAddress("oracle", req.Oracle); err != nil {
		return out, err
	}
	if out.InputToken, err = resolveToken(h.tokens, req.InputToken); err != nil {
		return out, err
	}
	if out.OutputToken, err = resolveToken(h.tokens, req.OutputToken); err != nil {
		return out, err
	}
	if out.InputAmount, err = domain.ParseAmount(req.InputAmount); err != nil {
		return out, fieldError("input_amount: " + err.Error())
	}
	if out.TargetPrice, err = domain.ParsePrice(req.TargetPrice); err != nil {
		return out, fieldError("target_price: " + err.Error())
	}
	if req.MinOutputAmount != nil {
		if out.MinOutputAmount, err = domain.ParseAmount(*req.MinOutputAmount); err != nil {
			return out, fieldError("min_output_amount: " + err.Error())
		}
	}
	if req.Deadline != nil {
		t, err := time.Parse(time.RFC3339, *req.Deadline)
		if err != nil {
			return out, fieldError("deadline must be a valid RFC 3339 timestamp")
		}
		out.Deadline = t
	}
	return out, nil
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Order(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(o))
}

// List handles GET /orders?owner=&status=&page=&limit=. The owner defaults
// to the caller.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ownerParam := q.Get("owner")
	if ownerParam == "" {
		ownerParam = r.Header.Get(CallerHeader)
	}
	owner, err := parseAddress("owner", ownerParam)
	if err != nil {
		mapError(w, err)
		return
	}

	var statusFilter *domain.OrderStatus
	if s := q.Get("status"); s != "" {
		status := domain.OrderStatus(s)
		if !status.Valid() {
			WriteError(w, http.StatusBadRequest, "validation_error", "status must be one of open, executed, cancelled, expired")
			return
		}
		statusFilter = &status
	}

	page := 1
	if p := q.Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a positive integer")
			return
		}
	}

	limit := defaultPageLimit
	if l := q.Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 || limit > maxPageLimit {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be an integer between 1 and 100")
			return
		}
	}

	orders, total := h.orders.OrdersByOwner(r.Context(), owner, statusFilter, page, limit)
	resp := orderListResponse{Orders: make([]orderResponse, len(orders)), Total: total, Page: page, Limit: limit}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /orders/{order_id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := h.orders.CancelOrder(r.Context(), caller, id); err != nil {
		mapError(w, err)
		return
	}
	h.writeOrder(w, r, id)
}

// Expire handles POST /orders/{order_id}/expire.
func (h *OrderHandler) Expire(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := h.orders.ExpireOrder(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	h.writeOrder(w, r, id)
}

// Execute handles POST /orders/{order_id}/execute.
func (h *OrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	item, err := h.batchItem(r, id, req)
	if err != nil {
		mapError(w, err)
		return
	}

	receipt, err := h.orders.ExecuteOrder(r.Context(), caller, item.OrderID, item.Target, item.Data)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildReceiptResponse(receipt))
}

// ExecuteBatch handles POST /orders/execute-batch. Each order is executed
// independently; the response reports every outcome.
func (h *OrderHandler) ExecuteBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	results := make([]batchResultResponse, len(req.Orders))
	items := make([]engine.BatchItem, 0, len(req.Orders))
	slots := make([]int, 0, len(req.Orders))
	for i, o := range req.Orders {
		item, err := h.batchItem(r, o.OrderID, o.executeRequest)
		if err != nil {
			results[i] = failedResult(o.OrderID, err)
			continue
		}
		items = append(items, item)
		slots = append(slots, i)
	}

	for j, res := range h.orders.ExecuteBatch(r.Context(), caller, items) {
		if res.Err != nil {
			results[slots[j]] = failedResult(res.OrderID, res.Err)
			continue
		}
		receipt := buildReceiptResponse(res.Receipt)
		results[slots[j]] = batchResultResponse{OrderID: res.OrderID, Status: "executed", Receipt: &receipt}
	}
	WriteJSON(w, http.StatusOK, map[string][]batchResultResponse{"results": results})
}

func failedResult(id uint64, err error) batchResultResponse {
	_, body := classify(err)
	return batchResultResponse{OrderID: id, Status: "failed", Error: &body}
}

// batchItem resolves the target and calldata of one execution, asking the
// router when the request leaves them out.
func (h *OrderHandler) batchItem(r *http.Request, id uint64, req executeRequest) (engine.BatchItem, error) {
	item := engine.BatchItem{OrderID: id}
	if req.Target == "" && h.router != nil {
		o, err := h.orders.Order(r.Context(), id)
		if err != nil {
			return item, err
		}
		item.Target, item.Data, err = h.router.Route(r.Context(), o)
		return item, err
	}
	var err error
	if item.Target, err = parseAddress("target", req.Target); err != nil {
		return item, err
	}
	item.Data, err = parseData("data", req.Data)
	return item, err
}

// SetKeeper handles POST /keepers.
func (h *OrderHandler) SetKeeper(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req setKeeperRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	k, err := parseAddress("keeper", req.Keeper)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := h.orders.SetKeeper(r.Context(), caller, k, req.Allowed); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, setKeeperRequest{Keeper: k.Hex(), Allowed: h.orders.IsKeeper(r.Context(), k)})
}

func (h *OrderHandler) writeOrder(w http.ResponseWriter, r *http.Request, id uint64) {
	o, err := h.orders.Order(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(o))
}

func orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

// buildOrderResponse converts an order to its JSON representation.
func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:         o.ID,
		Owner:           o.Owner.Hex(),
		Kind:            string(o.Kind),
		Status:          string(o.Status),
		Oracle:          o.Trigger.Oracle.Hex(),
		TargetPrice:     domain.FormatPrice(o.Trigger.TargetPrice),
		InputToken:      o.Execution.InputToken.Hex(),
		OutputToken:     o.Execution.OutputToken.Hex(),
		InputAmount:     o.Execution.InputAmount.String(),
		MinOutputAmount: amountString(o.Execution.MinOutputAmount),
		SlippageBps:     o.Execution.SlippageBps,
		CreatedAt:       o.CreatedAt.UTC().Format(timeFormat),
		Deadline:        optionalTime(o.Trigger.Deadline),
		ExecutedAt:      timePtr(o.ExecutedAt),
		CancelledAt:     timePtr(o.CancelledAt),
		ExpiredAt:       timePtr(o.ExpiredAt),
	}
	if o.Keeper != (common.Address{}) {
		k := o.Keeper.Hex()
		resp.Keeper = &k
	}
	if o.AmountOut != nil {
		a := o.AmountOut.String()
		resp.AmountOut = &a
	}
	return resp
}

func buildReceiptResponse(r *engine.Receipt) receiptResponse {
	return receiptResponse{
		OrderID:    r.OrderID,
		TxID:       r.TxID,
		Keeper:     r.Keeper.Hex(),
		Price:      domain.FormatPrice(r.Price),
		AmountIn:   r.AmountIn.String(),
		AmountOut:  r.AmountOut.String(),
		ExecutedAt: r.ExecutedAt.UTC().Format(timeFormat),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(timeFormat)
	return &s
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return optionalTime(*t)
}
