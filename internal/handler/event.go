package handler

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/store"
)

const maxEventLimit = 1000

// EventHandler serves the committed event log.
type EventHandler struct {
	events *store.EventStore
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events *store.EventStore) *EventHandler {
	return &EventHandler{events: events}
}

// eventResponse is the JSON representation of an event. Fields that do
// not apply to the event's kind are omitted.
type eventResponse struct {
	Seq        uint64  `json:"seq"`
	TxID       string  `json:"tx_id"`
	Kind       string  `json:"kind"`
	At         string  `json:"at"`
	OrderID    *uint64 `json:"order_id,omitempty"`
	OrderKind  string  `json:"order_kind,omitempty"`
	Owner      string  `json:"owner,omitempty"`
	Caller     string  `json:"caller,omitempty"`
	Keeper     string  `json:"keeper,omitempty"`
	Module     string  `json:"module,omitempty"`
	Token      string  `json:"token,omitempty"`
	Target     string  `json:"target,omitempty"`
	Amount     string  `json:"amount,omitempty"`
	AmountOut  string  `json:"amount_out,omitempty"`
	Value      string  `json:"value,omitempty"`
	Payload    string  `json:"payload,omitempty"`
	Authorized *bool   `json:"authorized,omitempty"`
}

// List handles GET /events?kind=&order_id=&since=&limit=.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EventFilter{Kind: domain.EventKind(q.Get("kind")), Limit: maxEventLimit}

	if s := q.Get("order_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a non-negative integer")
			return
		}
		f.OrderID = &id
	}
	if s := q.Get("since"); s != "" {
		since, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "since must be a non-negative integer")
			return
		}
		f.Since = since
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxEventLimit {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be an integer between 1 and 1000")
			return
		}
		f.Limit = limit
	}

	events := h.events.List(f)
	resp := make([]eventResponse, len(events))
	for i, ev := range events {
		resp[i] = buildEventResponse(ev)
	}
	WriteJSON(w, http.StatusOK, map[string][]eventResponse{"events": resp})
}

func buildEventResponse(ev domain.Event) eventResponse {
	resp := eventResponse{
		Seq:       ev.Seq,
		TxID:      ev.TxID,
		Kind:      string(ev.Kind),
		At:        ev.At.UTC().Format(timeFormat),
		OrderID:   ev.OrderID,
		OrderKind: string(ev.OrderKind),
		Owner:     hexOrEmpty(ev.Owner),
		Caller:    hexOrEmpty(ev.Caller),
		Keeper:    hexOrEmpty(ev.Keeper),
		Module:    hexOrEmpty(ev.Module),
		Token:     hexOrEmpty(ev.Token),
		Target:    hexOrEmpty(ev.Target),
	}
	if ev.Amount != nil {
		resp.Amount = ev.Amount.String()
	}
	if ev.AmountOut != nil {
		resp.AmountOut = ev.AmountOut.String()
	}
	if ev.Value != nil {
		resp.Value = ev.Value.String()
	}
	if len(ev.Payload) > 0 {
		resp.Payload = hexutil.Encode(ev.Payload)
	}
	switch ev.Kind {
	case domain.EventModuleSet, domain.EventKeeperSet:
		a := ev.Authorized
		resp.Authorized = &a
	}
	return resp
}

func hexOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
