package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// timeFormat is the timestamp layout of every response.
const timeFormat = "2006-01-02T15:04:05Z"

// CallerHeader carries the address of the principal making a request.
const CallerHeader = "X-Caller"

var errInvalidBody = errors.New("Request body must be valid JSON with Content-Type: application/json")

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format. Data carries the raw
// failure payload of a failed external call, hex encoded.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return errInvalidBody
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}

	return nil
}

// callerFrom reads the request's principal from the X-Caller header. On
// failure it writes a 401 and returns false.
func callerFrom(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	h := r.Header.Get(CallerHeader)
	if !common.IsHexAddress(h) {
		WriteError(w, http.StatusUnauthorized, "unauthorized", CallerHeader+" header must carry a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(h), true
}

// parseAddress parses a required hex address field.
func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fieldError(field + " must be a hex address")
	}
	return common.HexToAddress(s), nil
}

// parseData decodes 0x-prefixed calldata. Empty input yields no data.
func parseData(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fieldError(field + " must be 0x-prefixed hex")
	}
	return b, nil
}
