package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	// Authorization.
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotAdmin           = errors.New("not_admin")
	ErrNotOrderOwner      = errors.New("not_order_owner")
	ErrUnauthorizedModule = errors.New("unauthorized_module")
	ErrNotKeeper          = errors.New("not_keeper")

	// State.
	ErrOrderNotFound = errors.New("order_not_found")
	ErrOrderNotOpen  = errors.New("order_not_open")
	ErrOrderExpired  = errors.New("order_expired")

	// Validation.
	ErrZeroAmount      = errors.New("zero_amount")
	ErrZeroQuantity    = errors.New("zero_quantity")
	ErrZeroAddress     = errors.New("zero_address")
	ErrInvalidDeadline = errors.New("invalid_deadline")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidSlippage = errors.New("invalid_slippage")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrUnknownToken    = errors.New("unknown_token")
	ErrInvalidTarget   = errors.New("invalid_target")

	// Execution.
	ErrConditionNotMet      = errors.New("condition_not_met")
	ErrTriggerNotApplicable = errors.New("trigger_not_applicable")
	ErrPriceUnavailable     = errors.New("price_unavailable")
	ErrCallFailed           = errors.New("call_failed")
	ErrSlippage             = errors.New("slippage_exceeded")
	ErrTransferFailed       = errors.New("transfer_failed")

	// System.
	ErrPaused     = errors.New("paused")
	ErrReentrancy = errors.New("reentrancy")
)

// ValidationError represents a request validation failure. Err, when set,
// names the validation kind so callers can match it with errors.Is.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// AuthError reports a caller lacking the role an operation requires.
// It matches both its Kind and ErrUnauthorized.
type AuthError struct {
	Kind   error
	Caller common.Address
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%v: caller %s", e.Kind, e.Caller.Hex())
}

func (e *AuthError) Unwrap() []error {
	return []error{e.Kind, ErrUnauthorized}
}

// StateError reports an operation attempted on an order whose status does
// not allow it.
type StateError struct {
	OrderID uint64
	Status  OrderStatus
	Err     error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%v: order %d is %s", e.Err, e.OrderID, e.Status)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// ConditionNotMetError reports that an order's trigger predicate does not
// hold at the current oracle price. The keeper retries on a later poll.
type ConditionNotMetError struct {
	OrderID uint64
	Kind    OrderKind
	Current *big.Int
	Target  *big.Int
}

func (e *ConditionNotMetError) Error() string {
	return fmt.Sprintf("%v: order %d (%s) current=%s target=%s",
		ErrConditionNotMet, e.OrderID, e.Kind, FormatPrice(e.Current), FormatPrice(e.Target))
}

func (e *ConditionNotMetError) Unwrap() error {
	return ErrConditionNotMet
}

// Revert is returned by call targets that reject a call. Data carries the
// raw failure payload.
type Revert struct {
	Reason string
	Data   []byte
}

func (e *Revert) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// CallError reports a failed external call made through the vault gateway.
// Payload is the raw failure data returned by the target.
type CallError struct {
	Target  common.Address
	Payload []byte
	Err     error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: target %s", ErrCallFailed, e.Target.Hex())
	}
	return fmt.Sprintf("%v: target %s: %v", ErrCallFailed, e.Target.Hex(), e.Err)
}

func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCallFailed}
	}
	return []error{ErrCallFailed, e.Err}
}

// SlippageError reports a swap whose realized output fell below the
// order's minimum.
type SlippageError struct {
	OrderID   uint64
	AmountOut *big.Int
	MinOut    *big.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("%v: order %d received %s, minimum %s", ErrSlippage, e.OrderID, e.AmountOut, e.MinOut)
}

func (e *SlippageError) Unwrap() error {
	return ErrSlippage
}

// TransferError reports an asset movement that could not be performed.
type TransferError struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
	Reason string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: %s of %s from %s to %s: %s",
		ErrTransferFailed, e.Amount, e.Token.Hex(), e.From.Hex(), e.To.Hex(), e.Reason)
}

func (e *TransferError) Unwrap() error {
	return ErrTransferFailed
}

// IsRetriable reports whether a failed operation may succeed on a later
// attempt without any other state transition.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrConditionNotMet) ||
		errors.Is(err, ErrPriceUnavailable) ||
		errors.Is(err, ErrCallFailed)
}
