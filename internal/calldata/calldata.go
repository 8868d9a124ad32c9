// Package calldata encodes and decodes the call payloads exchanged between
// the vault, token ledgers and swap targets. Payloads use the Ethereum ABI
// so that targets see the same bytes an on-chain contract would.
package calldata

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	MethodTransfer  = "transfer"
	MethodBalanceOf = "balanceOf"
	MethodSwap      = "swap"
)

const callABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"swap","stateMutability":"payable",
	 "inputs":[
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"amountIn","type":"uint256"},
		{"name":"minAmountOut","type":"uint256"},
		{"name":"recipient","type":"address"}],
	 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

// ErrUnknownMethod is returned when a payload's selector matches no method.
var ErrUnknownMethod = errors.New("unknown method selector")

var parsed = mustParse(callABI)

func mustParse(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("calldata: parse abi: %v", err))
	}
	return a
}

// Swap holds the decoded arguments of a swap call.
type Swap struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
}

// Transfer encodes transfer(to, amount).
func Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	return parsed.Pack(MethodTransfer, to, amount)
}

// BalanceOf encodes balanceOf(account).
func BalanceOf(account common.Address) ([]byte, error) {
	return parsed.Pack(MethodBalanceOf, account)
}

// EncodeSwap encodes swap(tokenIn, tokenOut, amountIn, minAmountOut, recipient).
func EncodeSwap(s Swap) ([]byte, error) {
	return parsed.Pack(MethodSwap, s.TokenIn, s.TokenOut, s.AmountIn, s.MinAmountOut, s.Recipient)
}

// Method returns the name of the method selected by data and its decoded
// arguments.
func Method(data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("%w: payload of %d bytes", ErrUnknownMethod, len(data))
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %x", ErrUnknownMethod, data[:4])
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", m.Name, err)
	}
	return m.Name, args, nil
}

// DecodeTransfer decodes a transfer payload.
func DecodeTransfer(data []byte) (to common.Address, amount *big.Int, err error) {
	args, err := expect(data, MethodTransfer)
	if err != nil {
		return common.Address{}, nil, err
	}
	return args[0].(common.Address), args[1].(*big.Int), nil
}

// DecodeBalanceOf decodes a balanceOf payload.
func DecodeBalanceOf(data []byte) (common.Address, error) {
	args, err := expect(data, MethodBalanceOf)
	if err != nil {
		return common.Address{}, err
	}
	return args[0].(common.Address), nil
}

// DecodeSwap decodes a swap payload.
func DecodeSwap(data []byte) (Swap, error) {
	args, err := expect(data, MethodSwap)
	if err != nil {
		return Swap{}, err
	}
	return Swap{
		TokenIn:      args[0].(common.Address),
		TokenOut:     args[1].(common.Address),
		AmountIn:     args[2].(*big.Int),
		MinAmountOut: args[3].(*big.Int),
		Recipient:    args[4].(common.Address),
	}, nil
}

func expect(data []byte, name string) ([]interface{}, error) {
	got, args, err := Method(data)
	if err != nil {
		return nil, err
	}
	if got != name {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnknownMethod, name, got)
	}
	return args, nil
}

// EncodeUint256 encodes a single uint256 return value.
func EncodeUint256(method string, v *big.Int) ([]byte, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return m.Outputs.Pack(v)
}

// EncodeBool encodes a single bool return value.
func EncodeBool(method string, v bool) ([]byte, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return m.Outputs.Pack(v)
}

// DecodeUint256 decodes a single uint256 return value of method.
func DecodeUint256(method string, data []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return v, nil
}
