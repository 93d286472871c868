package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vitwit/w3session/types"
)

// erc20JSON is the canonical ERC-20 descriptor list plus the read helpers the
// session needs.
const erc20JSON = `[
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256"}]},
	{"type":"event","name":"Approval","inputs":[{"name":"owner","type":"address","indexed":true},{"name":"spender","type":"address","indexed":true},{"name":"value","type":"uint256"}]}
]`

var erc20ABI = MustParseABI(erc20JSON)

// ERC20ABI returns the canonical ERC-20 descriptor set.
func ERC20ABI() ABI {
	return erc20ABI
}

// ERC20 is a typed read binding for a deployed ERC-20 token.
type ERC20 struct {
	handle *Handle
}

// NewERC20 binds the canonical ERC-20 ABI to a token address.
func NewERC20(address string, caller Caller) *ERC20 {
	return &ERC20{handle: Bind(address, erc20ABI, caller)}
}

// TotalSupply reads the token's total supply in base units.
func (e *ERC20) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := e.handle.Call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return singleBigInt(out, "totalSupply")
}

// BalanceOf reads a holder's balance in base units.
func (e *ERC20) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	out, err := e.handle.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return singleBigInt(out, "balanceOf")
}

// Allowance reads the remaining allowance owner has granted spender.
func (e *ERC20) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	out, err := e.handle.Call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return singleBigInt(out, "allowance")
}

// Decimals reads the token's decimal precision.
func (e *ERC20) Decimals(ctx context.Context) (uint8, error) {
	out, err := e.handle.Call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, badReturn("decimals")
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, badReturn("decimals")
	}
	return d, nil
}

// Symbol reads the token's display symbol.
func (e *ERC20) Symbol(ctx context.Context) (string, error) {
	out, err := e.handle.Call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", badReturn("symbol")
	}
	s, ok := out[0].(string)
	if !ok {
		return "", badReturn("symbol")
	}
	return s, nil
}

func singleBigInt(out []interface{}, method string) (*big.Int, error) {
	if len(out) != 1 {
		return nil, badReturn(method)
	}
	n, ok := out[0].(*big.Int)
	if !ok || n == nil {
		return nil, badReturn(method)
	}
	return n, nil
}

func badReturn(method string) error {
	return &types.SessionError{
		Code:    types.ErrEncodingError,
		Message: fmt.Sprintf("unexpected %s return shape", method),
	}
}
