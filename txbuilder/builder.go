// Package txbuilder assembles wallet-ready transaction requests: token
// approvals sized to total supply, allowance checks, and generic contract
// calls. Amounts are scaled by token decimals in arbitrary precision.
package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vitwit/w3session/contract"
	"github.com/vitwit/w3session/logger"
	"github.com/vitwit/w3session/types"
	"github.com/vitwit/w3session/utils"
)

// Builder composes transaction requests. It issues only the read calls an
// operation needs and never submits anything itself.
type Builder struct {
	caller  contract.Caller
	log     logger.Logger
	timeout time.Duration
}

// NewBuilder creates a transaction builder reading through the given caller.
func NewBuilder(caller contract.Caller, log logger.Logger, timeout time.Duration) *Builder {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Builder{caller: caller, log: log, timeout: timeout}
}

// BuildApproval produces an approve(spender, totalSupply) request for the
// token. The supply read is unscaled to a human amount and re-scaled back, so
// whatever numeric form the read returned is normalized into the canonical
// base-unit integer before encoding.
func (b *Builder) BuildApproval(ctx context.Context, token contract.Token, spender, from string) (*types.TransactionRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	handle := contract.Bind(token.Address, token.ABI, b.caller)

	out, err := handle.Call(ctx, "totalSupply")
	if err != nil {
		return nil, fmt.Errorf("failed to read total supply of %s: %w", token.Address, err)
	}
	supply, err := uint256Output(out)
	if err != nil {
		return nil, err
	}

	human := utils.FormatAmountFromBigInt(supply, token.Decimals)
	amount, err := utils.ParseAmountWithDecimals(human, token.Decimals)
	if err != nil {
		return nil, err
	}

	method, err := token.ABI.Method("approve")
	if err != nil {
		return nil, err
	}
	data, err := contract.EncodeCall(method, spender, amount)
	if err != nil {
		return nil, err
	}

	b.log.Debug("approval built", map[string]any{
		"token":   token.Address,
		"spender": spender,
		"amount":  amount.String(),
	})

	return &types.TransactionRequest{
		From: from,
		To:   token.Address,
		Data: hexutil.Encode(data),
	}, nil
}

// HasAllowance reports whether owner's remaining allowance for spender
// strictly exceeds the token's total supply. The reference amount is the
// token's total supply, not a requested spend. Zero allowances and failed
// reads both come back false; absence and failure are indistinguishable to
// callers.
func (b *Builder) HasAllowance(ctx context.Context, token contract.Token, owner, spender string) bool {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	handle := contract.Bind(token.Address, token.ABI, b.caller)

	out, err := handle.Call(ctx, "allowance", owner, spender)
	if err != nil {
		b.allowanceCheckFailed(token.Address, err)
		return false
	}
	allowance, err := uint256Output(out)
	if err != nil {
		b.allowanceCheckFailed(token.Address, err)
		return false
	}
	if allowance.Sign() == 0 {
		return false
	}

	out, err = handle.Call(ctx, "totalSupply")
	if err != nil {
		b.allowanceCheckFailed(token.Address, err)
		return false
	}
	supply, err := uint256Output(out)
	if err != nil {
		b.allowanceCheckFailed(token.Address, err)
		return false
	}

	return new(big.Int).Sub(allowance, supply).Sign() > 0
}

// BuildCall produces a request invoking an arbitrary method on the token's
// contract, with an optional native-currency value in base units.
func (b *Builder) BuildCall(ctx context.Context, token contract.Token, methodName string, args []interface{}, from, value string) (*types.TransactionRequest, error) {
	method, err := token.ABI.Method(methodName)
	if err != nil {
		return nil, err
	}
	data, err := contract.EncodeCall(method, args...)
	if err != nil {
		return nil, err
	}

	req := &types.TransactionRequest{
		From: from,
		To:   token.Address,
		Data: hexutil.Encode(data),
	}
	if value != "" {
		quantity, err := hexQuantity(value)
		if err != nil {
			return nil, err
		}
		req.Value = quantity
	}

	b.log.Debug("call built", map[string]any{
		"token":  token.Address,
		"method": methodName,
	})

	return req, nil
}

func (b *Builder) allowanceCheckFailed(token string, err error) {
	b.log.Warn("allowance check failed", map[string]any{
		"code":  types.ErrAllowanceCheckFailed,
		"token": token,
		"error": err.Error(),
	})
}

// hexQuantity normalizes a base-unit value (decimal or 0x hex) into the hex
// quantity form eth_sendTransaction expects.
func hexQuantity(value string) (string, error) {
	var n *big.Int
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		parsed, err := hexutil.DecodeBig(value)
		if err != nil {
			return "", &types.SessionError{
				Code:    types.ErrInvalidAmount,
				Message: fmt.Sprintf("invalid value quantity %q: %v", value, err),
			}
		}
		n = parsed
	} else {
		parsed, err := utils.ValidateBigInt(value)
		if err != nil {
			return "", err
		}
		n = parsed
	}
	return hexutil.EncodeBig(n), nil
}

func uint256Output(out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, &types.SessionError{
			Code:    types.ErrEncodingError,
			Message: "unexpected read-call return shape",
		}
	}
	n, ok := out[0].(*big.Int)
	if !ok || n == nil {
		return nil, &types.SessionError{
			Code:    types.ErrEncodingError,
			Message: "read call did not return a uint256",
		}
	}
	return n, nil
}
