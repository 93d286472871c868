package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vitwit/w3session/provider"
	"github.com/vitwit/w3session/types"
)

// Caller issues JSON-RPC requests against the wallet provider. It is the
// subset of the provider surface read calls need.
type Caller interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

// CallMsg is the eth_call parameter object.
type CallMsg struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// Handle binds an ABI to a deployed contract address for read calls.
type Handle struct {
	address string
	abi     ABI
	caller  Caller
}

// Bind produces a read-call binding against the given address.
func Bind(address string, a ABI, caller Caller) *Handle {
	return &Handle{address: address, abi: a, caller: caller}
}

// Address returns the bound contract address.
func (h *Handle) Address() string { return h.address }

// ABI returns the bound descriptor set.
func (h *Handle) ABI() ABI { return h.abi }

// Call invokes a read-only method through eth_call against the latest block
// and returns the decoded outputs.
func (h *Handle) Call(ctx context.Context, name string, args ...interface{}) ([]interface{}, error) {
	method, err := h.abi.Method(name)
	if err != nil {
		return nil, err
	}

	data, err := EncodeCall(method, args...)
	if err != nil {
		return nil, err
	}

	if h.caller == nil {
		return nil, &types.SessionError{
			Code:    types.ErrWalletNotInjected,
			Message: "no provider available for contract reads",
		}
	}

	var raw string
	msg := CallMsg{To: h.address, Data: hexutil.Encode(data)}
	if err := h.caller.Call(ctx, &raw, provider.MethodCall, msg, "latest"); err != nil {
		return nil, fmt.Errorf("eth_call %s.%s: %w", h.address, name, err)
	}

	ret, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s.%s: bad return payload: %v", h.address, name, err)
	}

	out, err := method.Outputs.Unpack(ret)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s.%s: decode: %v", h.address, name, err)
	}
	return out, nil
}
