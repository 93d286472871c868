package types

import (
	"errors"
	"fmt"
	"time"
)

// Config carries the session policy fixed at creation time. A session targets
// exactly one network: mainnet when IsProduction is set, the configured
// testnet otherwise.
type Config struct {
	// Testnet names the test network used when IsProduction is false.
	Testnet Network `json:"testnet,omitempty" validate:"required_unless=IsProduction true,omitempty,oneof=ropsten kovan rinkeby"`

	// IsProduction pins the session to mainnet. Testnet is ignored when set.
	IsProduction bool `json:"isProduction"`

	// DefaultTimeout bounds each wallet round trip. Zero means 30s.
	DefaultTimeout time.Duration `json:"defaultTimeout,omitempty"`

	// LogLevel enables the built-in zap logger when non-empty
	// (debug, info, warn, error).
	LogLevel string `json:"logLevel,omitempty"`
}

// ExpectedNetwork returns the single network the session accepts.
func (c Config) ExpectedNetwork() Network {
	if c.IsProduction {
		return NetworkMainnet
	}
	return c.Testnet
}

// TransactionRequest mirrors the parameter object accepted by
// eth_sendTransaction. Data carries the hex-encoded call payload; Value is a
// hex quantity and is omitted for plain token calls.
type TransactionRequest struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

// PendingTx is the handle the wallet returns once it accepts a submission.
// It does not mean the transaction was mined.
type PendingTx struct {
	Hash string `json:"hash"`
}

// Account is the address/network pair resolved by a successful connect.
type Account struct {
	Address string  `json:"address"`
	Network Network `json:"network"`
}

// SessionError is the structured rejection returned by session operations.
// Message is tagged errorMsg so UI code can render it directly.
type SessionError struct {
	Code    string      `json:"code"`
	Message string      `json:"errorMsg"`
	Data    interface{} `json:"data,omitempty"`
}

func (e SessionError) Error() string {
	return e.Message
}

// Session error codes
const (
	ErrWalletNotInjected    = "WALLET_NOT_INJECTED"
	ErrNotAuthorized        = "NOT_AUTHORIZED"
	ErrWrongNetwork         = "WRONG_NETWORK"
	ErrMethodNotFound       = "METHOD_NOT_FOUND"
	ErrInvalidABI           = "INVALID_ABI"
	ErrEncodingError        = "ENCODING_ERROR"
	ErrInvalidAmount        = "INVALID_AMOUNT"
	ErrSessionTerminated    = "SESSION_TERMINATED"
	ErrConfigError          = "CONFIG_ERROR"
	ErrAllowanceCheckFailed = "ALLOWANCE_CHECK_FAILED"
)

// NewWalletNotInjectedError reports that no wallet provider is available.
func NewWalletNotInjectedError(expected Network) *SessionError {
	return &SessionError{
		Code:    ErrWalletNotInjected,
		Message: fmt.Sprintf("no wallet provider is available; install a wallet and connect it to %s", expected),
		Data:    map[string]interface{}{"expectedNetwork": expected.String()},
	}
}

// NewWrongNetworkError reports a chain mismatch. The message is the
// instruction UIs display verbatim.
func NewWrongNetworkError(expected Network) *SessionError {
	return &SessionError{
		Code:    ErrWrongNetwork,
		Message: fmt.Sprintf("switch to %s in your wallet", expected),
		Data:    map[string]interface{}{"expectedNetwork": expected.String()},
	}
}

// NewNotAuthorizedError reports a denied or failed account request.
func NewNotAuthorizedError(cause error) *SessionError {
	msg := "wallet access was not authorized"
	if cause != nil {
		msg = fmt.Sprintf("wallet access was not authorized: %v", cause)
	}
	return &SessionError{Code: ErrNotAuthorized, Message: msg}
}

// NewSessionTerminatedError reports that the session was invalidated while a
// call was outstanding.
func NewSessionTerminatedError(reason string) *SessionError {
	return &SessionError{
		Code:    ErrSessionTerminated,
		Message: "session terminated: " + reason,
	}
}

// CodeOf extracts the session error code from err, or "" when err carries
// none. Wallet-level failures pass through sessions untyped, so "" is common.
func CodeOf(err error) string {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
