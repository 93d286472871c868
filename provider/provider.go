// Package provider defines the wallet transport a session drives and the
// persisted chain-id store, plus an implementation of each.
package provider

import "context"

// RPC methods the session issues.
const (
	MethodChainID         = "eth_chainId"
	MethodAccounts        = "eth_accounts"
	MethodRequestAccounts = "eth_requestAccounts"
	MethodSendTransaction = "eth_sendTransaction"
	MethodCall            = "eth_call"
)

// EventType identifies a wallet-originated change notification.
type EventType string

const (
	EventChainChanged    EventType = "chainChanged"
	EventAccountsChanged EventType = "accountsChanged"
)

// Event is one wallet-originated change notification.
type Event struct {
	Type     EventType
	ChainID  string   // set for EventChainChanged
	Accounts []string // set for EventAccountsChanged
}

// Provider is a JSON-RPC-capable wallet transport. ChainID returns the
// provider's own cached chain id and may be "" until the wallet has reported
// one; Events delivers change notifications until the provider closes.
type Provider interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
	ChainID() string
	Events() <-chan Event
	Close()
}

// ChainStore persists the single last-known chain id between sessions.
type ChainStore interface {
	Get() (string, error)
	Put(id string) error
}
