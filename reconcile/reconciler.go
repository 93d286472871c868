// Package reconcile decides whether a wallet's active chain matches the
// network the session expects and owns the connect/authorize handshake.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/vitwit/w3session/logger"
	"github.com/vitwit/w3session/provider"
	"github.com/vitwit/w3session/types"
)

// State is the reconciler's position in the connect handshake.
type State string

const (
	StateUnconnected  State = "unconnected"
	StateProbing      State = "probing"
	StateConnected    State = "connected"
	StateMismatched   State = "mismatched"
	StateUnauthorized State = "unauthorized"
	StateNotInjected  State = "not_injected"
)

// Reconciler runs the network and account reconciliation protocol against a
// wallet provider. Connect is re-entrant: every call re-runs the whole check,
// honoring no cache beyond the wallet's own reported chain id.
type Reconciler struct {
	config  types.Config
	prov    provider.Provider
	store   provider.ChainStore
	log     logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	state State
}

// NewReconciler creates a reconciler for the given policy. A nil store falls
// back to an in-memory one.
func NewReconciler(config types.Config, prov provider.Provider, store provider.ChainStore, log logger.Logger, timeout time.Duration) *Reconciler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if store == nil {
		store = provider.NewMemoryChainStore()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reconciler{
		config:  config,
		prov:    prov,
		store:   store,
		log:     log,
		timeout: timeout,
		state:   StateUnconnected,
	}
}

// State returns the current handshake state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset returns the reconciler to its initial state. The session calls it
// when a wallet change invalidates the resolved account.
func (r *Reconciler) Reset() {
	r.setState(StateUnconnected)
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Connect decides whether the wallet is usable for the expected network and
// resolves the active account. Failures come back as coded session errors
// carrying displayable messages.
func (r *Reconciler) Connect(ctx context.Context) (*types.Account, error) {
	expected := r.config.ExpectedNetwork()

	if r.prov == nil {
		r.setState(StateNotInjected)
		r.log.Warn("wallet provider not injected", map[string]any{"expected": expected.String()})
		return nil, types.NewWalletNotInjectedError(expected)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The wallet's own cached chain id is the only cache honored here. When
	// it is absent, probe with an explicit query.
	chainID := r.prov.ChainID()
	if chainID == "" {
		r.setState(StateProbing)
		if err := r.prov.Call(ctx, &chainID, provider.MethodChainID); err != nil {
			r.setState(StateUnauthorized)
			return nil, types.NewNotAuthorizedError(err)
		}
	}

	if !types.EqualChainID(chainID, expected.ChainID()) {
		r.setState(StateMismatched)
		r.log.Warn("wallet on wrong network", map[string]any{
			"expected": expected.String(),
			"chainId":  chainID,
		})
		return nil, types.NewWrongNetworkError(expected)
	}

	r.setState(StateConnected)

	var accounts []string
	if err := r.prov.Call(ctx, &accounts, provider.MethodRequestAccounts); err != nil {
		r.setState(StateUnauthorized)
		return nil, types.NewNotAuthorizedError(err)
	}
	if len(accounts) == 0 {
		r.setState(StateUnauthorized)
		return nil, &types.SessionError{
			Code:    types.ErrNotAuthorized,
			Message: "wallet returned no accounts",
		}
	}

	r.log.Info("wallet connected", map[string]any{
		"address": accounts[0],
		"network": expected.String(),
	})

	return &types.Account{Address: accounts[0], Network: expected}, nil
}

// HandleChainChanged records a wallet-reported chain switch and reports
// whether the session must be invalidated. The persisted id is compared
// first, so a wallet re-announcing the chain it is already on is a no-op. A
// store that cannot be read fails closed into persist-and-invalidate.
func (r *Reconciler) HandleChainChanged(chainID string) bool {
	stored, err := r.store.Get()
	if err == nil && stored != "" && types.EqualChainID(stored, chainID) {
		return false
	}
	if err != nil {
		r.log.Warn("chain store read failed", map[string]any{"error": err.Error()})
	}

	if err := r.store.Put(chainID); err != nil {
		r.log.Error("chain store write failed", map[string]any{"error": err.Error()})
	}
	return true
}

// HandleAccountsChanged reports that the session must be invalidated. Any
// account notification drops the resolved address, including a switch back
// to the same account.
func (r *Reconciler) HandleAccountsChanged(accounts []string) bool {
	r.log.Info("wallet accounts changed", map[string]any{"count": len(accounts)})
	return true
}
