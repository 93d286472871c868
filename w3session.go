// Package w3session reconciles a wallet provider's network and account state
// against an application's expected network and builds decimal-correct
// token-approval and contract-call transactions for submission through the
// wallet's signing RPC.
package w3session

import (
	"context"
	"sync"
	"time"

	"github.com/vitwit/w3session/contract"
	"github.com/vitwit/w3session/logger"
	"github.com/vitwit/w3session/metrics"
	"github.com/vitwit/w3session/provider"
	"github.com/vitwit/w3session/reconcile"
	"github.com/vitwit/w3session/txbuilder"
	"github.com/vitwit/w3session/types"
	"github.com/vitwit/w3session/utils"
)

// InvalidationReason says which wallet change terminated the session epoch.
type InvalidationReason string

const (
	ReasonChainChanged    InvalidationReason = "chain_changed"
	ReasonAccountsChanged InvalidationReason = "accounts_changed"
)

// Session is the top-level entry point. It holds the resolved address for
// exactly one expected network, builds and submits transactions, and reacts
// to wallet-originated change notifications by invalidating itself.
type Session struct {
	config *types.Config
	prov   provider.Provider
	store  provider.ChainStore

	reconciler *reconcile.Reconciler
	builder    *txbuilder.Builder

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	mu           sync.Mutex
	address      string
	epochCtx     context.Context
	epochCancel  context.CancelFunc
	invalidated  bool
	onInvalidate func(InvalidationReason)

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a session bound to the expected network in config. The provider
// may be nil, in which case every connect fails with WALLET_NOT_INJECTED; a
// nil store falls back to an in-memory one.
func New(config *types.Config, prov provider.Provider, store provider.ChainStore, opts ...Option) (*Session, error) {
	if err := utils.ValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := 30 * time.Second
	if config.DefaultTimeout > 0 {
		timeout = config.DefaultTimeout
	}

	if store == nil {
		store = provider.NewMemoryChainStore()
	}

	s := &Session{
		config:  config,
		prov:    prov,
		store:   store,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: timeout,
		done:    make(chan struct{}),
	}
	if config.LogLevel != "" {
		s.logger = logger.NewZapLogger(config.LogLevel)
	}

	for _, opt := range opts {
		opt(s)
	}

	s.epochCtx, s.epochCancel = context.WithCancel(context.Background())

	s.reconciler = reconcile.NewReconciler(*config, prov, store, logger.Named(s.logger, "reconcile"), s.timeout)
	s.builder = txbuilder.NewBuilder(prov, logger.Named(s.logger, "txbuilder"), s.timeout)

	if prov != nil {
		s.wg.Add(1)
		go s.watchEvents()
	}

	return s, nil
}

// NewWithDefaults creates a session for the ropsten test network with default
// settings.
func NewWithDefaults(prov provider.Provider) (*Session, error) {
	return New(&types.Config{
		Testnet:        types.NetworkRopsten,
		DefaultTimeout: 30 * time.Second,
		LogLevel:       "info",
	}, prov, nil)
}

// Connect drives the reconciliation handshake. On success the session holds
// the resolved address and a fresh epoch; an invalidated session is re-armed
// before the handshake runs. A wallet change that lands while the handshake
// is in flight terminates it like any other outstanding call.
func (s *Session) Connect(ctx context.Context) (*types.Account, error) {
	network := s.config.ExpectedNetwork().String()

	s.rearmEpoch()
	opCtx, cancel, epochCtx := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	account, err := s.reconciler.Connect(opCtx)
	s.metrics.ObserveLatency("connect", time.Since(start), map[string]string{"network": network})
	if err != nil {
		s.metrics.IncCounter("connect_failed", map[string]string{"network": network})
		return nil, s.sessionErr(epochCtx, err)
	}

	// Install the result only if the epoch the handshake ran under is still
	// current; otherwise a wallet change raced the handshake and its outcome
	// describes a wallet state that no longer holds.
	s.mu.Lock()
	if s.invalidated || s.epochCtx != epochCtx {
		s.mu.Unlock()
		s.metrics.IncCounter("connect_failed", map[string]string{"network": network})
		return nil, types.NewSessionTerminatedError("wallet state changed during connect")
	}
	s.address = account.Address
	s.mu.Unlock()

	s.metrics.IncCounter("connect_ok", map[string]string{"network": network})

	return account, nil
}

// rearmEpoch replaces a terminated epoch with a fresh one so the next
// handshake runs under a live context.
func (s *Session) rearmEpoch() {
	s.mu.Lock()
	if s.invalidated || s.epochCtx.Err() != nil {
		s.epochCtx, s.epochCancel = context.WithCancel(context.Background())
		s.invalidated = false
	}
	s.mu.Unlock()
}

// Address returns the resolved wallet address, or "" when the session is not
// connected.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// State exposes the reconciler's handshake state.
func (s *Session) State() reconcile.State {
	return s.reconciler.State()
}

// OnInvalidate registers fn to be called at most once per connected epoch
// when a wallet change invalidates the session. It replaces any previously
// registered callback.
func (s *Session) OnInvalidate(fn func(InvalidationReason)) {
	s.mu.Lock()
	s.onInvalidate = fn
	s.mu.Unlock()
}

// BuildApproval builds a total-supply approval request from the session's
// resolved address.
func (s *Session) BuildApproval(ctx context.Context, token contract.Token, spender string) (*types.TransactionRequest, error) {
	from, err := s.requireAddress()
	if err != nil {
		return nil, err
	}

	opCtx, cancel, epochCtx := s.opContext(ctx)
	defer cancel()

	req, err := s.builder.BuildApproval(opCtx, token, spender, from)
	return req, s.sessionErr(epochCtx, err)
}

// Approve builds and submits a total-supply approval in one step.
func (s *Session) Approve(ctx context.Context, token contract.Token, spender string) (*types.PendingTx, error) {
	request, err := s.BuildApproval(ctx, token, spender)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, request)
}

// HasAllowance reports whether the resolved address has already granted
// spender a sufficient allowance. It never returns an error; failures and an
// unconnected session read as false.
func (s *Session) HasAllowance(ctx context.Context, token contract.Token, spender string) bool {
	s.mu.Lock()
	owner := s.address
	s.mu.Unlock()
	if owner == "" {
		return false
	}

	opCtx, cancel, _ := s.opContext(ctx)
	defer cancel()

	return s.builder.HasAllowance(opCtx, token, owner, spender)
}

// BuildCall builds a generic method invocation from the session's resolved
// address. value is an optional native-currency amount in base units.
func (s *Session) BuildCall(ctx context.Context, token contract.Token, method string, args []interface{}, value string) (*types.TransactionRequest, error) {
	from, err := s.requireAddress()
	if err != nil {
		return nil, err
	}
	return s.builder.BuildCall(ctx, token, method, args, from, value)
}

// CallContract builds and submits a generic method invocation in one step.
func (s *Session) CallContract(ctx context.Context, token contract.Token, method string, args []interface{}, value string) (*types.PendingTx, error) {
	request, err := s.BuildCall(ctx, token, method, args, value)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, request)
}

// Submit forwards a built request verbatim to the wallet's signing RPC and
// returns the wallet's pending-transaction hash. Wallet-level rejections
// surface as-is; nothing is retried or reinterpreted.
func (s *Session) Submit(ctx context.Context, request *types.TransactionRequest) (*types.PendingTx, error) {
	network := s.config.ExpectedNetwork().String()

	if s.prov == nil {
		return nil, types.NewWalletNotInjectedError(s.config.ExpectedNetwork())
	}
	if request == nil {
		return nil, &types.SessionError{
			Code:    types.ErrEncodingError,
			Message: "transaction request is nil",
		}
	}

	opCtx, cancel, epochCtx := s.opContext(ctx)
	defer cancel()
	opCtx, opCancel := context.WithTimeout(opCtx, s.timeout)
	defer opCancel()

	start := time.Now()
	var hash string
	err := s.prov.Call(opCtx, &hash, provider.MethodSendTransaction, request)
	s.metrics.ObserveLatency("submit", time.Since(start), map[string]string{"network": network})
	if err != nil {
		s.metrics.IncCounter("submit_failed", map[string]string{"network": network})
		return nil, s.sessionErr(epochCtx, err)
	}

	s.metrics.IncCounter("submit_ok", map[string]string{"network": network})
	s.logger.Info("transaction submitted", map[string]any{"hash": hash})

	return &types.PendingTx{Hash: hash}, nil
}

// Close stops the event loop and releases the provider.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.prov != nil {
			s.prov.Close()
		}
	})
}

func (s *Session) requireAddress() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address == "" {
		return "", &types.SessionError{
			Code:    types.ErrNotAuthorized,
			Message: "session is not connected; call Connect first",
		}
	}
	return s.address, nil
}

// opContext derives an operation context from the caller's context and the
// current epoch, so an invalidation cancels calls already in flight.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc, context.Context) {
	s.mu.Lock()
	epochCtx := s.epochCtx
	s.mu.Unlock()

	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(epochCtx, cancel)
	return opCtx, func() { stop(); cancel() }, epochCtx
}

// sessionErr rewrites a failure caused by epoch cancellation into the
// terminated-session error outstanding callers are promised.
func (s *Session) sessionErr(epochCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if epochCtx.Err() != nil {
		return types.NewSessionTerminatedError("wallet state changed while the call was in flight")
	}
	return err
}

func (s *Session) watchEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.prov.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev provider.Event) {
	switch ev.Type {
	case provider.EventChainChanged:
		if s.reconciler.HandleChainChanged(ev.ChainID) {
			s.invalidate(ReasonChainChanged)
		}
	case provider.EventAccountsChanged:
		if s.reconciler.HandleAccountsChanged(ev.Accounts) {
			s.invalidate(ReasonAccountsChanged)
		}
	}
}

// invalidate terminates the current epoch: the resolved address is cleared,
// outstanding calls are cancelled into SESSION_TERMINATED, and the registered
// callback fires. At most one notification is delivered per connected epoch;
// Connect re-arms.
func (s *Session) invalidate(reason InvalidationReason) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	s.address = ""
	cancel := s.epochCancel
	callback := s.onInvalidate
	s.mu.Unlock()

	cancel()
	s.reconciler.Reset()

	s.logger.Warn("session invalidated", map[string]any{"reason": string(reason)})
	s.metrics.IncCounter("session_invalidated", map[string]string{
		"network": s.config.ExpectedNetwork().String(),
	})

	if callback != nil {
		callback(reason)
	}
}

// Version information
const Version = "1.0.0"

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version": Version,
		"supported_networks": []string{
			"mainnet", "ropsten", "kovan", "rinkeby",
		},
	}
}
