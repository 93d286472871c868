package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/w3session/logger"
	"github.com/vitwit/w3session/types"
)

var _ Provider = (*RPCProvider)(nil)

const pollTimeout = 10 * time.Second

// RPCProvider drives a wallet-style JSON-RPC endpoint over HTTP, WebSocket or
// IPC. It caches the last chain id and account list the endpoint reported,
// and can poll for changes, standing in for the push notifications a browser
// wallet delivers.
type RPCProvider struct {
	client *rpc.Client
	log    logger.Logger

	mu       sync.RWMutex
	chainID  string
	accounts []string

	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	watchOnce sync.Once
	closeOnce sync.Once
}

// Dial connects to a wallet RPC endpoint.
func Dial(ctx context.Context, rawurl string, log logger.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet RPC: %w", err)
	}
	return NewRPCProvider(client, log), nil
}

// NewRPCProvider wraps an already-dialled RPC client.
func NewRPCProvider(client *rpc.Client, log logger.Logger) *RPCProvider {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &RPCProvider{
		client: client,
		log:    log,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Call forwards a JSON-RPC request. Chain-id and account responses refresh
// the provider's cache on the way through.
func (p *RPCProvider) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if err := p.client.CallContext(ctx, result, method, params...); err != nil {
		return err
	}

	switch method {
	case MethodChainID:
		if id, ok := result.(*string); ok && *id != "" {
			p.mu.Lock()
			p.chainID = *id
			p.mu.Unlock()
		}
	case MethodAccounts, MethodRequestAccounts:
		if accounts, ok := result.(*[]string); ok {
			p.mu.Lock()
			p.accounts = *accounts
			p.mu.Unlock()
		}
	}
	return nil
}

// ChainID returns the last chain id the endpoint reported, or "" before the
// first eth_chainId round trip.
func (p *RPCProvider) ChainID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chainID
}

// Events returns the change-notification stream. The channel closes when the
// provider closes.
func (p *RPCProvider) Events() <-chan Event {
	return p.events
}

// Watch starts polling the endpoint for chain or account changes, emitting an
// Event whenever a poll disagrees with the cache. Only the first call starts
// a poller.
func (p *RPCProvider) Watch(interval time.Duration) {
	p.watchOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Second
		}
		p.wg.Add(1)
		go p.watch(interval)
	})
}

func (p *RPCProvider) watch(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll refreshes the chain id and account list. The first successful read of
// each is discovery and emits nothing; only a later disagreement counts as a
// change.
func (p *RPCProvider) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	var chainID string
	if err := p.client.CallContext(ctx, &chainID, MethodChainID); err != nil {
		p.log.Warn("chain id poll failed", map[string]any{"error": err.Error()})
	} else if chainID != "" {
		p.mu.Lock()
		prev := p.chainID
		p.chainID = chainID
		p.mu.Unlock()

		if prev != "" && !types.EqualChainID(prev, chainID) {
			p.emit(Event{Type: EventChainChanged, ChainID: chainID})
		}
	}

	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, MethodAccounts); err != nil {
		p.log.Warn("accounts poll failed", map[string]any{"error": err.Error()})
	} else {
		p.mu.Lock()
		prev := p.accounts
		p.accounts = accounts
		p.mu.Unlock()

		if prev != nil && !equalAccounts(prev, accounts) {
			p.emit(Event{Type: EventAccountsChanged, Accounts: accounts})
		}
	}
}

func (p *RPCProvider) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

// Close stops the poller, closes the underlying client and then the event
// channel.
func (p *RPCProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.client.Close()
		close(p.events)
	})
}

func equalAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
