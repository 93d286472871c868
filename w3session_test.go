package w3session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/w3session/contract"
	"github.com/vitwit/w3session/provider"
	"github.com/vitwit/w3session/reconcile"
	"github.com/vitwit/w3session/types"
)

const (
	testToken   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	testHolder  = "0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1"
	testSpender = "0x384Aa214be0B279cbf211e9b2C992d8633F77848"
)

// fakeProvider implements provider.Provider in memory. Read calls are routed
// by selector, submissions are recorded, and tests push change notifications
// through the events channel.
type fakeProvider struct {
	mu            sync.Mutex
	chain         string
	accounts      []string
	reads         map[string]string
	sendHash      string
	sendErr       error
	blockSend     bool
	blockAccounts bool
	sent          []*types.TransactionRequest
	methods       []string
	closed        bool

	sendStarted     chan struct{}
	accountsStarted chan struct{}
	events          chan provider.Event
}

func newFakeProvider(chain string, accounts ...string) *fakeProvider {
	return &fakeProvider{
		chain:           chain,
		accounts:        accounts,
		reads:           map[string]string{},
		sendHash:        "0x9f2c7ac4a0ee8f15325e4276fb36c13d8d9e96e5b96b9e96bdbb5037a83b5d0a",
		sendStarted:     make(chan struct{}, 1),
		accountsStarted: make(chan struct{}, 1),
		events:          make(chan provider.Event, 8),
	}
}

func (f *fakeProvider) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()

	switch method {
	case provider.MethodChainID:
		f.mu.Lock()
		defer f.mu.Unlock()
		*(result.(*string)) = f.chain
		return nil

	case provider.MethodAccounts, provider.MethodRequestAccounts:
		f.mu.Lock()
		blocked := f.blockAccounts
		accounts := append([]string(nil), f.accounts...)
		f.mu.Unlock()

		if blocked {
			select {
			case f.accountsStarted <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		}
		*(result.(*[]string)) = accounts
		return nil

	case provider.MethodSendTransaction:
		f.mu.Lock()
		f.sent = append(f.sent, params[0].(*types.TransactionRequest))
		blocked := f.blockSend
		sendErr := f.sendErr
		hash := f.sendHash
		f.mu.Unlock()

		if blocked {
			select {
			case f.sendStarted <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		}
		if sendErr != nil {
			return sendErr
		}
		*(result.(*string)) = hash
		return nil

	case provider.MethodCall:
		msg := params[0].(contract.CallMsg)
		f.mu.Lock()
		out, ok := f.reads[msg.Data[:10]]
		f.mu.Unlock()
		if !ok {
			return fmt.Errorf("no response for selector %s", msg.Data[:10])
		}
		*(result.(*string)) = out
		return nil
	}
	return fmt.Errorf("unexpected method %s", method)
}

func (f *fakeProvider) ChainID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chain
}

func (f *fakeProvider) Events() <-chan provider.Event { return f.events }

func (f *fakeProvider) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeProvider) setChain(id string) {
	f.mu.Lock()
	f.chain = id
	f.mu.Unlock()
}

func (f *fakeProvider) emitChainChanged(id string) {
	f.events <- provider.Event{Type: provider.EventChainChanged, ChainID: id}
}

func (f *fakeProvider) emitAccountsChanged(accounts ...string) {
	f.events <- provider.Event{Type: provider.EventAccountsChanged, Accounts: accounts}
}

func (f *fakeProvider) sentRequests() []*types.TransactionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.TransactionRequest(nil), f.sent...)
}

func (f *fakeProvider) countOf(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func selectorOf(t *testing.T, method string) string {
	t.Helper()
	m, err := contract.ERC20ABI().Method(method)
	require.NoError(t, err)
	return hexutil.Encode(m.ID)
}

func uint256Hex(n *big.Int) string {
	return hexutil.Encode(common.LeftPadBytes(n.Bytes(), 32))
}

func newTestSession(t *testing.T, f *fakeProvider, store provider.ChainStore) *Session {
	t.Helper()
	var prov provider.Provider
	if f != nil {
		prov = f
	}
	s, err := New(&types.Config{
		Testnet:        types.NetworkRopsten,
		DefaultTimeout: 5 * time.Second,
	}, prov, store)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitReason(t *testing.T, ch <-chan InvalidationReason) InvalidationReason {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for invalidation callback")
		return ""
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(&types.Config{Testnet: "goerli"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigError, types.CodeOf(err))

	_, err = New(nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigError, types.CodeOf(err))
}

func TestConnectResolvesAddress(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder, "0x000000000000000000000000000000000000dEaD")
	s := newTestSession(t, f, nil)

	account, err := s.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testHolder, account.Address)
	assert.Equal(t, types.NetworkRopsten, account.Network)
	assert.Equal(t, testHolder, s.Address())
	assert.Equal(t, reconcile.StateConnected, s.State())
}

func TestConnectNilProvider(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, nil, nil)

	_, err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrWalletNotInjected, types.CodeOf(err))
	assert.Equal(t, reconcile.StateNotInjected, s.State())
}

func TestSubmitForwardsRequestVerbatim(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	s := newTestSession(t, f, nil)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	token := contract.ERC20Token(testToken, 6)
	req, err := s.BuildCall(context.Background(), token, "transfer", []interface{}{testSpender, "2500000"}, "")
	require.NoError(t, err)
	assert.Equal(t, testHolder, req.From)
	snapshot := *req

	tx, err := s.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, f.sendHash, tx.Hash)

	sent := f.sentRequests()
	require.Len(t, sent, 1)
	assert.Same(t, req, sent[0], "the built request must reach the wallet untouched")
	assert.Equal(t, snapshot, *sent[0])
}

func TestSubmitWalletErrorPassthrough(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	f.sendErr = errors.New("user rejected the request")
	s := newTestSession(t, f, nil)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), &types.TransactionRequest{From: testHolder, To: testToken, Data: "0x"})
	require.Error(t, err)
	assert.Equal(t, "user rejected the request", err.Error())
	assert.Equal(t, "", types.CodeOf(err), "wallet rejections carry no session code")
}

func TestSubmitWithoutProvider(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, nil, nil)

	_, err := s.Submit(context.Background(), &types.TransactionRequest{To: testToken, Data: "0x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrWalletNotInjected, types.CodeOf(err))
}

func TestSubmitNilRequest(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	s := newTestSession(t, f, nil)

	_, err := s.Submit(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrEncodingError, types.CodeOf(err))
}

func TestBuildBeforeConnect(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	s := newTestSession(t, f, nil)
	token := contract.ERC20Token(testToken, 18)

	_, err := s.BuildApproval(context.Background(), token, testSpender)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotAuthorized, types.CodeOf(err))

	_, err = s.BuildCall(context.Background(), token, "transfer", []interface{}{testSpender, "1"}, "")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotAuthorized, types.CodeOf(err))

	assert.False(t, s.HasAllowance(context.Background(), token, testSpender))
	assert.Zero(t, f.countOf(provider.MethodCall), "an unconnected session must not issue reads")
}

func TestApproveFlow(t *testing.T) {
	t.Parallel()

	supply, ok := new(big.Int).SetString("1000000000000000000000", 10)
	require.True(t, ok)

	f := newFakeProvider("0x3", testHolder)
	f.reads[selectorOf(t, "totalSupply")] = uint256Hex(supply)
	s := newTestSession(t, f, nil)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	token := contract.ERC20Token(testToken, 18)
	tx, err := s.Approve(context.Background(), token, testSpender)
	require.NoError(t, err)
	assert.Equal(t, f.sendHash, tx.Hash)

	sent := f.sentRequests()
	require.Len(t, sent, 1)
	assert.Equal(t, testHolder, sent[0].From)
	assert.Equal(t, testToken, sent[0].To)
	assert.True(t, strings.HasPrefix(sent[0].Data, selectorOf(t, "approve")))

	data, err := hexutil.Decode(sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes(supply.Bytes(), 32), data[36:68])
}

func TestHasAllowanceThroughSession(t *testing.T) {
	t.Parallel()

	supply := big.NewInt(1_000_000)

	f := newFakeProvider("0x3", testHolder)
	f.reads[selectorOf(t, "totalSupply")] = uint256Hex(supply)
	f.reads[selectorOf(t, "allowance")] = uint256Hex(big.NewInt(1_000_001))
	s := newTestSession(t, f, nil)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	token := contract.ERC20Token(testToken, 18)
	assert.True(t, s.HasAllowance(context.Background(), token, testSpender))

	f.mu.Lock()
	f.reads[selectorOf(t, "allowance")] = uint256Hex(supply)
	f.mu.Unlock()
	assert.False(t, s.HasAllowance(context.Background(), token, testSpender))
}

func TestInvalidationOnChainChanged(t *testing.T) {
	t.Parallel()

	store := provider.NewMemoryChainStore()
	f := newFakeProvider("0x3", testHolder)
	s := newTestSession(t, f, store)

	reasons := make(chan InvalidationReason, 8)
	s.OnInvalidate(func(r InvalidationReason) { reasons <- r })

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	// The wallet switches away from the expected network.
	f.setChain("0x1")
	f.emitChainChanged("0x1")
	assert.Equal(t, ReasonChainChanged, waitReason(t, reasons))
	assert.Equal(t, "", s.Address())
	assert.Equal(t, reconcile.StateUnconnected, s.State())

	stored, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "0x1", stored, "the announced chain id must be persisted")

	// The user switches the wallet back. Seed the persisted id the wallet's
	// own re-announcement would have recorded, then reconnect.
	f.setChain("0x3")
	require.NoError(t, store.Put("0x3"))

	_, err = s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testHolder, s.Address())

	// Re-announcements of the persisted chain, in any hex spelling, must not
	// invalidate the reconnected session. The accounts notification after them
	// is the first one allowed through.
	f.emitChainChanged("0x3")
	f.emitChainChanged("0x03")
	f.emitAccountsChanged(testHolder)
	assert.Equal(t, ReasonAccountsChanged, waitReason(t, reasons))

	select {
	case r := <-reasons:
		t.Fatalf("unexpected extra invalidation %q", r)
	default:
	}
}

func TestInvalidationOnAccountsChanged(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	s := newTestSession(t, f, nil)

	reasons := make(chan InvalidationReason, 8)
	s.OnInvalidate(func(r InvalidationReason) { reasons <- r })

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	// Even a notification naming the already-resolved account invalidates.
	f.emitAccountsChanged(testHolder)
	assert.Equal(t, ReasonAccountsChanged, waitReason(t, reasons))
	assert.Equal(t, "", s.Address())

	_, err = s.Connect(context.Background())
	require.NoError(t, err)

	f.emitAccountsChanged(testHolder)
	assert.Equal(t, ReasonAccountsChanged, waitReason(t, reasons))
}

func TestInFlightCallTerminated(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	f.blockSend = true
	s := newTestSession(t, f, nil)

	reasons := make(chan InvalidationReason, 1)
	s.OnInvalidate(func(r InvalidationReason) { reasons <- r })

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), &types.TransactionRequest{From: testHolder, To: testToken, Data: "0x"})
		errCh <- err
	}()

	select {
	case <-f.sendStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("submission never reached the provider")
	}

	f.emitAccountsChanged(testHolder)
	assert.Equal(t, ReasonAccountsChanged, waitReason(t, reasons))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, types.ErrSessionTerminated, types.CodeOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight submission was not cancelled")
	}
}

// An invalidation that lands while Connect is suspended mid-handshake must
// terminate that Connect rather than let it resurrect the session with a
// verdict about a wallet state that no longer holds.
func TestConnectTerminatedByMidFlightChange(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	f.blockAccounts = true
	s := newTestSession(t, f, nil)

	reasons := make(chan InvalidationReason, 1)
	s.OnInvalidate(func(r InvalidationReason) { reasons <- r })

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		errCh <- err
	}()

	select {
	case <-f.accountsStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("connect never requested accounts")
	}

	// The wallet switches networks while the account request hangs.
	f.setChain("0x1")
	f.emitChainChanged("0x1")
	assert.Equal(t, ReasonChainChanged, waitReason(t, reasons))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, types.ErrSessionTerminated, types.CodeOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight connect was not cancelled")
	}

	assert.Equal(t, "", s.Address(), "a terminated connect must not resolve an address")

	_, err := s.BuildApproval(context.Background(), contract.ERC20Token(testToken, 18), testSpender)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotAuthorized, types.CodeOf(err))

	// Once the wallet is back on the expected network a fresh Connect works.
	f.mu.Lock()
	f.blockAccounts = false
	f.mu.Unlock()
	f.setChain("0x3")

	_, err = s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testHolder, s.Address())
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFakeProvider("0x3", testHolder)
	s := newTestSession(t, f, nil)

	s.Close()
	s.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.closed)
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	info := GetVersion()
	assert.Equal(t, Version, info["library_version"])
	assert.Len(t, info["supported_networks"], 4)
}
