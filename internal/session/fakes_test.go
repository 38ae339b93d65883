package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/provider"
	"github.com/yolodolo42/jpycli/internal/token"
	"go.uber.org/zap/zaptest"
)

var (
	alice     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bob       = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	carol     = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	fixedTime = time.UnixMilli(1_700_000_000_000)
)

// tokens returns n whole tokens in the smallest unit.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// fakeProvider is an in-memory wallet on a set of chains with per-account balances.
type fakeProvider struct {
	mu sync.Mutex

	accounts   []common.Address
	requestErr error

	chainID  *big.Int
	chainErr error
	known    map[string]bool

	switchErr   error
	addErr      error
	switchCalls []*big.Int
	addCalls    []provider.AddChainParams

	tokenBalances  map[common.Address]*big.Int
	nativeBalances map[common.Address]*big.Int
	callErr        error
	nativeErr      error
	callTargets    []common.Address
	nativeCalls    int

	// blockNative, when set, makes the next BalanceAt wait for it to close.
	blockNative   chan struct{}
	nativeEntered chan struct{}

	blockRequest   chan struct{}
	requestEntered chan struct{}

	estimate      uint64
	estimateErr   error
	estimateCalls int

	sendErr error
	sent    []ethereum.CallMsg

	receiptStatus uint64
	waitErr       error

	feed event.Feed
}

func newFakeProvider(chainID int64, known ...int64) *fakeProvider {
	f := &fakeProvider{
		accounts:       []common.Address{alice},
		chainID:        big.NewInt(chainID),
		known:          map[string]bool{},
		tokenBalances:  map[common.Address]*big.Int{alice: tokens(1000), carol: tokens(7)},
		nativeBalances: map[common.Address]*big.Int{alice: tokens(2), carol: tokens(3)},
		estimate:       50_000,
		receiptStatus:  types.ReceiptStatusSuccessful,
	}
	f.known[big.NewInt(chainID).String()] = true
	for _, id := range known {
		f.known[big.NewInt(id).String()] = true
	}
	return f
}

func (f *fakeProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	block, entered := f.blockRequest, f.requestEntered
	f.blockRequest = nil
	f.mu.Unlock()
	if block != nil {
		close(entered)
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return append([]common.Address(nil), f.accounts...), nil
}

func (f *fakeProvider) ChainID(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeProvider) SwitchChain(_ context.Context, chainID *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switchCalls = append(f.switchCalls, new(big.Int).Set(chainID))
	if f.switchErr != nil {
		return f.switchErr
	}
	if !f.known[chainID.String()] {
		return provider.Errorf(provider.CodeUnrecognizedChain, "unrecognized chain %s", chainID)
	}
	f.chainID = new(big.Int).Set(chainID)
	return nil
}

func (f *fakeProvider) AddChain(_ context.Context, params provider.AddChainParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, params)
	if f.addErr != nil {
		return f.addErr
	}
	f.known[params.ChainID.String()] = true
	f.chainID = new(big.Int).Set(params.ChainID)
	return nil
}

func (f *fakeProvider) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.nativeCalls++
	block, entered := f.blockNative, f.nativeEntered
	f.blockNative = nil
	f.mu.Unlock()
	if block != nil {
		close(entered)
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nativeErr != nil {
		return nil, f.nativeErr
	}
	if v, ok := f.nativeBalances[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeProvider) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.To != nil {
		f.callTargets = append(f.callTargets, *msg.To)
	}
	if f.callErr != nil {
		return nil, f.callErr
	}

	sel, _ := token.Selector("balanceOf")
	if len(msg.Data) != 36 || string(msg.Data[:4]) != string(sel) {
		return nil, errors.New("execution reverted")
	}
	account := common.BytesToAddress(msg.Data[16:36])
	bal, ok := f.tokenBalances[account]
	if !ok {
		bal = new(big.Int)
	}
	return token.PackResult("balanceOf", bal)
}

func (f *fakeProvider) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateCalls++
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimate, nil
}

func (f *fakeProvider) SendTransaction(_ context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, msg)
	return common.BigToHash(big.NewInt(int64(len(f.sent)))), nil
}

func (f *fakeProvider) WaitMined(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{Status: f.receiptStatus}, nil
}

func (f *fakeProvider) SubscribeEvents(ch chan<- provider.Event) event.Subscription {
	return f.feed.Subscribe(ch)
}

func (f *fakeProvider) counts() (estimates, sends, native int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.estimateCalls, len(f.sent), f.nativeCalls
}

func (f *fakeProvider) lastCallTarget() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.callTargets) == 0 {
		return common.Address{}
	}
	return f.callTargets[len(f.callTargets)-1]
}

type toast struct {
	Message  string
	Severity Severity
}

type recordingNotifier struct {
	mu      sync.Mutex
	loading int
	done    int
	toasts  []toast
}

func (n *recordingNotifier) Loading(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loading++
}

func (n *recordingNotifier) LoadingDone() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done++
}

func (n *recordingNotifier) Toast(msg string, sev Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast{msg, sev})
}

func (n *recordingNotifier) last() toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.toasts) == 0 {
		return toast{}
	}
	return n.toasts[len(n.toasts)-1]
}

func (n *recordingNotifier) has(sev Severity) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.toasts {
		if t.Severity == sev {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) balanced() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loading == n.done
}

type harness struct {
	wallet   *Wallet
	provider *fakeProvider
	notify   *recordingNotifier
	kv       *history.MemoryKV
}

func newHarness(t *testing.T, p *fakeProvider) *harness {
	t.Helper()
	kv := history.NewMemoryKV()
	notify := &recordingNotifier{}
	log := zaptest.NewLogger(t)
	w := New(Options{
		Registry: chain.DefaultRegistry(),
		Provider: p,
		History:  history.NewStore(kv, log),
		Notifier: notify,
		Logger:   log,
		Now:      func() time.Time { return fixedTime },
	})
	return &harness{wallet: w, provider: p, notify: notify, kv: kv}
}

// connected returns a harness already connected on chainID.
func connected(t *testing.T, chainID int64, known ...int64) *harness {
	t.Helper()
	h := newHarness(t, newFakeProvider(chainID, known...))
	require.NoError(t, h.wallet.Connect(context.Background()))
	require.True(t, h.wallet.State().Balances.Valid(), "balances loaded on connect")
	return h
}

func mustNetwork(t *testing.T, key string) *chain.Network {
	t.Helper()
	n, ok := chain.DefaultRegistry().Get(key)
	require.True(t, ok, fmt.Sprintf("network %s", key))
	return n
}
