package provider

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/testutil"
	"github.com/yolodolo42/jpycli/internal/token"
	"github.com/yolodolo42/jpycli/internal/wallet"
)

const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPassword   = "hunter2"
)

var testAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type fakeChains struct {
	mu        sync.Mutex
	endpoints map[string]*chain.Endpoint
	sent      []*types.Transaction
	sentChain []*big.Int
	calls     int
}

func newFakeChains(ids ...int64) *fakeChains {
	f := &fakeChains{endpoints: make(map[string]*chain.Endpoint)}
	for _, id := range ids {
		f.endpoints[big.NewInt(id).String()] = &chain.Endpoint{ChainID: big.NewInt(id), RPCURLs: []string{"http://localhost"}}
	}
	return f
}

func (f *fakeChains) touch() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeChains) GetNonce(context.Context, *big.Int, common.Address) (uint64, error) {
	f.touch()
	return 7, nil
}

func (f *fakeChains) SuggestGasTipCap(context.Context, *big.Int) (*big.Int, error) {
	f.touch()
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChains) SuggestGasPrice(context.Context, *big.Int) (*big.Int, error) {
	f.touch()
	return big.NewInt(30_000_000_000), nil
}

func (f *fakeChains) EstimateGas(context.Context, *big.Int, ethereum.CallMsg) (uint64, error) {
	f.touch()
	return 50_000, nil
}

func (f *fakeChains) AddEndpoint(ep *chain.Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints[ep.ChainID.String()] = ep
}

func (f *fakeChains) HasEndpoint(chainID *big.Int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.endpoints[chainID.String()]
	return ok
}

func (f *fakeChains) GetBalance(context.Context, *big.Int, common.Address) (*big.Int, error) {
	f.touch()
	return big.NewInt(42), nil
}

func (f *fakeChains) CallContract(context.Context, *big.Int, ethereum.CallMsg) ([]byte, error) {
	f.touch()
	return nil, nil
}

func (f *fakeChains) SendTransaction(_ context.Context, chainID *big.Int, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, tx)
	f.sentChain = append(f.sentChain, chainID)
	return nil
}

func (f *fakeChains) WaitMined(context.Context, *big.Int, common.Hash) (*types.Receipt, error) {
	f.touch()
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeChains) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeApprover struct {
	account  common.Address
	password string
	unlockOK bool
	approve  bool
	err      error

	requests []Request
}

func (a *fakeApprover) Unlock(_ context.Context, candidates []common.Address) (common.Address, string, bool, error) {
	if a.err != nil {
		return common.Address{}, "", false, a.err
	}
	acct := a.account
	if acct == (common.Address{}) && len(candidates) > 0 {
		acct = candidates[0]
	}
	return acct, a.password, a.unlockOK, nil
}

func (a *fakeApprover) Approve(_ context.Context, req Request) (bool, error) {
	a.requests = append(a.requests, req)
	if a.err != nil {
		return false, a.err
	}
	return a.approve, nil
}

func newTestKeystore(t *testing.T) *wallet.KeystoreManager {
	t.Helper()
	km, err := wallet.NewKeystoreManagerWithScrypt(testutil.TempDir(t), keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	_, err = km.ImportKey(testPrivateKey, testPassword)
	require.NoError(t, err)
	return km
}

func newTestLocal(t *testing.T, chains *fakeChains, approver *fakeApprover, known ...int64) *Local {
	t.Helper()
	ids := make([]*big.Int, 0, len(known))
	for _, id := range known {
		ids = append(ids, big.NewInt(id))
	}
	l, err := NewLocal(LocalOptions{
		Keystore:    newTestKeystore(t),
		Chains:      chains,
		Approver:    approver,
		KnownChains: ids,
	})
	require.NoError(t, err)
	return l
}

func TestNewLocal(t *testing.T) {
	t.Run("requires collaborators", func(t *testing.T) {
		_, err := NewLocal(LocalOptions{})
		assert.Error(t, err)
	})

	t.Run("known chain needs an endpoint", func(t *testing.T) {
		_, err := NewLocal(LocalOptions{
			Keystore:    newTestKeystore(t),
			Chains:      newFakeChains(1),
			Approver:    &fakeApprover{},
			KnownChains: []*big.Int{big.NewInt(137)},
		})
		assert.Error(t, err)
	})

	t.Run("starts on first known chain", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1, 137), &fakeApprover{}, 1, 137)
		id, err := l.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), id.Int64())
	})

	t.Run("initial chain must be known", func(t *testing.T) {
		_, err := NewLocal(LocalOptions{
			Keystore:     newTestKeystore(t),
			Chains:       newFakeChains(1, 137),
			Approver:     &fakeApprover{},
			KnownChains:  []*big.Int{big.NewInt(1)},
			InitialChain: big.NewInt(137),
		})
		assert.Error(t, err)
	})
}

func TestLocal_RequestAccounts(t *testing.T) {
	t.Run("unlocks with correct password", func(t *testing.T) {
		approver := &fakeApprover{password: testPassword, unlockOK: true}
		l := newTestLocal(t, newFakeChains(1), approver, 1)

		accounts, err := l.RequestAccounts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []common.Address{testAccount}, accounts)

		// Second call reuses the unlocked account.
		approver.unlockOK = false
		accounts, err = l.RequestAccounts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []common.Address{testAccount}, accounts)
	})

	t.Run("declined prompt is user rejection", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{unlockOK: false}, 1)

		_, err := l.RequestAccounts(context.Background())
		require.Error(t, err)
		assert.True(t, IsUserRejected(err))
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{password: "nope", unlockOK: true}, 1)

		_, err := l.RequestAccounts(context.Background())
		require.Error(t, err)
		code, ok := ErrorCode(err)
		require.True(t, ok)
		assert.Equal(t, CodeUnauthorized, code)
	})

	t.Run("prompt failure is not coded", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{err: errors.New("tty closed")}, 1)

		_, err := l.RequestAccounts(context.Background())
		require.Error(t, err)
		_, ok := ErrorCode(err)
		assert.False(t, ok)
	})
}

func TestLocal_SwitchChain(t *testing.T) {
	t.Run("known chain", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1, 137), &fakeApprover{}, 1, 137)

		require.NoError(t, l.SwitchChain(context.Background(), big.NewInt(137)))
		id, _ := l.ChainID(context.Background())
		assert.Equal(t, int64(137), id.Int64())
	})

	t.Run("unknown chain is 4902", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{}, 1)

		err := l.SwitchChain(context.Background(), big.NewInt(43114))
		require.Error(t, err)
		assert.True(t, IsUnrecognizedChain(err))
		assert.Contains(t, err.Error(), "0xa86a")

		id, _ := l.ChainID(context.Background())
		assert.Equal(t, int64(1), id.Int64())
	})

	t.Run("request-driven switch emits no event", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1, 137), &fakeApprover{}, 1, 137)
		ch := make(chan Event, 1)
		sub := l.SubscribeEvents(ch)
		defer sub.Unsubscribe()

		require.NoError(t, l.SwitchChain(context.Background(), big.NewInt(137)))
		select {
		case ev := <-ch:
			t.Fatalf("unexpected event %v", ev.Kind)
		case <-time.After(20 * time.Millisecond):
		}
	})
}

func TestLocal_AddChain(t *testing.T) {
	avalanche, _ := chain.DefaultRegistry().Get("avalanche")

	t.Run("approved add registers and switches", func(t *testing.T) {
		chains := newFakeChains(1)
		approver := &fakeApprover{approve: true}
		l := newTestLocal(t, chains, approver, 1)

		require.NoError(t, l.AddChain(context.Background(), AddChainParamsFor(avalanche)))

		id, _ := l.ChainID(context.Background())
		assert.Equal(t, int64(43114), id.Int64())
		assert.True(t, chains.HasEndpoint(big.NewInt(43114)))
		require.Len(t, approver.requests, 1)
		assert.Equal(t, RequestAddChain, approver.requests[0].Kind)

		// Now known, so a plain switch works.
		require.NoError(t, l.SwitchChain(context.Background(), big.NewInt(1)))
		require.NoError(t, l.SwitchChain(context.Background(), big.NewInt(43114)))
	})

	t.Run("declined add is user rejection", func(t *testing.T) {
		chains := newFakeChains(1)
		l := newTestLocal(t, chains, &fakeApprover{approve: false}, 1)

		err := l.AddChain(context.Background(), AddChainParamsFor(avalanche))
		require.Error(t, err)
		assert.True(t, IsUserRejected(err))
		assert.False(t, chains.HasEndpoint(big.NewInt(43114)))
	})

	t.Run("rejects missing rpc urls", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{approve: true}, 1)
		params := AddChainParamsFor(avalanche)
		params.RPCURLs = nil

		err := l.AddChain(context.Background(), params)
		require.Error(t, err)
		assert.False(t, IsUserRejected(err))
	})
}

func TestLocal_SendTransaction(t *testing.T) {
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	unlocked := func(t *testing.T, chains *fakeChains, approver *fakeApprover) *Local {
		t.Helper()
		approver.password = testPassword
		approver.unlockOK = true
		l := newTestLocal(t, chains, approver, 137)
		_, err := l.RequestAccounts(context.Background())
		require.NoError(t, err)
		return l
	}

	t.Run("signs and broadcasts with the given gas", func(t *testing.T) {
		chains := newFakeChains(137)
		l := unlocked(t, chains, &fakeApprover{approve: true})

		hash, err := l.SendTransaction(context.Background(), ethereum.CallMsg{
			From: testAccount,
			To:   &to,
			Gas:  60_000,
			Data: []byte{0xa9, 0x05, 0x9c, 0xbb},
		})
		require.NoError(t, err)

		require.Len(t, chains.sent, 1)
		sent := chains.sent[0]
		assert.Equal(t, sent.Hash(), hash)
		assert.Equal(t, uint64(60_000), sent.Gas())
		assert.Equal(t, uint64(7), sent.Nonce())
		assert.Equal(t, int64(137), sent.ChainId().Int64())
		assert.Equal(t, int64(137), chains.sentChain[0].Int64())

		sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), sent)
		require.NoError(t, err)
		assert.Equal(t, testAccount, sender)
	})

	t.Run("approval shows decoded token transfer", func(t *testing.T) {
		chains := newFakeChains(137)
		approver := &fakeApprover{approve: true}
		l := unlocked(t, chains, approver)

		selector, err := token.Selector("transfer")
		require.NoError(t, err)
		args, err := abiArgs(to, new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17)))
		require.NoError(t, err)

		_, err = l.SendTransaction(context.Background(), ethereum.CallMsg{
			From: testAccount, To: &to, Gas: 60_000, Data: append(selector, args...),
		})
		require.NoError(t, err)

		require.NotEmpty(t, approver.requests)
		req := approver.requests[len(approver.requests)-1]
		assert.Equal(t, RequestSendTransaction, req.Kind)
		assert.Contains(t, req.Details, "Token transfer: 1.5 to "+to.Hex())
	})

	t.Run("declined before any rpc", func(t *testing.T) {
		chains := newFakeChains(137)
		l := unlocked(t, chains, &fakeApprover{approve: false})
		before := chains.callCount()

		_, err := l.SendTransaction(context.Background(), ethereum.CallMsg{From: testAccount, To: &to, Gas: 60_000})
		require.Error(t, err)
		assert.True(t, IsUserRejected(err))
		assert.Equal(t, before, chains.callCount())
		assert.Empty(t, chains.sent)
	})

	t.Run("foreign sender is unauthorized", func(t *testing.T) {
		chains := newFakeChains(137)
		l := unlocked(t, chains, &fakeApprover{approve: true})

		_, err := l.SendTransaction(context.Background(), ethereum.CallMsg{From: to, To: &to, Gas: 60_000})
		code, ok := ErrorCode(err)
		require.True(t, ok)
		assert.Equal(t, CodeUnauthorized, code)
	})

	t.Run("locked provider is unauthorized", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(137), &fakeApprover{approve: true}, 137)

		_, err := l.SendTransaction(context.Background(), ethereum.CallMsg{From: testAccount, To: &to, Gas: 60_000})
		code, ok := ErrorCode(err)
		require.True(t, ok)
		assert.Equal(t, CodeUnauthorized, code)
	})
}

func TestLocal_OutOfBandEvents(t *testing.T) {
	t.Run("select chain emits chainChanged", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1, 137), &fakeApprover{}, 1, 137)
		ch := make(chan Event, 1)
		sub := l.SubscribeEvents(ch)
		defer sub.Unsubscribe()

		require.NoError(t, l.SelectChain(big.NewInt(137)))
		ev := <-ch
		assert.Equal(t, ChainChanged, ev.Kind)
		assert.Equal(t, int64(137), ev.ChainID.Int64())
	})

	t.Run("select unknown chain fails", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{}, 1)
		assert.True(t, IsUnrecognizedChain(l.SelectChain(big.NewInt(5))))
	})

	t.Run("select account emits accountsChanged", func(t *testing.T) {
		l := newTestLocal(t, newFakeChains(1), &fakeApprover{password: testPassword, unlockOK: true}, 1)
		ch := make(chan Event, 1)
		sub := l.SubscribeEvents(ch)
		defer sub.Unsubscribe()

		require.NoError(t, l.SelectAccount(context.Background(), testAccount))
		ev := <-ch
		assert.Equal(t, AccountsChanged, ev.Kind)
		assert.Equal(t, []common.Address{testAccount}, ev.Accounts)
	})

	t.Run("disconnect emits empty accounts and locks", func(t *testing.T) {
		approver := &fakeApprover{password: testPassword, unlockOK: true, approve: true}
		l := newTestLocal(t, newFakeChains(1), approver, 1)
		_, err := l.RequestAccounts(context.Background())
		require.NoError(t, err)

		ch := make(chan Event, 1)
		sub := l.SubscribeEvents(ch)
		defer sub.Unsubscribe()

		l.Disconnect()
		ev := <-ch
		assert.Equal(t, AccountsChanged, ev.Kind)
		assert.Empty(t, ev.Accounts)

		to := testAccount
		_, err = l.SendTransaction(context.Background(), ethereum.CallMsg{From: testAccount, To: &to, Gas: 21_000})
		code, _ := ErrorCode(err)
		assert.Equal(t, CodeUnauthorized, code)
	})
}

func TestErrorCode(t *testing.T) {
	t.Run("survives wrapping", func(t *testing.T) {
		err := errors.Join(errors.New("outer"), Errorf(CodeUserRejected, "nope"))
		assert.True(t, IsUserRejected(err))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		_, ok := ErrorCode(errors.New("boom"))
		assert.False(t, ok)
	})

	t.Run("message includes code", func(t *testing.T) {
		assert.Equal(t, "user rejected the request (code 4001)", Errorf(CodeUserRejected, "user rejected the request").Error())
	})
}

func abiArgs(to common.Address, amount *big.Int) ([]byte, error) {
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	uintT, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: addressT}, {Type: uintT}}.Pack(to, amount)
}
