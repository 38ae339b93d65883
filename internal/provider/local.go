package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/token"
	"github.com/yolodolo42/jpycli/internal/tx"
	"github.com/yolodolo42/jpycli/internal/wallet"
	"go.uber.org/zap"
)

// RequestKind names what the user is asked to approve.
type RequestKind string

const (
	RequestAddChain        RequestKind = "add_chain"
	RequestSendTransaction RequestKind = "send_transaction"
)

// Request is shown to the user before the provider acts on their behalf.
type Request struct {
	Kind    RequestKind
	Title   string
	Details []string
}

// Approver is the provider's own prompt surface: account unlock and request approval.
// Declining is not an error; it is reported through the ok/approved result and
// surfaces to callers as CodeUserRejected.
type Approver interface {
	Unlock(ctx context.Context, candidates []common.Address) (account common.Address, password string, ok bool, err error)
	Approve(ctx context.Context, req Request) (approved bool, err error)
}

// ChainBackend is the RPC surface of chain.Client used by Local.
type ChainBackend interface {
	tx.Backend
	AddEndpoint(ep *chain.Endpoint)
	HasEndpoint(chainID *big.Int) bool
	GetBalance(ctx context.Context, chainID *big.Int, address common.Address) (*big.Int, error)
	CallContract(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, chainID *big.Int, tx *types.Transaction) error
	WaitMined(ctx context.Context, chainID *big.Int, txHash common.Hash) (*types.Receipt, error)
}

// LocalOptions configures a Local provider.
type LocalOptions struct {
	Keystore *wallet.KeystoreManager
	Chains   ChainBackend
	Approver Approver
	// KnownChains are the chains the wallet has already seen; others need AddChain.
	KnownChains []*big.Int
	// InitialChain is where the provider starts; defaults to the first known chain.
	InitialChain *big.Int
	// Account is the preferred account offered first on unlock.
	Account common.Address
	// SendTimeout bounds broadcasting a signed transaction.
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// Local is a Provider backed by the on-disk keystore and direct RPC connections.
// Chain switches requested through SwitchChain/AddChain do not emit ChainChanged;
// only out-of-band changes made through SelectChain do.
type Local struct {
	ks       *wallet.KeystoreManager
	chains   ChainBackend
	approver Approver
	log      *zap.Logger

	sendTimeout time.Duration
	preferred   common.Address

	mu      sync.Mutex
	known   map[string]bool
	current *big.Int
	signer  wallet.Signer

	feed event.Feed
}

// NewLocal creates a keystore-backed provider.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.Keystore == nil || opts.Chains == nil || opts.Approver == nil {
		return nil, fmt.Errorf("local provider needs a keystore, chain backend and approver")
	}
	if len(opts.KnownChains) == 0 {
		return nil, fmt.Errorf("local provider needs at least one known chain")
	}

	l := &Local{
		ks:          opts.Keystore,
		chains:      opts.Chains,
		approver:    opts.Approver,
		log:         opts.Logger,
		sendTimeout: opts.SendTimeout,
		preferred:   opts.Account,
		known:       make(map[string]bool, len(opts.KnownChains)),
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.sendTimeout <= 0 {
		l.sendTimeout = 20 * time.Second
	}
	for _, id := range opts.KnownChains {
		if !l.chains.HasEndpoint(id) {
			return nil, fmt.Errorf("known chain %s has no RPC endpoint", id)
		}
		l.known[id.String()] = true
	}

	l.current = new(big.Int).Set(opts.KnownChains[0])
	if opts.InitialChain != nil {
		if !l.known[opts.InitialChain.String()] {
			return nil, fmt.Errorf("initial chain %s is not a known chain", opts.InitialChain)
		}
		l.current = new(big.Int).Set(opts.InitialChain)
	}
	return l, nil
}

// RequestAccounts unlocks an account on first use and returns it.
func (l *Local) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	l.mu.Lock()
	if l.signer != nil {
		addr := l.signer.Address()
		l.mu.Unlock()
		return []common.Address{addr}, nil
	}
	l.mu.Unlock()

	signer, err := l.unlock(ctx, l.candidates())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.signer != nil {
		l.signer.Lock()
	}
	l.signer = signer
	l.mu.Unlock()

	l.log.Info("account unlocked", zap.String("account", signer.Address().Hex()))
	return []common.Address{signer.Address()}, nil
}

// candidates lists keystore accounts with the preferred one first.
func (l *Local) candidates() []common.Address {
	all := l.ks.Addresses()
	if l.preferred == (common.Address{}) || !l.ks.HasAddress(l.preferred) {
		return all
	}
	out := []common.Address{l.preferred}
	for _, a := range all {
		if a != l.preferred {
			out = append(out, a)
		}
	}
	return out
}

func (l *Local) unlock(ctx context.Context, candidates []common.Address) (wallet.Signer, error) {
	if len(candidates) == 0 {
		return nil, Errorf(CodeUnauthorized, "no accounts in keystore")
	}

	account, password, ok, err := l.approver.Unlock(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("unlock prompt: %w", err)
	}
	if !ok {
		return nil, Errorf(CodeUserRejected, "user rejected the request")
	}

	signer, err := l.ks.Unlock(account, password)
	if err != nil {
		return nil, &RPCError{Code: CodeUnauthorized, Message: "failed to unlock account", Data: err.Error()}
	}
	return signer, nil
}

// ChainID returns the current chain.
func (l *Local) ChainID(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.current), nil
}

// SwitchChain moves to a chain the wallet already knows.
func (l *Local) SwitchChain(_ context.Context, chainID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.known[chainID.String()] {
		return Errorf(CodeUnrecognizedChain, "unrecognized chain ID %q", "0x"+chainID.Text(16))
	}
	l.current = new(big.Int).Set(chainID)
	l.log.Debug("switched chain", zap.String("chain_id", chainID.String()))
	return nil
}

// AddChain registers the chain's RPC endpoints after user approval and switches to it.
func (l *Local) AddChain(ctx context.Context, params AddChainParams) error {
	if params.ChainID == nil || params.ChainID.Sign() <= 0 {
		return Errorf(-32602, "invalid chain id")
	}
	if len(params.RPCURLs) == 0 {
		return Errorf(-32602, "rpcUrls must not be empty")
	}

	approved, err := l.approver.Approve(ctx, Request{
		Kind:  RequestAddChain,
		Title: fmt.Sprintf("Add network %s", params.ChainName),
		Details: []string{
			fmt.Sprintf("Chain ID: %s", params.ChainID),
			fmt.Sprintf("Currency: %s", params.NativeCurrency.Symbol),
			fmt.Sprintf("RPC: %s", params.RPCURLs[0]),
		},
	})
	if err != nil {
		return fmt.Errorf("approval prompt: %w", err)
	}
	if !approved {
		return Errorf(CodeUserRejected, "user rejected the request")
	}

	l.chains.AddEndpoint(&chain.Endpoint{
		Name:    params.ChainName,
		ChainID: new(big.Int).Set(params.ChainID),
		RPCURLs: append([]string(nil), params.RPCURLs...),
	})

	l.mu.Lock()
	l.known[params.ChainID.String()] = true
	l.current = new(big.Int).Set(params.ChainID)
	l.mu.Unlock()

	l.log.Info("chain added", zap.String("chain_id", params.ChainID.String()), zap.String("name", params.ChainName))
	return nil
}

func (l *Local) currentChain() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.current)
}

// BalanceAt returns the native balance on the current chain.
func (l *Local) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return l.chains.GetBalance(ctx, l.currentChain(), account)
}

// CallContract runs a read-only call on the current chain.
func (l *Local) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return l.chains.CallContract(ctx, l.currentChain(), msg)
}

// EstimateGas estimates msg on the current chain.
func (l *Local) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return l.chains.EstimateGas(ctx, l.currentChain(), msg)
}

// SendTransaction asks the user to approve, signs with the unlocked account and broadcasts.
func (l *Local) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	l.mu.Lock()
	signer := l.signer
	chainID := new(big.Int).Set(l.current)
	l.mu.Unlock()

	if signer == nil || signer.Address() != msg.From {
		return common.Hash{}, Errorf(CodeUnauthorized, "account %s is not authorized", msg.From.Hex())
	}
	if msg.To == nil {
		return common.Hash{}, Errorf(-32602, "contract creation is not supported")
	}

	details := []string{
		fmt.Sprintf("From: %s", msg.From.Hex()),
		fmt.Sprintf("To: %s", msg.To.Hex()),
		fmt.Sprintf("Chain ID: %s", chainID),
		fmt.Sprintf("Gas limit: %d", msg.Gas),
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		details = append(details, fmt.Sprintf("Value: %s wei", msg.Value))
	}
	if recipient, amount, err := token.UnpackTransfer(msg.Data); err == nil {
		shown := strings.TrimRight(strings.TrimRight(chain.FormatUnits(amount, chain.TokenDecimals, chain.TokenDecimals), "0"), ".")
		details = append(details, fmt.Sprintf("Token transfer: %s to %s", shown, recipient.Hex()))
	}
	approved, err := l.approver.Approve(ctx, Request{Kind: RequestSendTransaction, Title: "Send transaction", Details: details})
	if err != nil {
		return common.Hash{}, fmt.Errorf("approval prompt: %w", err)
	}
	if !approved {
		return common.Hash{}, Errorf(CodeUserRejected, "user denied transaction signature")
	}

	unsigned, _, err := tx.BuildUnsignedTx(ctx, l.chains, tx.Intent{
		ChainID:  chainID,
		From:     msg.From,
		To:       *msg.To,
		ValueWei: msg.Value,
		Data:     msg.Data,
		GasLimit: msg.Gas,
	})
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := signer.SignTransaction(unsigned, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign tx: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, l.sendTimeout)
	defer cancel()
	if err := l.chains.SendTransaction(sendCtx, chainID, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send tx: %w", err)
	}

	l.log.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("gas", signed.Gas()))
	return signed.Hash(), nil
}

// WaitMined waits for the receipt on the current chain.
func (l *Local) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return l.chains.WaitMined(ctx, l.currentChain(), hash)
}

// SubscribeEvents delivers provider push events to ch.
func (l *Local) SubscribeEvents(ch chan<- Event) event.Subscription {
	return l.feed.Subscribe(ch)
}

// SelectChain changes the chain from the provider side, as if the user picked a
// different network in the wallet itself, and announces it with ChainChanged.
func (l *Local) SelectChain(chainID *big.Int) error {
	l.mu.Lock()
	if !l.known[chainID.String()] {
		l.mu.Unlock()
		return Errorf(CodeUnrecognizedChain, "unrecognized chain ID %q", "0x"+chainID.Text(16))
	}
	l.current = new(big.Int).Set(chainID)
	l.mu.Unlock()

	l.feed.Send(Event{Kind: ChainChanged, ChainID: new(big.Int).Set(chainID)})
	return nil
}

// SelectAccount unlocks another keystore account from the provider side and
// announces it with AccountsChanged.
func (l *Local) SelectAccount(ctx context.Context, account common.Address) error {
	if !l.ks.HasAddress(account) {
		return Errorf(CodeUnauthorized, "account %s is not in the keystore", account.Hex())
	}
	signer, err := l.unlock(ctx, []common.Address{account})
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.signer != nil {
		l.signer.Lock()
	}
	l.signer = signer
	l.mu.Unlock()

	l.feed.Send(Event{Kind: AccountsChanged, Accounts: []common.Address{account}})
	return nil
}

// Disconnect locks the unlocked account and announces an empty account set.
func (l *Local) Disconnect() {
	l.mu.Lock()
	if l.signer != nil {
		l.signer.Lock()
		l.signer = nil
	}
	l.mu.Unlock()

	l.feed.Send(Event{Kind: AccountsChanged})
}
