// Package provider defines the wallet provider capability the session core consumes,
// modeled on EIP-1193, and a keystore-backed implementation of it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/yolodolo42/jpycli/internal/chain"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// RPCError is a coded provider error. It satisfies go-ethereum's rpc.Error and
// rpc.DataError so codes survive wrapping and JSON-RPC transports alike.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

var (
	_ rpc.Error     = (*RPCError)(nil)
	_ rpc.DataError = (*RPCError)(nil)
)

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *RPCError) ErrorCode() int { return e.Code }

func (e *RPCError) ErrorData() interface{} { return e.Data }

// Errorf builds an RPCError with a formatted message.
func Errorf(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the provider error code from err, if any.
func ErrorCode(err error) (int, bool) {
	var coded rpc.Error
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return 0, false
}

// IsUserRejected reports whether err is the provider's "user rejected the request" error.
func IsUserRejected(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUserRejected
}

// IsUnrecognizedChain reports whether err means the provider has never seen the chain.
func IsUnrecognizedChain(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUnrecognizedChain
}

// AddChainParams is the payload of wallet_addEthereumChain.
type AddChainParams struct {
	ChainID           *big.Int
	ChainName         string
	NativeCurrency    chain.NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

// AddChainParamsFor builds the add-chain payload carrying the full network descriptor.
func AddChainParamsFor(n *chain.Network) AddChainParams {
	return AddChainParams{
		ChainID:           new(big.Int).Set(n.ChainID),
		ChainName:         n.ChainName,
		NativeCurrency:    n.NativeCurrency,
		RPCURLs:           append([]string(nil), n.RPCURLs...),
		BlockExplorerURLs: append([]string(nil), n.BlockExplorerURLs...),
	}
}

// EventKind distinguishes provider push events.
type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a provider push notification.
type Event struct {
	Kind     EventKind
	Accounts []common.Address // AccountsChanged; empty means disconnected
	ChainID  *big.Int         // ChainChanged
}

// Provider is the wallet capability consumed by the session core.
type Provider interface {
	// RequestAccounts asks the user for account access (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the chain the provider is currently on (eth_chainId).
	ChainID(ctx context.Context) (*big.Int, error)
	// SwitchChain moves the provider to chainID (wallet_switchEthereumChain).
	// Fails with CodeUnrecognizedChain when the provider has never seen the chain.
	SwitchChain(ctx context.Context, chainID *big.Int) error
	// AddChain registers a chain and switches to it (wallet_addEthereumChain).
	AddChain(ctx context.Context, params AddChainParams) error

	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	// SendTransaction signs msg with the selected account and broadcasts it
	// (eth_sendTransaction). msg.Gas is used as the gas limit.
	SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// SubscribeEvents delivers accountsChanged / chainChanged pushes to ch.
	SubscribeEvents(ch chan<- Event) event.Subscription
}
