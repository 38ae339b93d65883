// Package token binds the ERC-20 surface of the JPYC contract to a wallet provider.
package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABI is the subset of EIP-20 the wallet uses.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("erc20 abi: %v", err))
	}
	return parsed
}

// Backend is what a binding needs from the provider. provider.Provider satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)
}

// Binding is the token contract at one address, reached through one backend.
// A binding is never reused for another network; callers build a new one.
type Binding struct {
	address common.Address
	backend Backend
}

// New binds the token contract at address.
func New(address common.Address, backend Backend) *Binding {
	return &Binding{address: address, backend: backend}
}

// Address returns the bound contract address.
func (b *Binding) Address() common.Address {
	return b.address
}

// BalanceOf returns the raw token balance of account.
func (b *Binding) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := b.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected result type %T", out[0])
	}
	return balance, nil
}

// Decimals returns the token's decimals.
func (b *Binding) Decimals(ctx context.Context) (uint8, error) {
	out, err := b.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected result type %T", out[0])
	}
	return d, nil
}

// Symbol returns the token's symbol.
func (b *Binding) Symbol(ctx context.Context) (string, error) {
	out, err := b.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected result type %T", out[0])
	}
	return s, nil
}

// EstimateTransfer estimates the gas of transfer(to, amount) sent from from.
func (b *Binding) EstimateTransfer(ctx context.Context, from, to common.Address, amount *big.Int) (uint64, error) {
	msg, err := b.transferMsg(from, to, amount, 0)
	if err != nil {
		return 0, err
	}
	return b.backend.EstimateGas(ctx, msg)
}

// Transfer submits transfer(to, amount) from from with the given gas limit.
func (b *Binding) Transfer(ctx context.Context, from, to common.Address, amount *big.Int, gas uint64) (common.Hash, error) {
	msg, err := b.transferMsg(from, to, amount, gas)
	if err != nil {
		return common.Hash{}, err
	}
	return b.backend.SendTransaction(ctx, msg)
}

func (b *Binding) transferMsg(from, to common.Address, amount *big.Int, gas uint64) (ethereum.CallMsg, error) {
	data, err := parsedABI.Pack("transfer", to, amount)
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("pack transfer: %w", err)
	}
	contract := b.address
	return ethereum.CallMsg{From: from, To: &contract, Gas: gas, Data: data}, nil
}

func (b *Binding) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	contract := b.address
	raw, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := parsedABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

// Selector returns the 4-byte selector of a bound method, for fakes and logs.
func Selector(method string) ([]byte, error) {
	m, ok := parsedABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %s", method)
	}
	return append([]byte(nil), m.ID...), nil
}

// PackResult ABI-encodes return values of method, for fakes standing in for the contract.
func PackResult(method string, values ...interface{}) ([]byte, error) {
	m, ok := parsedABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %s", method)
	}
	return m.Outputs.Pack(values...)
}

// UnpackTransfer decodes transfer calldata into recipient and amount.
func UnpackTransfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) < 4 {
		return common.Address{}, nil, fmt.Errorf("calldata too short")
	}
	m := parsedABI.Methods["transfer"]
	if string(data[:4]) != string(m.ID) {
		return common.Address{}, nil, fmt.Errorf("not a transfer call")
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unpack transfer args: %w", err)
	}
	to, ok1 := args[0].(common.Address)
	amount, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, fmt.Errorf("unexpected transfer arg types")
	}
	return to, amount, nil
}
