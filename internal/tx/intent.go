package tx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the subset of chain.Client needed to price and prepare a transaction.
type Backend interface {
	GetNonce(ctx context.Context, chainID *big.Int, address common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context, chainID *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) (uint64, error)
}

// Intent captures a state-changing transaction the user wants to perform.
type Intent struct {
	ChainID     *big.Int
	From        common.Address // signer address
	To          common.Address // recipient or contract
	ValueWei    *big.Int       // native value; nil means zero
	Data        []byte         // calldata (empty for native send)
	Nonce       *uint64        // optional override
	GasLimit    uint64         // zero means estimate
	MaxFeePerG  *big.Int       // optional override
	MaxPriority *big.Int       // optional override
}

// SuggestedFees carries gas estimates so the caller can render them.
type SuggestedFees struct {
	GasLimit         uint64
	MaxFeePerGas     *big.Int
	MaxPriorityFee   *big.Int
	EstimatedCostWei *big.Int
}

// BuildUnsignedTx prepares an unsigned EIP-1559 transaction for the intent.
func BuildUnsignedTx(ctx context.Context, b Backend, intent Intent) (*types.Transaction, SuggestedFees, error) {
	if intent.ChainID == nil {
		return nil, SuggestedFees{}, fmt.Errorf("chain id missing")
	}
	value := intent.ValueWei
	if value == nil {
		value = new(big.Int)
	}

	// Nonce
	var nonce uint64
	if intent.Nonce != nil {
		nonce = *intent.Nonce
	} else {
		n, err := b.GetNonce(ctx, intent.ChainID, intent.From)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("get nonce: %w", err)
		}
		nonce = n
	}

	// Fees
	maxFee := intent.MaxFeePerG
	maxPrio := intent.MaxPriority
	if maxFee == nil || maxPrio == nil {
		tip, err := b.SuggestGasTipCap(ctx, intent.ChainID)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("suggest tip: %w", err)
		}
		fee, err := b.SuggestGasPrice(ctx, intent.ChainID)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("suggest gas price: %w", err)
		}
		if maxPrio == nil {
			maxPrio = tip
		}
		if maxFee == nil {
			maxFee = fee
		}
	}
	// A fee cap below the tip is rejected by every node.
	if maxFee.Cmp(maxPrio) < 0 {
		maxFee = new(big.Int).Set(maxPrio)
	}

	// Gas limit
	gasLimit := intent.GasLimit
	if gasLimit == 0 {
		gl, err := b.EstimateGas(ctx, intent.ChainID, ethereum.CallMsg{
			From:      intent.From,
			To:        &intent.To,
			GasFeeCap: maxFee,
			GasTipCap: maxPrio,
			Value:     value,
			Data:      intent.Data,
		})
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = gl
	}

	to := intent.To
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).Set(intent.ChainID),
		Nonce:     nonce,
		GasTipCap: maxPrio,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      intent.Data,
	})

	total := new(big.Int).Mul(maxFee, new(big.Int).SetUint64(gasLimit))
	total.Add(total, value)

	return unsigned, SuggestedFees{
		GasLimit:         gasLimit,
		MaxFeePerGas:     maxFee,
		MaxPriorityFee:   maxPrio,
		EstimatedCostWei: total,
	}, nil
}
