package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/provider"
	"go.uber.org/zap"
)

// TransferExecutor validates, submits and records token transfers.
type TransferExecutor struct {
	state    *State
	provider provider.Provider
	reader   *BalanceReader
	history  *history.Store
	notify   Notifier
	log      *zap.Logger
	now      func() time.Time
}

// ParseAddress validates a recipient address. Mixed-case input must carry a valid
// EIP-55 checksum; all-lower or all-upper hex is accepted as is.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a 20-byte hex address", s)
	}
	addr := common.HexToAddress(s)

	digits := s
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) && digits != addr.Hex()[2:] {
		return common.Address{}, fmt.Errorf("%q has an invalid checksum", s)
	}
	return addr, nil
}

// ParseAmount converts a positive decimal token amount into its smallest unit.
func ParseAmount(s string) (*big.Int, error) {
	v, err := chain.ParseUnits(s, chain.TokenDecimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, errors.New("amount must be greater than 0")
	}
	return v, nil
}

// GasWithBuffer returns the estimate plus 20%, rounded up, capped at math.MaxUint64.
func GasWithBuffer(estimate uint64) uint64 {
	if estimate <= (math.MaxUint64-9)/12 {
		return (estimate*12 + 9) / 10
	}
	buffered := new(big.Int).SetUint64(estimate)
	buffered.Mul(buffered, big.NewInt(12))
	buffered.Add(buffered, big.NewInt(9))
	buffered.Quo(buffered, big.NewInt(10))
	if !buffered.IsUint64() {
		return math.MaxUint64
	}
	return buffered.Uint64()
}

// Transfer sends amount tokens to recipient from the connected account. A record is
// appended to history only when a transaction hash was obtained; the returned record
// is nil otherwise.
func (t *TransferExecutor) Transfer(ctx context.Context, recipient, amount string) (*history.Record, error) {
	if !t.state.tryBegin() {
		return nil, busy(t.notify, "transfer")
	}
	defer t.state.end()
	return t.transfer(ctx, recipient, amount)
}

func (t *TransferExecutor) transfer(ctx context.Context, recipient, amount string) (*history.Record, error) {
	to, err := ParseAddress(recipient)
	if err != nil {
		t.notify.Toast("Invalid address", SeverityError)
		return nil, newError(InvalidAddress, "transfer", err)
	}
	value, err := ParseAmount(amount)
	if err != nil {
		t.notify.Toast("Amount must be a number greater than 0", SeverityError)
		return nil, newError(InvalidAmount, "transfer", err)
	}

	snap := t.state.Snapshot()
	if !snap.Connected || snap.Account == nil || snap.Binding == nil {
		t.notify.Toast("Wallet not connected", SeverityError)
		return nil, newError(NotConnected, "transfer", nil)
	}
	from := *snap.Account
	log := t.log.With(t.state.logFields()...).With(zap.String("to", to.Hex()), zap.String("amount", amount))

	t.notify.Loading("Sending transaction...")

	balance, err := snap.Binding.BalanceOf(ctx, from)
	if err != nil {
		return nil, t.submitFailed(log, fmt.Errorf("read balance: %w", err))
	}
	if balance.Cmp(value) < 0 {
		t.notify.LoadingDone()
		log.Info("insufficient balance", zap.String("balance", balance.String()))
		t.notify.Toast("Insufficient balance", SeverityError)
		return nil, newError(InsufficientBalance, "transfer",
			fmt.Errorf("balance %s < %s", chain.FormatUnits(balance, chain.TokenDecimals, TokenDisplayDecimals), strings.TrimSpace(amount)))
	}

	estimate, err := snap.Binding.EstimateTransfer(ctx, from, to, value)
	if err != nil {
		return nil, t.submitFailed(log, fmt.Errorf("estimate gas: %w", err))
	}
	gas := GasWithBuffer(estimate)

	hash, err := snap.Binding.Transfer(ctx, from, to, value, gas)
	if err != nil {
		return nil, t.submitFailed(log, err)
	}
	log.Info("transfer submitted", zap.String("hash", hash.Hex()), zap.Uint64("estimate", estimate), zap.Uint64("gas", gas))

	status := history.StatusSuccess
	receipt, waitErr := t.provider.WaitMined(ctx, hash)
	switch {
	case waitErr != nil:
		status = history.StatusFailed
		log.Warn("waiting for receipt failed", zap.String("hash", hash.Hex()), zap.Error(waitErr))
	case receipt.Status != types.ReceiptStatusSuccessful:
		status = history.StatusFailed
		log.Warn("transfer reverted", zap.String("hash", hash.Hex()))
	}
	t.notify.LoadingDone()

	record := history.Record{
		Hash:      hash.Hex(),
		Kind:      history.KindTransfer,
		To:        to.Hex(),
		Amount:    strings.TrimSpace(amount),
		Status:    status,
		Timestamp: t.now().UnixMilli(),
		Network:   snap.NetworkKey,
	}
	if err := t.history.Append(record); err != nil {
		log.Warn("history persist failed", zap.Error(err))
		t.notify.Toast("Transfer recorded but history could not be saved", SeverityWarning)
	}

	if t.state.Generation() == snap.Generation {
		// refresh reports its own failure.
		_ = t.reader.refresh(ctx)
	} else {
		log.Debug("session changed during transfer, skipping balance refresh")
	}

	if status == history.StatusFailed {
		cause := waitErr
		if cause == nil {
			cause = fmt.Errorf("transaction %s reverted", hash.Hex())
		}
		t.notify.Toast("Transfer failed: "+cause.Error(), SeverityError)
		return &record, newError(TransferFailed, "transfer", cause)
	}
	t.notify.Toast("Transfer complete", SeveritySuccess)
	return &record, nil
}

// submitFailed classifies a failure that happened before a transaction hash existed.
func (t *TransferExecutor) submitFailed(log *zap.Logger, err error) error {
	t.notify.LoadingDone()
	if provider.IsUserRejected(err) {
		log.Info("transfer cancelled by user")
		t.notify.Toast("Transaction cancelled", SeverityWarning)
		return newError(UserRejected, "transfer", err)
	}
	log.Warn("transfer failed", zap.Error(err))
	t.notify.Toast("Transfer failed: "+err.Error(), SeverityError)
	return newError(TransferFailed, "transfer", err)
}
