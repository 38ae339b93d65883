package session

import (
	"context"
	"errors"
	"math/big"

	"github.com/yolodolo42/jpycli/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BalanceReader reads the token and native balances of the current account.
type BalanceReader struct {
	state    *State
	provider provider.Provider
	notify   Notifier
	log      *zap.Logger
}

// Refresh reads both balances and stores them. On failure the previous balances stay.
func (r *BalanceReader) Refresh(ctx context.Context) error {
	if !r.state.tryBegin() {
		return busy(r.notify, "refresh")
	}
	defer r.state.end()
	return r.refresh(ctx)
}

// refresh works on the binding and account current at invocation; if either is
// replaced while the reads are in flight, the result is dropped.
func (r *BalanceReader) refresh(ctx context.Context) error {
	snap := r.state.Snapshot()
	if !snap.Connected || snap.Account == nil {
		r.notify.Toast("Wallet not connected", SeverityError)
		return newError(NotConnected, "refresh", nil)
	}
	if snap.Binding == nil {
		r.notify.Toast("No active network", SeverityError)
		return newError(NotConnected, "refresh", errors.New("no active network"))
	}

	r.notify.Loading("Updating balances...")
	var tokenBal, nativeBal *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := snap.Binding.BalanceOf(gctx, *snap.Account)
		tokenBal = v
		return err
	})
	g.Go(func() error {
		v, err := r.provider.BalanceAt(gctx, *snap.Account)
		nativeBal = v
		return err
	})
	err := g.Wait()
	r.notify.LoadingDone()

	if err != nil {
		r.log.Warn("balance fetch failed", append(r.state.logFields(), zap.Error(err))...)
		r.notify.Toast("Failed to fetch balances", SeverityError)
		return newError(BalanceFetchFailed, "refresh", err)
	}

	if !r.state.applyBalances(snap.Generation, snap.Binding, Balances{Token: tokenBal, Native: nativeBal}) {
		r.log.Debug("discarding stale balances", append(r.state.logFields(), zap.Uint64("started_at", snap.Generation))...)
		return nil
	}
	r.log.Debug("balances updated", append(r.state.logFields(),
		zap.String("token", tokenBal.String()),
		zap.String("native", nativeBal.String()))...)
	return nil
}
