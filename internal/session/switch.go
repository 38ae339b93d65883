package session

import (
	"context"
	"fmt"

	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/provider"
	"github.com/yolodolo42/jpycli/internal/token"
	"go.uber.org/zap"
)

// NetworkSwitcher moves the provider to a registry network and rebinds the session to it.
type NetworkSwitcher struct {
	state    *State
	provider provider.Provider
	registry *chain.Registry
	reader   *BalanceReader
	notify   Notifier
	log      *zap.Logger
}

// SwitchTo switches to the network registered under key. Chains the provider has
// never seen are added with their full descriptor.
func (s *NetworkSwitcher) SwitchTo(ctx context.Context, key string) error {
	if !s.state.tryBegin() {
		return busy(s.notify, "switch")
	}
	defer s.state.end()
	return s.switchTo(ctx, key)
}

func (s *NetworkSwitcher) switchTo(ctx context.Context, key string) error {
	network, ok := s.registry.Get(key)
	if !ok {
		err := newError(UnknownNetwork, "switch", fmt.Errorf("no network named %q", key))
		s.notify.Toast(fmt.Sprintf("Unknown network %q", key), SeverityError)
		return err
	}

	snap := s.state.Snapshot()
	if !snap.Connected {
		s.notify.Toast("Wallet not connected", SeverityError)
		return newError(NotConnected, "switch", nil)
	}

	s.notify.Loading("Switching network...")
	err := s.provider.SwitchChain(ctx, network.ChainID)
	if err != nil && provider.IsUnrecognizedChain(err) {
		s.log.Info("chain unknown to provider, adding it",
			append(s.state.logFields(), zap.String("target", network.Key))...)
		err = s.provider.AddChain(ctx, provider.AddChainParamsFor(network))
	}
	s.notify.LoadingDone()
	if err != nil {
		serr := newError(SwitchFailed, "switch", err)
		s.log.Warn("network switch failed", append(s.state.logFields(), zap.String("target", network.Key), zap.Error(err))...)
		s.notify.Toast("Network switch failed: "+err.Error(), SeverityError)
		return serr
	}

	if !s.activate(ctx, snap.Generation, network) {
		return nil
	}
	s.notify.Toast(fmt.Sprintf("Switched to %s", network.ChainName), SeveritySuccess)
	return nil
}

// activate rebinds the token contract for network, makes it active and refreshes
// balances. It returns false when the session moved on since gen.
func (s *NetworkSwitcher) activate(ctx context.Context, gen uint64, network *chain.Network) bool {
	binding := token.New(network.TokenAddress, s.provider)
	if !s.state.activate(gen, network, binding) {
		s.log.Debug("discarding stale network activation",
			append(s.state.logFields(), zap.String("target", network.Key), zap.Uint64("started_at", gen))...)
		return false
	}
	s.log.Info("network active", append(s.state.logFields(), zap.String("token", binding.Address().Hex()))...)

	// refresh reports its own failure.
	_ = s.reader.refresh(ctx)
	return true
}
