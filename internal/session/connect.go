package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/provider"
	"go.uber.org/zap"
)

// ConnectionManager connects the wallet provider and activates the network it is on.
type ConnectionManager struct {
	state    *State
	provider provider.Provider
	registry *chain.Registry
	switcher *NetworkSwitcher
	notify   Notifier
	log      *zap.Logger
}

// Connect requests account access, then activates the provider's current network.
// A provider on an unsupported chain is moved to the default network; that is a
// warning, not a connection failure.
func (c *ConnectionManager) Connect(ctx context.Context) error {
	if !c.state.tryBegin() {
		return busy(c.notify, "connect")
	}
	defer c.state.end()
	return c.connect(ctx)
}

func (c *ConnectionManager) connect(ctx context.Context) error {
	if c.provider == nil {
		err := newError(ProviderUnavailable, "connect", errors.New("no wallet provider configured"))
		c.notify.Toast("No wallet provider available", SeverityError)
		return err
	}

	c.notify.Loading("Connecting to wallet...")
	accounts, err := c.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = errors.New("provider returned no accounts")
	}
	if err != nil {
		return c.fail(classifyProvider(err, "connect"))
	}

	gen := c.state.setConnected(accounts[0])
	c.log.Info("wallet connected", append(c.state.logFields(), zap.String("account", accounts[0].Hex()))...)

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		c.state.reset()
		return c.fail(newError(ProviderError, "connect", fmt.Errorf("read chain id: %w", err)))
	}

	network, ok := c.registry.ByChainID(chainID)
	if !ok {
		def := c.registry.Default()
		unsupported := newError(UnsupportedNetwork, "connect", fmt.Errorf("chain %s", chainID))
		c.notify.LoadingDone()
		c.log.Warn("unsupported network, falling back",
			append(c.state.logFields(), zap.Error(unsupported), zap.Stringer("kind", unsupported.Kind), zap.String("fallback", def.Key))...)
		c.notify.Toast(fmt.Sprintf("Unsupported network (%s). Switching to %s.", unsupported.Err, def.ChainName), SeverityWarning)

		// switchTo reports its own failure; the connection stands either way.
		if err := c.switcher.switchTo(ctx, def.Key); err != nil {
			c.log.Warn("fallback switch failed", append(c.state.logFields(), zap.Error(err))...)
		}
		c.notify.Toast("Wallet connected", SeveritySuccess)
		return nil
	}

	c.notify.LoadingDone()
	if !c.switcher.activate(ctx, gen, network) {
		return nil
	}
	c.notify.Toast("Wallet connected", SeveritySuccess)
	return nil
}

func (c *ConnectionManager) fail(err *Error) error {
	c.notify.LoadingDone()
	c.log.Warn("connect failed", append(c.state.logFields(), zap.Error(err))...)
	c.notify.Toast("Connection failed: "+causeMessage(err), SeverityError)
	return err
}

// classifyProvider maps a provider failure to a session error kind.
func classifyProvider(err error, op string) *Error {
	if provider.IsUserRejected(err) {
		return newError(UserRejected, op, err)
	}
	return newError(ProviderError, op, err)
}

func busy(notify Notifier, op string) error {
	notify.Toast("Another operation is in progress", SeverityWarning)
	return newError(Busy, op, nil)
}
