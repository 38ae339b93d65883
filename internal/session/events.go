package session

import (
	"context"
	"errors"

	"github.com/yolodolo42/jpycli/internal/provider"
	"go.uber.org/zap"
)

// EventBridge applies provider push events to the session. It is not gated by the
// busy flag; in-flight operations notice its changes through the generation.
type EventBridge struct {
	state    *State
	provider provider.Provider
	reader   *BalanceReader
	notify   Notifier
	log      *zap.Logger
}

// Run consumes provider events until ctx is done or the subscription ends.
func (b *EventBridge) Run(ctx context.Context) error {
	if b.provider == nil {
		return newError(ProviderUnavailable, "events", errors.New("no wallet provider configured"))
	}

	events := make(chan provider.Event, 16)
	sub := b.provider.SubscribeEvents(events)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case ev := <-events:
			b.Handle(ctx, ev)
		}
	}
}

// Handle applies one event. An emptied account set or any chain change resets the
// session; a new account replaces the current one and refreshes balances.
func (b *EventBridge) Handle(ctx context.Context, ev provider.Event) {
	switch ev.Kind {
	case provider.AccountsChanged:
		if len(ev.Accounts) == 0 {
			b.reset("accounts cleared")
			b.notify.Toast("Wallet disconnected", SeverityWarning)
			return
		}
		switch _, change := b.state.setAccount(ev.Accounts[0]); change {
		case accountNotConnected:
			b.log.Debug("account change while disconnected, ignoring", b.state.logFields()...)
			return
		case accountUnchanged:
			b.log.Debug("account unchanged, ignoring", b.state.logFields()...)
			return
		}
		b.log.Info("account changed", append(b.state.logFields(), zap.String("account", ev.Accounts[0].Hex()))...)
		// refresh reports its own failure.
		_ = b.reader.refresh(ctx)

	case provider.ChainChanged:
		chainID := ""
		if ev.ChainID != nil {
			chainID = ev.ChainID.String()
		}
		b.reset("chain changed to " + chainID)
		b.notify.Toast("Network changed in wallet, session reset. Reconnect to continue.", SeverityWarning)

	default:
		b.log.Debug("ignoring provider event", zap.Stringer("kind", ev.Kind))
	}
}

// reset returns the session to its startup state. History is kept as is: this
// process is its only writer, so the in-memory records stay authoritative.
func (b *EventBridge) reset(reason string) {
	prev := b.state.logFields()
	b.state.reset()
	b.log.Info("session reset", append(prev, zap.String("reason", reason), zap.String("next_session", b.state.Snapshot().SessionID))...)
}
