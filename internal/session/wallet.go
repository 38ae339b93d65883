package session

import (
	"context"
	"time"

	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/provider"
	"go.uber.org/zap"
)

// Options wires a Wallet.
type Options struct {
	Registry *chain.Registry
	// Provider may be nil; Connect then fails with ProviderUnavailable.
	Provider provider.Provider
	History  *history.Store
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Wallet is the session core assembled from its components.
type Wallet struct {
	state    *State
	registry *chain.Registry
	history  *history.Store

	connection *ConnectionManager
	switcher   *NetworkSwitcher
	reader     *BalanceReader
	transfers  *TransferExecutor
	bridge     *EventBridge
}

// New builds a disconnected wallet and loads the persisted history.
func New(opts Options) *Wallet {
	if opts.Registry == nil {
		opts.Registry = chain.DefaultRegistry()
	}
	if opts.History == nil {
		opts.History = history.NewStore(history.NewMemoryKV(), opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	state := NewState()
	log := opts.Logger.Named("session")

	reader := &BalanceReader{state: state, provider: opts.Provider, notify: opts.Notifier, log: log}
	switcher := &NetworkSwitcher{
		state: state, provider: opts.Provider, registry: opts.Registry,
		reader: reader, notify: opts.Notifier, log: log,
	}
	w := &Wallet{
		state:    state,
		registry: opts.Registry,
		history:  opts.History,
		switcher: switcher,
		reader:   reader,
		connection: &ConnectionManager{
			state: state, provider: opts.Provider, registry: opts.Registry,
			switcher: switcher, notify: opts.Notifier, log: log,
		},
		transfers: &TransferExecutor{
			state: state, provider: opts.Provider, reader: reader,
			notify: opts.Notifier, log: log, now: opts.Now,
		},
		bridge: &EventBridge{
			state: state, provider: opts.Provider, reader: reader,
			notify: opts.Notifier, log: log,
		},
	}

	records := opts.History.Load()
	log.Debug("history loaded", append(state.logFields(), zap.Int("records", len(records)))...)
	return w
}

// Connect requests accounts from the provider and activates its network.
func (w *Wallet) Connect(ctx context.Context) error {
	return w.connection.Connect(ctx)
}

// SwitchTo moves the wallet to the network with the given registry key.
func (w *Wallet) SwitchTo(ctx context.Context, networkKey string) error {
	return w.switcher.SwitchTo(ctx, networkKey)
}

// Refresh re-reads the token and native balances of the connected account.
func (w *Wallet) Refresh(ctx context.Context) error {
	return w.reader.Refresh(ctx)
}

// Transfer sends amount JPYC to recipient and records the outcome in history.
func (w *Wallet) Transfer(ctx context.Context, recipient, amount string) (*history.Record, error) {
	return w.transfers.Transfer(ctx, recipient, amount)
}

// RunEvents applies provider events until ctx is done. Run it in its own goroutine.
func (w *Wallet) RunEvents(ctx context.Context) error {
	return w.bridge.Run(ctx)
}

// HandleEvent applies a single provider event synchronously.
func (w *Wallet) HandleEvent(ctx context.Context, ev provider.Event) {
	w.bridge.Handle(ctx, ev)
}

// State returns a snapshot of the session.
func (w *Wallet) State() Snapshot {
	return w.state.Snapshot()
}

// History returns the transfer history, most recent first.
func (w *Wallet) History() []history.Record {
	return w.history.All()
}

// Registry returns the supported networks.
func (w *Wallet) Registry() *chain.Registry {
	return w.registry
}
