package cli

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/config"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/logging"
	"github.com/yolodolo42/jpycli/internal/provider"
	"github.com/yolodolo42/jpycli/internal/session"
	"github.com/yolodolo42/jpycli/internal/wallet"
	"go.uber.org/zap"
)

// app is everything one command invocation needs, built from the loaded config.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *chain.Registry
	client   *chain.Client
	keystore *wallet.KeystoreManager
	kv       *history.SQLiteKV
	history  *history.Store
	provider *provider.Local
	wallet   *session.Wallet
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newApp wires the session core over the keystore provider. The caller owns Close.
func newApp(approver provider.Approver, notifier session.Notifier) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("rpc.overrides: %w", err)
	}

	ks, err := wallet.NewKeystoreManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}

	kv, err := history.OpenSQLiteKV(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	client := chain.NewClient(registry, chain.ClientOptions{
		DialTimeout: cfg.RPC.Timeout,
		RateLimit:   cfg.RPC.RateLimit,
	})

	local, err := provider.NewLocal(provider.LocalOptions{
		Keystore:    ks,
		Chains:      client,
		Approver:    approver,
		KnownChains: cfg.KnownChainIDs(),
		Account:     cfg.PreferredAccount(),
		SendTimeout: cfg.RPC.Timeout,
		Logger:      log.Named("provider"),
	})
	if err != nil {
		client.Close()
		_ = kv.Close()
		return nil, err
	}

	store := history.NewStore(kv, log.Named("history"))
	w := session.New(session.Options{
		Registry: registry,
		Provider: local,
		History:  store,
		Notifier: notifier,
		Logger:   log,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		client:   client,
		keystore: ks,
		kv:       kv,
		history:  store,
		provider: local,
		wallet:   w,
	}, nil
}

// connect connects the session and moves it to network, or to the configured
// network when empty.
func (a *app) connect(ctx context.Context, network string) error {
	if network == "" {
		network = a.cfg.Network
	}
	if _, ok := a.registry.Get(network); !ok {
		return fmt.Errorf("unknown network %q", network)
	}
	if err := a.wallet.Connect(ctx); err != nil {
		return err
	}
	if a.wallet.State().NetworkKey == network {
		return nil
	}
	return a.wallet.SwitchTo(ctx, network)
}

func (a *app) Close() {
	a.client.Close()
	if err := a.kv.Close(); err != nil {
		a.log.Warn("failed to close history", zap.Error(err))
	}
	_ = a.log.Sync()
}
