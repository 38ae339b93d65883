package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Endpoint is the RPC configuration of one chain known to the client.
type Endpoint struct {
	Name    string
	ChainID *big.Int
	RPCURLs []string
}

// ClientOptions tunes dialing and request pacing.
type ClientOptions struct {
	DialTimeout time.Duration
	// RateLimit caps requests per second per chain; zero disables limiting.
	RateLimit float64
	// PollInterval is the receipt polling period used by WaitMined.
	PollInterval time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// Client manages RPC connections to multiple EVM chains, keyed by chain id.
type Client struct {
	opts      ClientOptions
	endpoints map[string]*Endpoint
	clients   map[string]*ethclient.Client
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
}

// NewClient creates a client that knows the endpoints of every registry network.
func NewClient(registry *Registry, opts ClientOptions) *Client {
	c := &Client{
		opts:      opts.withDefaults(),
		endpoints: make(map[string]*Endpoint),
		clients:   make(map[string]*ethclient.Client),
		limiters:  make(map[string]*rate.Limiter),
	}
	if registry != nil {
		for _, n := range registry.Networks() {
			c.AddEndpoint(&Endpoint{Name: n.ChainName, ChainID: n.ChainID, RPCURLs: n.RPCURLs})
		}
	}
	return c
}

// AddEndpoint adds or replaces the endpoint for a chain. An open connection to the
// previous endpoint is closed.
func (c *Client) AddEndpoint(ep *Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ep.ChainID.String()
	if old, ok := c.clients[key]; ok {
		old.Close()
		delete(c.clients, key)
	}
	c.endpoints[key] = ep
	if c.opts.RateLimit > 0 {
		burst := int(c.opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiters[key] = rate.NewLimiter(rate.Limit(c.opts.RateLimit), burst)
	}
}

// HasEndpoint reports whether the chain has a configured endpoint.
func (c *Client) HasEndpoint(chainID *big.Int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.endpoints[chainID.String()]
	return ok
}

// getClient returns an ethclient for the chain, dialing on first use.
// Holds the lock for the whole dial so concurrent callers share one connection.
func (c *Client) getClient(ctx context.Context, chainID *big.Int) (*ethclient.Client, error) {
	c.mu.Lock()
	key := chainID.String()
	ep, ok := c.endpoints[key]
	limiter := c.limiters[key]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("no endpoint for chain %s", key)
	}

	client, exists := c.clients[key]
	if !exists {
		var err error
		client, err = c.dial(ep)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.clients[key] = client
	}
	c.mu.Unlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return client, nil
}

func (c *Client) dial(ep *Endpoint) (*ethclient.Client, error) {
	var lastErr error
	for _, rpcURL := range ep.RPCURLs {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
		client, err := ethclient.DialContext(ctx, rpcURL)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		// Verify chain ID
		ctx, cancel = context.WithTimeout(context.Background(), c.opts.DialTimeout)
		chainID, err := client.ChainID(ctx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		if chainID.Cmp(ep.ChainID) != 0 {
			client.Close()
			lastErr = fmt.Errorf("chain ID mismatch: expected %s, got %s", ep.ChainID, chainID)
			continue
		}
		return client, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no RPC URLs configured")
	}
	return nil, fmt.Errorf("failed to connect to %s: %w", ep.Name, lastErr)
}

// GetBalance returns the native balance of an address.
func (c *Client) GetBalance(ctx context.Context, chainID *big.Int, address common.Address) (*big.Int, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, address, nil)
}

// GetNonce returns the pending nonce for an address.
func (c *Client) GetNonce(ctx context.Context, chainID *big.Int, address common.Address) (uint64, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, address)
}

// EstimateGas estimates gas for a call.
func (c *Client) EstimateGas(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

// SuggestGasPrice returns the suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

// SuggestGasTipCap returns the suggested EIP-1559 tip cap.
func (c *Client) SuggestGasTipCap(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasTipCap(ctx)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, chainID *big.Int, tx *types.Transaction) error {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// CallContract executes a read-only call against the latest block.
func (c *Client) CallContract(ctx context.Context, chainID *big.Int, msg ethereum.CallMsg) ([]byte, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, nil)
}

// WaitMined polls until the transaction has a receipt or ctx is done.
func (c *Client) WaitMined(ctx context.Context, chainID *big.Int, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		// Not yet mined, keep waiting
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes all client connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[string]*ethclient.Client)
}
