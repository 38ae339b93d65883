package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrency describes the gas token of a network.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Network describes a supported EVM network and the JPYC deployment on it.
// Networks are immutable once registered; callers must not mutate the slices.
type Network struct {
	Key               string
	ChainID           *big.Int
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
	TokenAddress      common.Address
	TokenSymbol       string
}

// ChainIDHex returns the 0x-prefixed hex chain id used by wallet RPC methods.
func (n *Network) ChainIDHex() string {
	return "0x" + n.ChainID.Text(16)
}

// ExplorerURL returns the primary block explorer base URL, or "" if none.
func (n *Network) ExplorerURL() string {
	if len(n.BlockExplorerURLs) == 0 {
		return ""
	}
	return n.BlockExplorerURLs[0]
}

// DefaultNetworks returns the supported networks in registry order.
// The first entry is the fallback used when a wallet sits on an unsupported chain.
func DefaultNetworks() []*Network {
	return []*Network{
		{
			Key:       "polygon",
			ChainID:   big.NewInt(137),
			ChainName: "Polygon Mainnet",
			NativeCurrency: NativeCurrency{
				Name:     "MATIC",
				Symbol:   "MATIC",
				Decimals: 18,
			},
			RPCURLs:           []string{"https://polygon-rpc.com"},
			BlockExplorerURLs: []string{"https://polygonscan.com"},
			TokenAddress:      common.HexToAddress("0x6AE7Dfc73E0dDE2aa99ac063DcF7e8A63265108c"),
			TokenSymbol:       "JPYC",
		},
		{
			Key:       "ethereum",
			ChainID:   big.NewInt(1),
			ChainName: "Ethereum Mainnet",
			NativeCurrency: NativeCurrency{
				Name:     "Ethereum",
				Symbol:   "ETH",
				Decimals: 18,
			},
			RPCURLs:           []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
			BlockExplorerURLs: []string{"https://etherscan.io"},
			TokenAddress:      common.HexToAddress("0x2370f9d504c7a6E775bf6E14B3F12846b594cD53"),
			TokenSymbol:       "JPYC",
		},
		{
			Key:       "avalanche",
			ChainID:   big.NewInt(43114),
			ChainName: "Avalanche C-Chain",
			NativeCurrency: NativeCurrency{
				Name:     "Avalanche",
				Symbol:   "AVAX",
				Decimals: 18,
			},
			RPCURLs:           []string{"https://api.avax.network/ext/bc/C/rpc"},
			BlockExplorerURLs: []string{"https://snowtrace.io"},
			TokenAddress:      common.HexToAddress("0x431D5dfF03120AFA4bDf332c61A6e1766eF37BDB"),
			TokenSymbol:       "JPYC",
		},
	}
}

// Registry is the fixed, ordered catalog of supported networks.
type Registry struct {
	networks []*Network
	byKey    map[string]*Network
	byChain  map[string]*Network // chain id decimal string -> network
}

// NewRegistry builds a registry. Keys and chain ids must be unique.
func NewRegistry(networks []*Network) (*Registry, error) {
	if len(networks) == 0 {
		return nil, fmt.Errorf("registry needs at least one network")
	}

	r := &Registry{
		networks: make([]*Network, 0, len(networks)),
		byKey:    make(map[string]*Network, len(networks)),
		byChain:  make(map[string]*Network, len(networks)),
	}
	for _, n := range networks {
		if n == nil || n.Key == "" || n.ChainID == nil {
			return nil, fmt.Errorf("network entry missing key or chain id")
		}
		if _, dup := r.byKey[n.Key]; dup {
			return nil, fmt.Errorf("duplicate network key: %s", n.Key)
		}
		cid := n.ChainID.String()
		if prev, dup := r.byChain[cid]; dup {
			return nil, fmt.Errorf("chain id %s registered twice (%s, %s)", cid, prev.Key, n.Key)
		}
		r.networks = append(r.networks, n)
		r.byKey[n.Key] = n
		r.byChain[cid] = n
	}
	return r, nil
}

// DefaultRegistry returns a registry over DefaultNetworks.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultNetworks())
	if err != nil {
		panic(fmt.Sprintf("default networks are invalid: %v", err))
	}
	return r
}

// Get returns the network registered under key.
func (r *Registry) Get(key string) (*Network, bool) {
	n, ok := r.byKey[key]
	return n, ok
}

// ByChainID returns the network with the given chain id.
func (r *Registry) ByChainID(chainID *big.Int) (*Network, bool) {
	if chainID == nil {
		return nil, false
	}
	n, ok := r.byChain[chainID.String()]
	return n, ok
}

// Default returns the first registered network.
func (r *Registry) Default() *Network {
	return r.networks[0]
}

// Networks returns the networks in registry order.
func (r *Registry) Networks() []*Network {
	out := make([]*Network, len(r.networks))
	copy(out, r.networks)
	return out
}

// Keys returns the network keys in registry order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.networks))
	for _, n := range r.networks {
		keys = append(keys, n.Key)
	}
	return keys
}

// WithRPCOverrides returns a copy of the registry where the listed networks use the
// given RPC URLs instead of the built-in ones. Unknown keys are an error.
func (r *Registry) WithRPCOverrides(overrides map[string][]string) (*Registry, error) {
	networks := make([]*Network, 0, len(r.networks))
	for _, n := range r.networks {
		cp := *n
		if urls, ok := overrides[n.Key]; ok && len(urls) > 0 {
			cp.RPCURLs = append([]string(nil), urls...)
		}
		networks = append(networks, &cp)
	}
	for key := range overrides {
		if _, ok := r.byKey[key]; !ok {
			return nil, fmt.Errorf("rpc override for unknown network: %s", key)
		}
	}
	return NewRegistry(networks)
}
