// Package session is the wallet session core: connection, active network, token
// binding, balances and transfers, kept consistent across asynchronous and
// interruptible provider calls.
package session

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/token"
	"go.uber.org/zap"
)

// Display precision of balances.
const (
	TokenDisplayDecimals  = 2
	NativeDisplayDecimals = 4
)

// Balances are the last balances read for the current account and network.
type Balances struct {
	Token  *big.Int
	Native *big.Int
}

// Valid reports whether both balances have been read.
func (b Balances) Valid() bool {
	return b.Token != nil && b.Native != nil
}

// TokenDisplay renders the token balance with two decimals.
func (b Balances) TokenDisplay() string {
	if b.Token == nil {
		return "-"
	}
	return chain.FormatUnits(b.Token, chain.TokenDecimals, TokenDisplayDecimals)
}

// NativeDisplay renders the native balance with four decimals.
func (b Balances) NativeDisplay() string {
	if b.Native == nil {
		return "-"
	}
	return chain.FormatUnits(b.Native, chain.TokenDecimals, NativeDisplayDecimals)
}

// Snapshot is a consistent copy of the session state at one instant.
type Snapshot struct {
	Connected  bool
	Account    *common.Address
	NetworkKey string
	Network    *chain.Network
	Binding    *token.Binding
	Balances   Balances
	Generation uint64
	SessionID  string
}

// State is the single owner of session data. Account and network are only set while
// connected. Every reset and account change bumps the generation so results of
// operations started earlier can be recognised as stale.
type State struct {
	mu         sync.RWMutex
	connected  bool
	account    common.Address
	network    *chain.Network
	binding    *token.Binding
	balances   Balances
	generation uint64
	sessionID  string

	busy atomic.Bool
}

// NewState returns a disconnected state.
func NewState() *State {
	return &State{sessionID: uuid.NewString()}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Connected:  s.connected,
		Network:    s.network,
		Binding:    s.binding,
		Balances:   s.balances,
		Generation: s.generation,
		SessionID:  s.sessionID,
	}
	if s.connected {
		acct := s.account
		snap.Account = &acct
	}
	if s.network != nil {
		snap.NetworkKey = s.network.Key
	}
	return snap
}

// Generation returns the current generation.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *State) tryBegin() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *State) end() {
	s.busy.Store(false)
}

// Busy reports whether a guarded operation is in flight.
func (s *State) Busy() bool {
	return s.busy.Load()
}

// setConnected starts a new connection epoch for account.
func (s *State) setConnected(account common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	s.account = account
	s.network = nil
	s.binding = nil
	s.balances = Balances{}
	s.generation++
	return s.generation
}

// accountChange is the outcome of setAccount.
type accountChange int

const (
	accountNotConnected accountChange = iota
	accountUnchanged
	accountReplaced
)

// setAccount replaces the account of a live connection. Balances of the previous
// account are dropped. Re-announcing the current account changes nothing.
func (s *State) setAccount(account common.Address) (uint64, accountChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.connected:
		return s.generation, accountNotConnected
	case s.account == account:
		return s.generation, accountUnchanged
	}
	s.account = account
	s.balances = Balances{}
	s.generation++
	return s.generation, accountReplaced
}

// activate makes network the active one with a fresh binding, unless gen is stale.
func (s *State) activate(gen uint64, network *chain.Network, binding *token.Binding) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || !s.connected {
		return false
	}
	s.network = network
	s.binding = binding
	s.balances = Balances{}
	return true
}

// applyBalances stores balances read under gen with binding. Results read against a
// binding that has since been replaced are discarded.
func (s *State) applyBalances(gen uint64, binding *token.Binding, b Balances) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || binding != s.binding {
		return false
	}
	s.balances = b
	return true
}

// reset returns the state to disconnected and starts a new session id.
func (s *State) reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.account = common.Address{}
	s.network = nil
	s.binding = nil
	s.balances = Balances{}
	s.generation++
	s.sessionID = uuid.NewString()
	return s.generation
}

// logFields identifies the session in log lines.
func (s *State) logFields() []zap.Field {
	snap := s.Snapshot()
	fields := []zap.Field{
		zap.String("session", snap.SessionID),
		zap.Uint64("generation", snap.Generation),
	}
	if snap.NetworkKey != "" {
		fields = append(fields, zap.String("network", snap.NetworkKey))
	}
	return fields
}
