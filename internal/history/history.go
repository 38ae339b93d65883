// Package history keeps the local ledger of token transfer attempts.
package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yolodolo42/jpycli/internal/chain"
	"go.uber.org/zap"
)

// StorageKey is the fixed key the whole history is persisted under.
const StorageKey = "jpyc_transactions"

// Kind of a recorded transaction.
type Kind string

const KindTransfer Kind = "transfer"

// Status is the on-chain outcome of a recorded transaction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is one transfer attempt that produced a transaction hash.
type Record struct {
	Hash      string `json:"hash"`
	Kind      Kind   `json:"type"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	Network   string `json:"network"`
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Store is the most-recent-first transfer ledger, persisted in full on every append.
type Store struct {
	kv  KV
	log *zap.Logger

	// writeMu orders persists so a later snapshot is never overwritten by an earlier one.
	writeMu sync.Mutex
	mu      sync.Mutex
	records []Record
}

// NewStore creates an empty store over kv. Call Load to read persisted history.
func NewStore(kv KV, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, log: log}
}

// Load replaces the in-memory history with the persisted one. Missing or unreadable
// data yields an empty history; Load never fails.
func (s *Store) Load() []Record {
	records := s.read()

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	return cloneRecords(records)
}

func (s *Store) read() []Record {
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		s.log.Warn("history read failed, starting empty", zap.Error(err))
		return nil
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}

	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.log.Warn("history is corrupt, starting empty", zap.Error(err))
		return nil
	}
	return records
}

// Append inserts record at the head and persists the full history. The in-memory
// history keeps the record even if persisting fails.
func (s *Store) Append(record Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.records = append([]Record{record}, s.records...)
	snapshot := cloneRecords(s.records)
	s.mu.Unlock()

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Set(StorageKey, string(raw)); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// All returns the history, most recent first.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	copy(out, in)
	return out
}

// ExplorerTxURL returns the block explorer link for a record's transaction.
func ExplorerTxURL(registry *chain.Registry, r Record) (string, error) {
	network, ok := registry.Get(r.Network)
	if !ok {
		return "", fmt.Errorf("unknown network %q", r.Network)
	}
	base := strings.TrimRight(network.ExplorerURL(), "/")
	if base == "" {
		return "", fmt.Errorf("network %s has no block explorer", network.Key)
	}
	return base + "/tx/" + r.Hash, nil
}
