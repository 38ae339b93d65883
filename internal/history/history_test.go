package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/testutil"
	"go.uber.org/zap/zaptest"
)

type brokenKV struct {
	getErr error
	setErr error
	stored map[string]string
}

func (b *brokenKV) Get(key string) (string, bool, error) {
	if b.getErr != nil {
		return "", false, b.getErr
	}
	v, ok := b.stored[key]
	return v, ok, nil
}

func (b *brokenKV) Set(key, value string) error {
	if b.setErr != nil {
		return b.setErr
	}
	if b.stored == nil {
		b.stored = map[string]string{}
	}
	b.stored[key] = value
	return nil
}

func record(i int, status Status) Record {
	return Record{
		Hash:      fmt.Sprintf("0x%064x", i),
		Kind:      KindTransfer,
		To:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Amount:    fmt.Sprintf("%d.5", i),
		Status:    status,
		Timestamp: 1_700_000_000_000 + int64(i),
		Network:   "polygon",
	}
}

func TestStore_RoundTrip(t *testing.T) {
	kv, err := OpenSQLiteKVDSN(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	store := NewStore(kv, zaptest.NewLogger(t))
	assert.Empty(t, store.Load())

	const n = 5
	var appended []Record
	for i := 0; i < n; i++ {
		status := StatusSuccess
		if i%2 == 1 {
			status = StatusFailed
		}
		r := record(i, status)
		appended = append(appended, r)
		require.NoError(t, store.Append(r))
	}

	reloaded := NewStore(kv, zaptest.NewLogger(t)).Load()
	require.Len(t, reloaded, n)
	for i := 0; i < n; i++ {
		// most recent first
		assert.Equal(t, appended[n-1-i], reloaded[i])
	}
	assert.Equal(t, reloaded, store.All())
}

func TestStore_Load(t *testing.T) {
	t.Run("missing key is empty", func(t *testing.T) {
		store := NewStore(NewMemoryKV(), nil)
		assert.Empty(t, store.Load())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("corrupt data is empty", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(StorageKey, "{not json"))
		store := NewStore(kv, zaptest.NewLogger(t))
		assert.Empty(t, store.Load())
	})

	t.Run("read error is empty", func(t *testing.T) {
		store := NewStore(&brokenKV{getErr: errors.New("disk gone")}, zaptest.NewLogger(t))
		assert.Empty(t, store.Load())
	})

	t.Run("appends continue after corrupt load", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(StorageKey, "garbage"))
		store := NewStore(kv, nil)
		store.Load()

		require.NoError(t, store.Append(record(1, StatusSuccess)))
		assert.Len(t, NewStore(kv, nil).Load(), 1)
	})

	t.Run("uses wire field names", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(StorageKey, `[{"hash":"0x01","type":"transfer","to":"0x02","amount":"10","status":"failed","timestamp":1700000000000,"network":"avalanche"}]`))
		got := NewStore(kv, nil).Load()
		require.Len(t, got, 1)
		assert.Equal(t, Record{Hash: "0x01", Kind: KindTransfer, To: "0x02", Amount: "10", Status: StatusFailed, Timestamp: 1700000000000, Network: "avalanche"}, got[0])
		assert.Equal(t, int64(1700000000000), got[0].Time().UnixMilli())
	})
}

func TestStore_Append(t *testing.T) {
	t.Run("persist failure keeps record in memory", func(t *testing.T) {
		store := NewStore(&brokenKV{setErr: errors.New("read-only")}, nil)
		err := store.Append(record(1, StatusSuccess))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read-only")
		assert.Equal(t, 1, store.Len())
	})

	t.Run("All returns a copy", func(t *testing.T) {
		store := NewStore(NewMemoryKV(), nil)
		require.NoError(t, store.Append(record(1, StatusSuccess)))
		all := store.All()
		all[0].Status = StatusFailed
		assert.Equal(t, StatusSuccess, store.All()[0].Status)
	})
}

func TestSQLiteKV(t *testing.T) {
	t.Run("creates db file", func(t *testing.T) {
		dir := testutil.TempDir(t)
		kv, err := OpenSQLiteKV(dir)
		require.NoError(t, err)
		require.NoError(t, kv.Close())

		_, err = os.Stat(filepath.Join(dir, "wallet.db"))
		assert.NoError(t, err)
	})

	t.Run("get set overwrite", func(t *testing.T) {
		kv, err := OpenSQLiteKVDSN(":memory:")
		require.NoError(t, err)
		defer kv.Close()

		_, ok, err := kv.Get("k")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, kv.Set("k", "v1"))
		require.NoError(t, kv.Set("k", "v2"))
		v, ok, err := kv.Get("k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v2", v)
	})

	t.Run("persists across reopen", func(t *testing.T) {
		dir := testutil.TempDir(t)
		kv, err := OpenSQLiteKV(dir)
		require.NoError(t, err)
		require.NoError(t, kv.Set(StorageKey, "[]"))
		require.NoError(t, kv.Close())

		kv, err = OpenSQLiteKV(dir)
		require.NoError(t, err)
		defer kv.Close()
		v, ok, err := kv.Get(StorageKey)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "[]", v)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		kv, err := OpenSQLiteKVDSN(":memory:")
		require.NoError(t, err)
		defer kv.Close()
		assert.Error(t, kv.Set("", "v"))
	})

	t.Run("nil store", func(t *testing.T) {
		var kv *SQLiteKV
		assert.NoError(t, kv.Close())
		_, _, err := kv.Get("k")
		assert.Error(t, err)
	})
}

func TestExplorerTxURL(t *testing.T) {
	registry := chain.DefaultRegistry()

	t.Run("per network explorer", func(t *testing.T) {
		cases := map[string]string{
			"polygon":   "https://polygonscan.com/tx/0xabc",
			"ethereum":  "https://etherscan.io/tx/0xabc",
			"avalanche": "https://snowtrace.io/tx/0xabc",
		}
		for network, want := range cases {
			got, err := ExplorerTxURL(registry, Record{Hash: "0xabc", Network: network})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("unknown network", func(t *testing.T) {
		_, err := ExplorerTxURL(registry, Record{Hash: "0xabc", Network: "solana"})
		assert.Error(t, err)
	})
}
