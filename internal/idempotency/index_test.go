package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-pay/ledger_pay/internal/ledger"
	"github.com/ledger-pay/ledger_pay/internal/logging"
	"github.com/ledger-pay/ledger_pay/internal/money"
)

type stubLookup struct {
	txs   map[string]ledger.Transaction
	calls int
}

func (s *stubLookup) FindByReference(_ context.Context, ref string) (ledger.Transaction, error) {
	s.calls++
	tx, ok := s.txs[ref]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func sampleTransaction(t *testing.T, ref string) ledger.Transaction {
	t.Helper()
	amount, err := money.FromString("100.00", "USD")
	require.NoError(t, err)
	after, err := money.Zero("USD").Add(amount)
	require.NoError(t, err)
	return ledger.Transaction{
		ID:            42,
		WalletID:      uuid.New(),
		Type:          ledger.OpDeposit,
		Amount:        amount,
		BalanceBefore: money.Zero("USD"),
		BalanceAfter:  after,
		ReferenceID:   ref,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func newTestIndex(t *testing.T, lookup Lookup) (*Index, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, lookup, time.Hour, logging.Discard()), mr
}

func TestFindMissesUnknownReference(t *testing.T) {
	lookup := &stubLookup{txs: map[string]ledger.Transaction{}}
	idx, _ := newTestIndex(t, lookup)

	_, ok, err := idx.Find(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, lookup.calls)
}

func TestFindFallsThroughToStoreAndCaches(t *testing.T) {
	tx := sampleTransaction(t, "r1")
	lookup := &stubLookup{txs: map[string]ledger.Transaction{"r1": tx}}
	idx, _ := newTestIndex(t, lookup)
	ctx := context.Background()

	got, ok, err := idx.Find(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, 1, lookup.calls)

	// second lookup is served from the cache
	got, ok, err = idx.Find(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID, got.ID)
	assert.True(t, got.Amount.Equal(tx.Amount))
	assert.Equal(t, tx.WalletID, got.WalletID)
	assert.Equal(t, 1, lookup.calls)
}

func TestRecordThenFindSkipsStore(t *testing.T) {
	tx := sampleTransaction(t, "r2")
	lookup := &stubLookup{txs: map[string]ledger.Transaction{"r2": tx}}
	idx, _ := newTestIndex(t, lookup)
	ctx := context.Background()

	idx.Record(ctx, tx)

	got, ok, err := idx.Find(ctx, "r2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, 0, lookup.calls)
}

func TestFindFailsOpenWhenCacheIsDown(t *testing.T) {
	tx := sampleTransaction(t, "r3")
	lookup := &stubLookup{txs: map[string]ledger.Transaction{"r3": tx}}
	idx, mr := newTestIndex(t, lookup)

	mr.Close()

	got, ok, err := idx.Find(context.Background(), "r3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, 1, lookup.calls)
}

func TestCorruptCacheEntryFallsThrough(t *testing.T) {
	tx := sampleTransaction(t, "r4")
	lookup := &stubLookup{txs: map[string]ledger.Transaction{"r4": tx}}
	idx, mr := newTestIndex(t, lookup)

	require.NoError(t, mr.Set(keyPrefix+"r4", "not json"))

	got, ok, err := idx.Find(context.Background(), "r4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, 1, lookup.calls)
}

func TestNilCacheUsesStoreOnly(t *testing.T) {
	tx := sampleTransaction(t, "r5")
	lookup := &stubLookup{txs: map[string]ledger.Transaction{"r5": tx}}
	idx := New(nil, lookup, time.Hour, logging.Discard())

	got, ok, err := idx.Find(context.Background(), "r5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tx.ID, got.ID)

	idx.Record(context.Background(), tx) // must not panic without a cache
}
