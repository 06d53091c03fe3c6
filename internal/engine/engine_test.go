package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Veraticus/spice-sms/internal/categorize"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/parser"
	"github.com/Veraticus/spice-sms/internal/rules"
	"github.com/Veraticus/spice-sms/internal/storage"
	"github.com/Veraticus/spice-sms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, config Config) (*ImportEngine, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	p := parser.New(rules.NewBankLoader(rules.EmbeddedBankRules()), parser.WithNormalizationStore(db.Storage))
	c := categorize.New(rules.NewMerchantLoader(rules.EmbeddedMerchantRules()), categorize.WithMappingStore(db.Storage))
	return NewWithConfig(db.Storage, p, c, config), db
}

func TestImport_SampleMessages(t *testing.T) {
	e, db := newTestEngine(t, Config{Workers: 2, BatchSize: 10})
	ctx := context.Background()

	stats, err := e.Import(ctx, testutil.SampleMessages())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Received)
	assert.Equal(t, 2, stats.Parsed)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Duplicates)
	assert.Equal(t, []string{parser.ReasonAmountNotFound, parser.ReasonReferenceNotFound}, stats.Reasons())
	assert.Equal(t, 2, db.MustCount())

	state, err := db.Storage.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusCompleted, state.Status)
	assert.Equal(t, testutil.SampleTimestamp+3000, state.LastSMSTimestamp)
	assert.Equal(t, 2, state.TotalTransactions)
	assert.Equal(t, 2, state.TotalSkipped)
	assert.True(t, state.LastFullSync.IsZero())

	txns, err := db.Storage.GetTransactions(ctx, storage.TransactionFilter{})
	require.NoError(t, err)
	categories := map[string]string{}
	for _, txn := range txns {
		categories[txn.NormalizedMerchant] = txn.Category
	}
	assert.Equal(t, "Food & Dining", categories["SWIGGY BANGALORE"])
}

func TestImport_AppliesMerchantMappings(t *testing.T) {
	e, db := newTestEngine(t, Config{Workers: 1, BatchSize: 10})
	ctx := context.Background()

	require.NoError(t, db.Storage.SaveMapping(ctx, &model.MerchantMapping{
		Alias:          "SWIGGY BANGALORE",
		NormalizedName: "SWIGGY",
		Category:       "Groceries",
	}))

	_, err := e.Import(ctx, testutil.SampleMessages())
	require.NoError(t, err)

	txns, err := db.Storage.GetTransactions(ctx, storage.TransactionFilter{})
	require.NoError(t, err)
	categories := map[string]string{}
	for _, txn := range txns {
		categories[txn.NormalizedMerchant] = txn.Category
	}
	assert.Equal(t, "Groceries", categories["SWIGGY"])

	mapping, err := db.Storage.GetMapping(ctx, "SWIGGY BANGALORE")
	require.NoError(t, err)
	assert.Equal(t, 1, mapping.UseCount)
}

func TestImport_IsIncremental(t *testing.T) {
	e, db := newTestEngine(t, Config{Workers: 1, BatchSize: 1})
	ctx := context.Background()

	_, err := e.Import(ctx, testutil.SampleMessages())
	require.NoError(t, err)

	// The same dump again: nothing is newer than the last sync.
	stats, err := e.Import(ctx, testutil.SampleMessages())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Stale)
	assert.Zero(t, stats.Parsed)
	assert.Equal(t, 2, db.MustCount())

	// One new message arrives.
	msgs := append(testutil.SampleMessages(), model.SMS{
		Sender:    "HDFCBK",
		Body:      "Rs.75 debited from a/c for UBER INDIA on 02-01-24. Ref No 555666777",
		Timestamp: testutil.SampleTimestamp + 60_000,
	})
	stats, err = e.Import(ctx, msgs)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Stale)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 3, db.MustCount())

	state, err := db.Storage.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, state.TotalTransactions)
}

func TestImport_FullReimportDeduplicates(t *testing.T) {
	e, db := newTestEngine(t, Config{Workers: 4, BatchSize: 3, Full: true})
	ctx := context.Background()

	_, err := e.Import(ctx, testutil.SampleMessages())
	require.NoError(t, err)

	stats, err := e.Import(ctx, testutil.SampleMessages())
	require.NoError(t, err)
	assert.Zero(t, stats.Stale)
	assert.Equal(t, 2, stats.Parsed)
	assert.Zero(t, stats.Inserted)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 2, db.MustCount())

	state, err := db.Storage.GetSyncState(ctx)
	require.NoError(t, err)
	assert.False(t, state.LastFullSync.IsZero())
	assert.Zero(t, state.TotalTransactions, "a full run recounts only new rows")
}

func TestImport_ProgressAndFailureIndexes(t *testing.T) {
	e, _ := newTestEngine(t, Config{Workers: 2, BatchSize: 2})

	var calls [][2]int
	e.OnProgress(func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})

	// Reverse order: the engine sorts by timestamp before batching.
	msgs := testutil.SampleMessages()
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	stats, err := e.Import(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{2, 4}, {4, 4}}, calls)
	require.Len(t, stats.Failures, 2)
	assert.Equal(t, 1, stats.Failures[0].Index)
	assert.Equal(t, "AD-SHOPZ", stats.Failures[0].Sender)
	assert.Equal(t, 3, stats.Failures[1].Index)
	assert.Equal(t, "HDFCBK", stats.Failures[1].Sender)
}

func TestImport_EmptyInput(t *testing.T) {
	e, db := newTestEngine(t, DefaultConfig())

	stats, err := e.Import(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Received)

	state, err := db.Storage.GetSyncState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusIdle, state.Status)
}

func TestImport_CancelledRunIsResumable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := &cancellingParser{
		inner:   parser.New(rules.NewBankLoader(rules.EmbeddedBankRules())),
		failAt:  2,
		failErr: context.Canceled,
	}
	c := categorize.New(rules.NewMerchantLoader(rules.EmbeddedMerchantRules()))
	e := NewWithConfig(db.Storage, p, c, Config{Workers: 1, BatchSize: 2})
	ctx := context.Background()

	msgs := make([]model.SMS, 0, 6)
	for i := 0; i < 6; i++ {
		msgs = append(msgs, model.SMS{
			Sender:    "HDFCBK",
			Body:      fmt.Sprintf("Rs.%d debited from a/c for SHOP %d on 01-01-24. Ref No %09d", i+10, i, i),
			Timestamp: testutil.SampleTimestamp + int64(i),
		})
	}

	_, err := e.Import(ctx, msgs)
	require.ErrorIs(t, err, context.Canceled)

	state, err := db.Storage.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, state.Status)
	assert.Equal(t, testutil.SampleTimestamp+3, state.LastSMSTimestamp, "first two batches were checkpointed")
	assert.Equal(t, 4, db.MustCount())

	p.failAt = -1
	stats, err := e.Import(ctx, msgs)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Stale)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 6, db.MustCount())
}

func TestNewWithConfig_Defaults(t *testing.T) {
	e := NewWithConfig(nil, nil, nil, Config{})
	assert.Equal(t, DefaultConfig().Workers, e.config.Workers)
	assert.Equal(t, DefaultConfig().BatchSize, e.config.BatchSize)
}

func TestImport_SyncStateError(t *testing.T) {
	boom := errors.New("disk on fire")
	e := New(brokenStorage{err: boom}, nil, nil)

	_, err := e.Import(context.Background(), testutil.SampleMessages())
	assert.ErrorIs(t, err, boom)
}

func TestImport_CheckpointFailureMarksRunFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boom := errors.New("disk full")
	store := &flakyStorage{Storage: db.Storage, failAt: 1, err: boom}
	p := parser.New(rules.NewBankLoader(rules.EmbeddedBankRules()))
	c := categorize.New(rules.NewMerchantLoader(rules.EmbeddedMerchantRules()))
	e := NewWithConfig(store, p, c, Config{Workers: 1, BatchSize: 2})
	ctx := context.Background()

	_, err := e.Import(ctx, testutil.SampleMessages())
	require.ErrorIs(t, err, boom)

	state, err := db.Storage.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, state.Status)
}

// flakyStorage fails the SaveSyncState call with index failAt.
type flakyStorage struct {
	Storage
	err    error
	calls  int
	failAt int
}

func (f *flakyStorage) SaveSyncState(ctx context.Context, state *model.SyncState) error {
	defer func() { f.calls++ }()
	if f.calls == f.failAt {
		return f.err
	}
	return f.Storage.SaveSyncState(ctx, state)
}

// cancellingParser fails the batch with index failAt.
type cancellingParser struct {
	inner   Parser
	failErr error
	calls   int
	failAt  int
}

func (p *cancellingParser) ParseAll(ctx context.Context, msgs []model.SMS, workers int) (parser.BatchResult, error) {
	defer func() { p.calls++ }()
	if p.calls == p.failAt {
		return parser.BatchResult{}, p.failErr
	}
	return p.inner.ParseAll(ctx, msgs, workers)
}

type brokenStorage struct {
	Storage
	err error
}

func (b brokenStorage) GetSyncState(context.Context) (*model.SyncState, error) {
	return nil, b.err
}
