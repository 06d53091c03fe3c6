// Package engine drives SMS imports: it parses, categorizes and stores
// messages in batches and records sync progress between runs.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"time"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/parser"
)

// ImportEngine orchestrates an import run.
type ImportEngine struct {
	storage     Storage
	parser      Parser
	categorizer Categorizer
	progress    func(done, total int)
	config      Config
}

// Config holds configuration options for the import engine.
type Config struct {
	Workers   int
	BatchSize int
	// Full re-imports every message instead of only those newer than the last sync.
	Full bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		BatchSize: 200,
	}
}

// Stats summarizes an import run.
type Stats struct {
	SkipReasons map[string]int
	// Failures index into the pending messages, oldest first.
	Failures    []parser.Failure
	Received    int
	Stale       int
	Parsed      int
	Inserted    int
	Duplicates  int
	Skipped     int
}

// Reasons returns the skip reasons sorted by name.
func (s Stats) Reasons() []string {
	return slices.Sorted(maps.Keys(s.SkipReasons))
}

// New creates a new import engine with the given dependencies.
func New(storage Storage, p Parser, categorizer Categorizer) *ImportEngine {
	return NewWithConfig(storage, p, categorizer, DefaultConfig())
}

// NewWithConfig creates a new import engine with custom configuration.
func NewWithConfig(storage Storage, p Parser, categorizer Categorizer, config Config) *ImportEngine {
	defaults := DefaultConfig()
	if config.Workers < 1 {
		config.Workers = defaults.Workers
	}
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}
	return &ImportEngine{
		storage:     storage,
		parser:      p,
		categorizer: categorizer,
		config:      config,
	}
}

// OnProgress registers a callback invoked after every batch.
func (e *ImportEngine) OnProgress(fn func(done, total int)) {
	e.progress = fn
}

// Import parses, categorizes and stores msgs. Unless Config.Full is set, messages
// at or before the last synced timestamp are ignored. Progress is checkpointed
// after every batch, so a cancelled run resumes where it stopped.
func (e *ImportEngine) Import(ctx context.Context, msgs []model.SMS) (Stats, error) {
	stats := Stats{
		Received:    len(msgs),
		SkipReasons: make(map[string]int),
	}

	state, err := e.storage.GetSyncState(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load sync state: %w", err)
	}

	pending := e.pending(msgs, state)
	stats.Stale = len(msgs) - len(pending)

	common.LogInfo("Starting import", common.Fields{
		"received":       len(msgs),
		"pending":        len(pending),
		"last_sms":       state.LastSMSTimestamp,
		"full":           e.config.Full,
		"workers":        e.config.Workers,
		"batch_size":     e.config.BatchSize,
		"previous_total": state.TotalTransactions,
	})

	if len(pending) == 0 {
		return stats, nil
	}

	if e.config.Full {
		state.TotalTransactions = 0
		state.TotalSkipped = 0
	}
	state.Status = model.SyncStatusRunning
	if err := e.storage.SaveSyncState(ctx, state); err != nil {
		return stats, fmt.Errorf("failed to save sync state: %w", err)
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		batch := pending[start:min(start+e.config.BatchSize, len(pending))]

		inserted, skipped, err := e.importBatch(ctx, batch, start, &stats)
		if err != nil {
			e.finish(ctx, state, model.SyncStatusFailed)
			return stats, err
		}

		state.LastSMSTimestamp = max(state.LastSMSTimestamp, batch[len(batch)-1].Timestamp)
		state.TotalTransactions += inserted
		state.TotalSkipped += skipped
		if err := e.storage.SaveSyncState(ctx, state); err != nil {
			e.finish(ctx, state, model.SyncStatusFailed)
			return stats, fmt.Errorf("failed to checkpoint sync state: %w", err)
		}

		if e.progress != nil {
			e.progress(start+len(batch), len(pending))
		}
	}

	if e.config.Full {
		state.LastFullSync = time.Now().UTC()
	}
	e.finish(ctx, state, model.SyncStatusCompleted)

	common.LogInfo("Import complete", common.Fields{
		"parsed":     stats.Parsed,
		"inserted":   stats.Inserted,
		"duplicates": stats.Duplicates,
		"skipped":    stats.Skipped,
	})

	return stats, nil
}

// pending returns the messages to import, oldest first.
func (e *ImportEngine) pending(msgs []model.SMS, state *model.SyncState) []model.SMS {
	out := make([]model.SMS, 0, len(msgs))
	for _, msg := range msgs {
		if e.config.Full || msg.Timestamp > state.LastSMSTimestamp {
			out = append(out, msg)
		}
	}
	slices.SortStableFunc(out, func(a, b model.SMS) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}

// importBatch handles one batch. offset is the batch's position in the pending
// messages and is added to failure indexes.
func (e *ImportEngine) importBatch(ctx context.Context, batch []model.SMS, offset int, stats *Stats) (inserted, skipped int, err error) {
	result, err := e.parser.ParseAll(ctx, batch, e.config.Workers)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse batch: %w", err)
	}

	skipped = result.Skipped()
	stats.Skipped += skipped
	stats.Parsed += len(result.Transactions)
	for _, failure := range result.Failures {
		stats.SkipReasons[failure.Reason]++
		failure.Index += offset
		stats.Failures = append(stats.Failures, failure)
	}

	if len(result.Transactions) == 0 {
		return 0, skipped, nil
	}

	stored := make([]model.StoredTransaction, 0, len(result.Transactions))
	for _, txn := range result.Transactions {
		category := e.categorizer.Categorize(ctx, txn.NormalizedMerchant)
		stored = append(stored, model.StoredTransaction{
			ParsedTransaction:  *txn,
			Category:           category.CategoryName,
			CategoryConfidence: category.Confidence,
		})
	}

	inserted, err = e.storage.SaveTransactions(ctx, stored)
	if err != nil {
		return 0, skipped, fmt.Errorf("failed to save transactions: %w", err)
	}
	stats.Inserted += inserted
	stats.Duplicates += len(stored) - inserted

	if inserted > 0 {
		e.recordMappingUse(ctx, stored)
	}

	return inserted, skipped, nil
}

// recordMappingUse bumps the use count of every alias mapping that rewrote a
// merchant in the batch.
func (e *ImportEngine) recordMappingUse(ctx context.Context, stored []model.StoredTransaction) {
	aliases := make(map[string]struct{})
	for _, txn := range stored {
		alias := common.NormalizeMerchant(txn.RawMerchant)
		if alias != "" && alias != txn.NormalizedMerchant {
			aliases[alias] = struct{}{}
		}
	}

	for _, alias := range slices.Sorted(maps.Keys(aliases)) {
		if err := e.storage.IncrementMappingUse(ctx, alias); err != nil {
			common.LogWarn("Failed to record mapping use", common.Fields{
				"alias": alias,
				"error": err.Error(),
			})
		}
	}
}

func (e *ImportEngine) finish(ctx context.Context, state *model.SyncState, status model.SyncStatus) {
	state.Status = status
	// Progress must be recorded even when the run was cancelled.
	if err := e.storage.SaveSyncState(context.WithoutCancel(ctx), state); err != nil {
		common.LogError(err, "Failed to save sync state", common.Fields{"status": string(status)})
	}
}
