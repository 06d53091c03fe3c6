package engine

import (
	"context"

	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/parser"
)

// Parser turns raw messages into transactions.
type Parser interface {
	ParseAll(ctx context.Context, msgs []model.SMS, workers int) (parser.BatchResult, error)
}

// Categorizer assigns a category to a normalized merchant.
type Categorizer interface {
	Categorize(ctx context.Context, merchant string) model.CategorizationResult
}

// Storage persists imported transactions and import progress.
type Storage interface {
	GetSyncState(ctx context.Context) (*model.SyncState, error)
	SaveSyncState(ctx context.Context, state *model.SyncState) error
	SaveTransactions(ctx context.Context, transactions []model.StoredTransaction) (int, error)
	IncrementMappingUse(ctx context.Context, alias string) error
}
