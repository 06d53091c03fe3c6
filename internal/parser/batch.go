package parser

import (
	"context"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"golang.org/x/sync/errgroup"
)

// Failure records a message that did not yield a transaction.
type Failure struct {
	Err    error
	Sender string
	Reason string
	Index  int
}

// BatchResult is the outcome of ParseAll.
type BatchResult struct {
	// Transactions holds successful parses in input order.
	Transactions []*model.ParsedTransaction
	// Failures holds skipped messages in input order.
	Failures []Failure
}

// Skipped returns the number of messages that failed to parse.
func (r BatchResult) Skipped() int {
	return len(r.Failures)
}

// ParseAll parses msgs on up to workers goroutines. A failing message never
// affects the others; only cancellation of ctx stops the batch early, in which
// case the partial result is returned with ctx's error.
func (p *Parser) ParseAll(ctx context.Context, msgs []model.SMS, workers int) (BatchResult, error) {
	if workers < 1 {
		workers = 1
	}

	// Trigger the one-time rule load before fanning out.
	_, _ = p.document(ctx)

	txns := make([]*model.ParsedTransaction, len(msgs))
	errs := make([]error, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range msgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			txns[i], errs[i] = p.Parse(gctx, msgs[i])
			return nil
		})
	}
	waitErr := g.Wait()
	if waitErr == nil {
		waitErr = ctx.Err()
	}

	var result BatchResult
	for i := range msgs {
		switch {
		case txns[i] != nil:
			result.Transactions = append(result.Transactions, txns[i])
		case errs[i] != nil:
			result.Failures = append(result.Failures, Failure{
				Index:  i,
				Sender: msgs[i].Sender,
				Reason: Reason(errs[i]),
				Err:    errs[i],
			})
		}
	}

	common.LogInfo("Parsed SMS batch", common.Fields{
		"messages":     len(msgs),
		"transactions": len(result.Transactions),
		"skipped":      result.Skipped(),
		"workers":      workers,
	})

	return result, waitErr
}
