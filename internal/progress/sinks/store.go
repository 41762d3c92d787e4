package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/progress"
	"github.com/JakeFAU/review-harvester/internal/store"
)

// StoreSink writes one ledger row per finished target.
type StoreSink struct {
	ledger store.OutcomeLedger
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided ledger.
func NewStoreSink(ledger store.OutcomeLedger, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{ledger: ledger, logger: logger}
}

// Consume records target-end events and ignores the rest. The first ledger
// error aborts the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.ledger == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Stage.IsTargetEnd() {
			continue
		}
		row := store.LedgerRow{
			RunID:      evt.RunUUID(),
			City:       evt.City,
			Hotel:      evt.Hotel,
			SeedURL:    evt.URL,
			Status:     outcomeStatus(evt.Stage),
			Records:    int(evt.Records),
			Pages:      int(evt.Pages),
			Error:      evt.Note,
			FinishedAt: evt.TS,
		}
		if err := s.ledger.RecordOutcome(ctx, row); err != nil {
			return fmt.Errorf("record outcome %s/%s: %w", evt.City, evt.Hotel, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func outcomeStatus(stage progress.Stage) harvest.OutcomeStatus {
	switch stage {
	case progress.StageTargetDone:
		return harvest.OutcomeDone
	case progress.StageTargetEmpty:
		return harvest.OutcomeEmpty
	default:
		return harvest.OutcomeFailed
	}
}
