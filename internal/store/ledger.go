package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// LedgerRow is one finished target as recorded in the outcome ledger.
type LedgerRow struct {
	// RunID identifies the harvest run that produced the outcome.
	RunID uuid.UUID
	City  string
	Hotel string
	// SeedURL is the first page of the target's listing.
	SeedURL    string
	Status     harvest.OutcomeStatus
	Records    int
	Pages      int
	Error      string
	FinishedAt time.Time
}

// OutcomeLedger persists per-target outcomes for later inspection.
type OutcomeLedger interface {
	// RecordOutcome inserts the row, replacing any previous row for the
	// same run and target.
	RecordOutcome(ctx context.Context, row LedgerRow) error
}
