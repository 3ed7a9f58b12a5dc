// Package storage defines the persistence boundary for the tracker's
// event feed and processing-outcome ledger. The domain store contract for
// goals, reference data, and progress records lives in the domain package;
// implementations in subpackages satisfy both.
package storage

import (
	"context"
	"time"

	apperrors "github.com/pharmovia/incentives/internal/platform/errors"
	"github.com/pharmovia/incentives/internal/services/tracker/domain"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Outcome values recorded for one processed sale event.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// PendingSale is one unprocessed sale event joined with its sale payload.
type PendingSale struct {
	EventID   int64
	Sale      domain.Sale
	CreatedAt time.Time
}

// OutcomeRecord is one durable per-sale processing outcome.
type OutcomeRecord struct {
	ID             string
	SaleID         string
	Outcome        string
	Detail         string
	GoalsMatched   int
	GoalsCompleted int
	CreatedAt      time.Time
}

// EventFeed exposes the at-least-once sale event stream. Events stay
// pending until marked processed, so a crash between processing and
// marking redelivers the sale; downstream writes must stay idempotent.
type EventFeed interface {
	ListPendingSales(ctx context.Context, limit int) ([]PendingSale, error)
	MarkSaleEventProcessed(ctx context.Context, eventID int64) error
}

// OutcomeStore persists per-sale processing outcomes for operators.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, outcome OutcomeRecord) error
	ListOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error)
}
