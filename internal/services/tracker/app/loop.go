package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pharmovia/incentives/internal/services/tracker/domain"
	"github.com/pharmovia/incentives/internal/services/tracker/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 25

	tracerName = "github.com/pharmovia/incentives/internal/services/tracker/app"
)

// Config controls the sale event processing loop.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Processor applies the tracker pipeline to one sale.
type Processor interface {
	ProcessSale(ctx context.Context, sale domain.Sale) (domain.Result, error)
}

// Loop drains the pending sale event feed and applies the tracker
// pipeline to each event. Events are always retired after one attempt:
// the core never retries a sale itself, and redelivery stays the event
// source's concern.
type Loop struct {
	feed      storage.EventFeed
	outcomes  storage.OutcomeStore
	processor Processor
	cfg       Config
	logf      func(string, ...any)
	tracer    trace.Tracer
}

// NewLoop constructs the processing loop. A nil logf defaults to the
// standard logger.
func NewLoop(feed storage.EventFeed, outcomes storage.OutcomeStore, processor Processor, cfg Config, logf func(string, ...any)) *Loop {
	if logf == nil {
		logf = log.Printf
	}
	return &Loop{
		feed:      feed,
		outcomes:  outcomes,
		processor: processor,
		cfg:       cfg.normalized(),
		logf:      logf,
		tracer:    otel.Tracer(tracerName),
	}
}

// Run polls the event feed until the context ends. Context cancellation
// is a normal shutdown, not an error.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.feed == nil || l.processor == nil {
		return errors.New("loop is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logf("drain sale events: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain processes pending sale events in batches until the feed is empty.
func (l *Loop) drain(ctx context.Context) error {
	for {
		pending, err := l.feed.ListPendingSales(ctx, l.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		for _, item := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			l.processOne(ctx, item)
		}
		if len(pending) < l.cfg.BatchSize {
			return nil
		}
	}
}

// processOne runs the pipeline for one event, records the outcome, and
// retires the event. Recording and retiring are separate writes; a crash
// between them redelivers the sale, which the accumulator's terminal-state
// guard absorbs.
func (l *Loop) processOne(ctx context.Context, item storage.PendingSale) {
	ctx, span := l.tracer.Start(ctx, "tracker.process_sale",
		trace.WithAttributes(attribute.String("sale.id", item.Sale.ID)),
	)
	defer span.End()

	result, err := l.processor.ProcessSale(ctx, item.Sale)
	outcome := storage.OutcomeRecord{
		SaleID:         item.Sale.ID,
		Outcome:        storage.OutcomeSucceeded,
		GoalsMatched:   result.GoalsMatched,
		GoalsCompleted: result.GoalsCompleted,
	}
	if err != nil {
		outcome.Outcome = storage.OutcomeFailed
		outcome.Detail = err.Error()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "process sale")
		l.logf("sale %s: process failed: %v", item.Sale.ID, err)
	}
	span.SetAttributes(
		attribute.String("sale.outcome", outcome.Outcome),
		attribute.Int("sale.goals_matched", result.GoalsMatched),
		attribute.Int("sale.goals_completed", result.GoalsCompleted),
	)

	if l.outcomes != nil {
		if recordErr := l.outcomes.RecordOutcome(ctx, outcome); recordErr != nil {
			l.logf("sale %s: record outcome: %v", item.Sale.ID, recordErr)
		}
	}
	if markErr := l.feed.MarkSaleEventProcessed(ctx, item.EventID); markErr != nil {
		l.logf("sale %s: mark event processed: %v", item.Sale.ID, markErr)
	}
}
