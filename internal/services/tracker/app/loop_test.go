package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pharmovia/incentives/internal/services/tracker/domain"
	"github.com/pharmovia/incentives/internal/services/tracker/storage"
	trackersqlite "github.com/pharmovia/incentives/internal/services/tracker/storage/sqlite"
)

type fakeFeed struct {
	mu      sync.Mutex
	pending []storage.PendingSale
	marked  []int64
	listErr error
}

func (f *fakeFeed) ListPendingSales(_ context.Context, limit int) ([]storage.PendingSale, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	batch := make([]storage.PendingSale, limit)
	copy(batch, f.pending[:limit])
	return batch, nil
}

func (f *fakeFeed) MarkSaleEventProcessed(_ context.Context, eventID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, eventID)
	remaining := f.pending[:0]
	for _, item := range f.pending {
		if item.EventID != eventID {
			remaining = append(remaining, item)
		}
	}
	f.pending = remaining
	return nil
}

type fakeOutcomes struct {
	mu      sync.Mutex
	records []storage.OutcomeRecord
}

func (f *fakeOutcomes) RecordOutcome(_ context.Context, outcome storage.OutcomeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, outcome)
	return nil
}

func (f *fakeOutcomes) ListOutcomes(context.Context, int) ([]storage.OutcomeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.OutcomeRecord(nil), f.records...), nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	sales   []domain.Sale
	results map[string]domain.Result
	errs    map[string]error
}

func (f *fakeProcessor) ProcessSale(_ context.Context, sale domain.Sale) (domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sales = append(f.sales, sale)
	if err, ok := f.errs[sale.ID]; ok {
		return domain.Result{}, err
	}
	return f.results[sale.ID], nil
}

func TestDrainProcessesAndRetiresEvents(t *testing.T) {
	feed := &fakeFeed{pending: []storage.PendingSale{
		{EventID: 1, Sale: domain.Sale{ID: "sale-1", UserID: "user-1"}},
		{EventID: 2, Sale: domain.Sale{ID: "sale-2", UserID: "user-1"}},
	}}
	outcomes := &fakeOutcomes{}
	processor := &fakeProcessor{results: map[string]domain.Result{
		"sale-1": {GoalsEvaluated: 1, GoalsMatched: 1},
		"sale-2": {GoalsEvaluated: 1, GoalsMatched: 1, GoalsCompleted: 1},
	}}
	loop := NewLoop(feed, outcomes, processor, Config{}, func(string, ...any) {})

	if err := loop.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(processor.sales) != 2 {
		t.Fatalf("processed = %d, want 2", len(processor.sales))
	}
	if len(feed.pending) != 0 {
		t.Fatalf("pending = %d, want 0", len(feed.pending))
	}
	if len(outcomes.records) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes.records))
	}
	if outcomes.records[0].Outcome != storage.OutcomeSucceeded {
		t.Fatalf("outcome = %q, want succeeded", outcomes.records[0].Outcome)
	}
	if outcomes.records[1].GoalsCompleted != 1 {
		t.Fatalf("goals completed = %d, want 1", outcomes.records[1].GoalsCompleted)
	}
}

func TestDrainRecordsFailureAndStillRetiresEvent(t *testing.T) {
	feed := &fakeFeed{pending: []storage.PendingSale{
		{EventID: 1, Sale: domain.Sale{ID: "sale-1"}},
	}}
	outcomes := &fakeOutcomes{}
	processor := &fakeProcessor{errs: map[string]error{
		"sale-1": domain.ErrSaleMissingUserID,
	}}
	loop := NewLoop(feed, outcomes, processor, Config{}, func(string, ...any) {})

	if err := loop.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(feed.pending) != 0 {
		t.Fatal("expected failed event to be retired, not retried")
	}
	if len(outcomes.records) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes.records))
	}
	record := outcomes.records[0]
	if record.Outcome != storage.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", record.Outcome)
	}
	if record.Detail == "" {
		t.Fatal("expected failure detail")
	}
}

func TestDrainPropagatesFeedError(t *testing.T) {
	feed := &fakeFeed{listErr: errors.New("storage offline")}
	loop := NewLoop(feed, &fakeOutcomes{}, &fakeProcessor{}, Config{}, func(string, ...any) {})

	if err := loop.drain(context.Background()); err == nil {
		t.Fatal("expected feed error to propagate")
	}
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	feed := &fakeFeed{pending: []storage.PendingSale{
		{EventID: 1, Sale: domain.Sale{ID: "sale-1"}},
	}}
	processor := &fakeProcessor{}
	loop := NewLoop(feed, &fakeOutcomes{}, processor, Config{}, func(string, ...any) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := loop.drain(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("drain = %v, want context.Canceled", err)
	}
	if len(processor.sales) != 0 {
		t.Fatal("expected no processing after cancellation")
	}
}

func TestRunRejectsUnconfiguredLoop(t *testing.T) {
	var loop *Loop
	if err := loop.Run(context.Background()); err == nil {
		t.Fatal("expected error for nil loop")
	}
	if err := (&Loop{}).Run(context.Background()); err == nil {
		t.Fatal("expected error for loop without dependencies")
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg := Config{}.normalized()
	if cfg.PollInterval != defaultPollInterval {
		t.Fatalf("poll interval = %v, want %v", cfg.PollInterval, defaultPollInterval)
	}
	if cfg.BatchSize != defaultBatchSize {
		t.Fatalf("batch size = %d, want %d", cfg.BatchSize, defaultBatchSize)
	}

	custom := Config{PollInterval: defaultPollInterval * 2, BatchSize: 7}.normalized()
	if custom.PollInterval != defaultPollInterval*2 || custom.BatchSize != 7 {
		t.Fatalf("normalized overrode explicit values: %+v", custom)
	}
}

func TestLoopAgainstSQLiteStore(t *testing.T) {
	store, err := trackersqlite.Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ctx := context.Background()

	if err := store.PutUser(ctx, domain.User{ID: "user-1", PharmacyID: "pharm-1"}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	if err := store.PutProduct(ctx, domain.Product{ID: "prod-1", Brand: "Acme", Category: "otc"}); err != nil {
		t.Fatalf("put product: %v", err)
	}
	if err := store.PutPharmacy(ctx, domain.Pharmacy{ID: "pharm-1", Zone: "north", ClientCategory: "hospital"}); err != nil {
		t.Fatalf("put pharmacy: %v", err)
	}
	if err := store.PutGoal(ctx, domain.Goal{
		ID:           "goal-1",
		IsActive:     true,
		Metric:       domain.MetricQuantity,
		TargetValue:  10,
		RewardPoints: 50,
	}); err != nil {
		t.Fatalf("put goal: %v", err)
	}
	for _, sale := range []domain.Sale{
		{ID: "sale-1", UserID: "user-1", PharmacyID: "pharm-1", ProductID: "prod-1", Quantity: 4, TotalPrice: 40},
		{ID: "sale-2", UserID: "user-1", PharmacyID: "pharm-1", ProductID: "prod-1", Quantity: 7, TotalPrice: 70},
	} {
		if err := store.PutSale(ctx, sale); err != nil {
			t.Fatalf("put sale %s: %v", sale.ID, err)
		}
	}

	service := domain.NewService(store, func(string, ...any) {})
	loop := NewLoop(store, store, service, Config{}, func(string, ...any) {})
	if err := loop.drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	progress, err := store.GetProgress(ctx, "user-1", "goal-1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if progress.ProgressValue != 11 || progress.Status != domain.StatusCompleted {
		t.Fatalf("progress = %+v, want 11 completed", progress)
	}

	user, err := store.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Points != 50 {
		t.Fatalf("points = %d, want 50", user.Points)
	}

	pending, err := store.ListPendingSales(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %d, want 0", len(pending))
	}

	outcomes, err := store.ListOutcomes(ctx, 10)
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
}
