package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Store is the persistence boundary the tracker engine depends on.
//
// AddProgress and AddUserPoints must be atomic in the backend: two
// concurrent sale events for the same (user, goal) key must never both
// read the same stale value and under-count.
type Store interface {
	// ListActiveGoals returns every goal currently open for accumulation.
	ListActiveGoals(ctx context.Context) ([]Goal, error)
	// GetUser returns ErrNotFound when the user is absent.
	GetUser(ctx context.Context, userID string) (User, error)
	// GetProduct returns ErrNotFound when the product is absent.
	GetProduct(ctx context.Context, productID string) (Product, error)
	// GetPharmacy returns ErrNotFound when the pharmacy is absent.
	GetPharmacy(ctx context.Context, pharmacyID string) (Pharmacy, error)
	// AddProgress atomically adds delta to the (user, goal) progress record,
	// creating it in-progress when absent. When the record is already
	// completed it mutates nothing and returns the record as stored.
	AddProgress(ctx context.Context, userID, goalID string, delta float64) (Progress, error)
	// CompleteProgress transitions the record to completed when it is still
	// in-progress and has reached target. It reports whether this call
	// performed the transition.
	CompleteProgress(ctx context.Context, userID, goalID string, target float64) (bool, error)
	// AddUserPoints atomically increments the user's point balance.
	AddUserPoints(ctx context.Context, userID string, points int64) error
}

// Result summarizes one pipeline run for a single sale.
type Result struct {
	GoalsEvaluated int
	GoalsMatched   int
	GoalsCompleted int
	GoalsFailed    int
}

// Service drives the per-sale pipeline: resolve reference data, evaluate
// eligibility per active goal, accumulate progress, and grant rewards on
// completion. One Service is safe for concurrent use; all mutable state
// lives in the Store.
type Service struct {
	store Store
	logf  func(string, ...any)
}

// NewService constructs the tracker engine. A nil logf defaults to the
// standard logger.
func NewService(store Store, logf func(string, ...any)) *Service {
	if logf == nil {
		logf = log.Printf
	}
	return &Service{
		store: store,
		logf:  logf,
	}
}

// ProcessSale runs the goal pipeline for one sale event.
//
// The run aborts only for per-sale conditions: a missing user id, an
// unknown user or product, or a failure fetching the goal set. Failures
// while processing an individual goal are logged and do not block the
// remaining goals; they are surfaced in the result's GoalsFailed count.
// No active goals is a successful no-op.
func (s *Service) ProcessSale(ctx context.Context, sale Sale) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, ErrStoreNotConfigured
	}
	if err := sale.Validate(); err != nil {
		return Result{}, err
	}

	refs, err := s.fetchReferences(ctx, sale)
	if err != nil {
		return Result{}, err
	}
	if len(refs.goals) == 0 {
		s.logf("sale %s: no active goals", sale.ID)
		return Result{}, nil
	}

	result := Result{GoalsEvaluated: len(refs.goals)}
	for _, goal := range refs.goals {
		matched, completed, goalErr := s.processGoal(ctx, sale, goal, refs)
		if goalErr != nil {
			result.GoalsFailed++
			s.logf("sale %s: process goal %s: %v", sale.ID, goal.ID, goalErr)
			continue
		}
		if matched {
			result.GoalsMatched++
		}
		if completed {
			result.GoalsCompleted++
		}
	}
	return result, nil
}

// references bundles the resolved context a sale is evaluated against.
type references struct {
	goals    []Goal
	user     User
	pharmacy *Pharmacy
	product  *Product
}

// fetchReferences resolves active goals, the user, and the product
// concurrently, then the pharmacy. A missing pharmacy is tolerated and
// leaves refs.pharmacy nil so pharmacy-scoped criteria fail closed.
func (s *Service) fetchReferences(ctx context.Context, sale Sale) (references, error) {
	var (
		goals      []Goal
		user       User
		product    Product
		goalsErr   error
		userErr    error
		productErr error
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		goals, goalsErr = s.store.ListActiveGoals(ctx)
	}()
	go func() {
		defer wg.Done()
		user, userErr = s.store.GetUser(ctx, sale.UserID)
	}()
	go func() {
		defer wg.Done()
		product, productErr = s.store.GetProduct(ctx, sale.ProductID)
	}()
	wg.Wait()

	if goalsErr != nil {
		return references{}, fmt.Errorf("list active goals: %w", goalsErr)
	}
	if len(goals) == 0 {
		return references{}, nil
	}
	if userErr != nil {
		if errors.Is(userErr, ErrNotFound) {
			return references{}, fmt.Errorf("sale %s: %w", sale.ID, ErrUserNotFound)
		}
		return references{}, fmt.Errorf("get user %s: %w", sale.UserID, userErr)
	}
	if productErr != nil {
		if errors.Is(productErr, ErrNotFound) {
			return references{}, fmt.Errorf("sale %s: %w", sale.ID, ErrProductNotFound)
		}
		return references{}, fmt.Errorf("get product %s: %w", sale.ProductID, productErr)
	}

	refs := references{goals: goals, user: user, product: &product}
	pharmacy, pharmacyErr := s.store.GetPharmacy(ctx, sale.PharmacyID)
	if pharmacyErr != nil {
		// Pharmacy lookups degrade instead of aborting: the sale stays
		// processable and pharmacy-scoped whitelists reject it.
		if !errors.Is(pharmacyErr, ErrNotFound) {
			s.logf("sale %s: get pharmacy %s: %v", sale.ID, sale.PharmacyID, pharmacyErr)
		}
		return refs, nil
	}
	refs.pharmacy = &pharmacy
	return refs, nil
}

// processGoal applies one goal to the sale. It reports whether the sale
// matched the goal's criteria and whether this call completed the goal.
func (s *Service) processGoal(ctx context.Context, sale Sale, goal Goal, refs references) (matched, completed bool, err error) {
	if err := goal.Validate(); err != nil {
		return false, false, err
	}
	if !Eligible(sale, goal, refs.user, refs.pharmacy, refs.product) {
		return false, false, nil
	}

	increment := goal.IncrementValue(sale)
	if increment <= 0 {
		// Refund-shaped sales would break progress monotonicity; they never
		// accumulate.
		s.logf("sale %s: non-positive increment %v for goal %s, skipping", sale.ID, increment, goal.ID)
		return true, false, nil
	}

	progress, err := s.store.AddProgress(ctx, sale.UserID, goal.ID, increment)
	if err != nil {
		return true, false, fmt.Errorf("add progress: %w", err)
	}
	if progress.Completed() {
		// Terminal state reached by an earlier event; nothing was written.
		s.logf("sale %s: user %s already completed goal %s, skipping", sale.ID, sale.UserID, goal.ID)
		return true, false, nil
	}
	s.logf("sale %s: user %s progress on goal %s is now %v", sale.ID, sale.UserID, goal.ID, progress.ProgressValue)

	if progress.ProgressValue < goal.TargetValue {
		return true, false, nil
	}

	transitioned, err := s.store.CompleteProgress(ctx, sale.UserID, goal.ID, goal.TargetValue)
	if err != nil {
		return true, false, fmt.Errorf("complete progress: %w", err)
	}
	if !transitioned {
		// A concurrent event for the same key won the transition and granted
		// the reward.
		return true, false, nil
	}

	if err := s.store.AddUserPoints(ctx, sale.UserID, goal.RewardPoints); err != nil {
		return true, true, fmt.Errorf("award %d points: %w", goal.RewardPoints, err)
	}
	s.logf("sale %s: goal %s completed for user %s, awarded %d points", sale.ID, goal.ID, sale.UserID, goal.RewardPoints)
	return true, true, nil
}
