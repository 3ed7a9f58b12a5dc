// Package sqlite provides SQLite-backed persistence for tracker state.
//
// Progress accumulation and point grants are expressed as single-statement
// atomic writes so concurrent sale events for the same (user, goal) key
// can never under-count each other.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pharmovia/incentives/internal/platform/id"
	sqlitemigrate "github.com/pharmovia/incentives/internal/platform/storage/sqlitemigrate"
	"github.com/pharmovia/incentives/internal/platform/timeouts"
	"github.com/pharmovia/incentives/internal/services/tracker/domain"
	"github.com/pharmovia/incentives/internal/services/tracker/storage"
	"github.com/pharmovia/incentives/internal/services/tracker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed tracker persistence.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a tracker SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), timeouts.StorageOpen)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutUser persists one user record.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, pharmacy_id, points) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET pharmacy_id = excluded.pharmacy_id
`, user.ID, strings.TrimSpace(user.PharmacyID), user.Points)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser loads one user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return domain.User{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, storage.ErrNotFound
	}

	var user domain.User
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, pharmacy_id, points FROM users WHERE id = ?
`, userID)
	if err := row.Scan(&user.ID, &user.PharmacyID, &user.Points); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, storage.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// PutPharmacy persists one pharmacy record.
func (s *Store) PutPharmacy(ctx context.Context, pharmacy domain.Pharmacy) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	pharmacy.ID = strings.TrimSpace(pharmacy.ID)
	if pharmacy.ID == "" {
		return fmt.Errorf("pharmacy id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pharmacies (id, zone, client_category) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET zone = excluded.zone, client_category = excluded.client_category
`, pharmacy.ID, strings.TrimSpace(pharmacy.Zone), strings.TrimSpace(pharmacy.ClientCategory))
	if err != nil {
		return fmt.Errorf("put pharmacy: %w", err)
	}
	return nil
}

// GetPharmacy loads one pharmacy by id.
func (s *Store) GetPharmacy(ctx context.Context, pharmacyID string) (domain.Pharmacy, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Pharmacy{}, err
	}
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return domain.Pharmacy{}, storage.ErrNotFound
	}

	var pharmacy domain.Pharmacy
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, zone, client_category FROM pharmacies WHERE id = ?
`, pharmacyID)
	if err := row.Scan(&pharmacy.ID, &pharmacy.Zone, &pharmacy.ClientCategory); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Pharmacy{}, storage.ErrNotFound
		}
		return domain.Pharmacy{}, fmt.Errorf("get pharmacy: %w", err)
	}
	return pharmacy, nil
}

// PutProduct persists one product record.
func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO products (id, brand, category) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET brand = excluded.brand, category = excluded.category
`, product.ID, strings.TrimSpace(product.Brand), strings.TrimSpace(product.Category))
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// GetProduct loads one product by id.
func (s *Store) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Product{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, storage.ErrNotFound
	}

	var product domain.Product
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, brand, category FROM products WHERE id = ?
`, productID)
	if err := row.Scan(&product.ID, &product.Brand, &product.Category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, storage.ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// PutGoal persists one goal definition. Malformed goals are rejected here
// so the read path never observes an invalid metric or target.
func (s *Store) PutGoal(ctx context.Context, goal domain.Goal) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	goal.ID = strings.TrimSpace(goal.ID)
	if goal.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("put goal %s: %w", goal.ID, err)
	}
	criteriaJSON := ""
	if goal.Criteria != nil {
		encoded, err := json.Marshal(goal.Criteria)
		if err != nil {
			return fmt.Errorf("encode goal criteria: %w", err)
		}
		criteriaJSON = string(encoded)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO goals (id, is_active, metric, target_value, reward_points, criteria_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	is_active = excluded.is_active,
	metric = excluded.metric,
	target_value = excluded.target_value,
	reward_points = excluded.reward_points,
	criteria_json = excluded.criteria_json
`, goal.ID, boolToInt(goal.IsActive), string(goal.Metric), goal.TargetValue, goal.RewardPoints, criteriaJSON)
	if err != nil {
		return fmt.Errorf("put goal: %w", err)
	}
	return nil
}

// ListActiveGoals lists every goal open for accumulation.
func (s *Store) ListActiveGoals(ctx context.Context) ([]domain.Goal, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, is_active, metric, target_value, reward_points, criteria_json
FROM goals
WHERE is_active = 1
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list active goals: %w", err)
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		var (
			goal         domain.Goal
			isActive     int
			metric       string
			criteriaJSON string
		)
		if err := rows.Scan(&goal.ID, &isActive, &metric, &goal.TargetValue, &goal.RewardPoints, &criteriaJSON); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goal.IsActive = isActive != 0
		goal.Metric = domain.Metric(metric)
		if strings.TrimSpace(criteriaJSON) != "" {
			var criteria domain.Criteria
			if err := json.Unmarshal([]byte(criteriaJSON), &criteria); err != nil {
				return nil, fmt.Errorf("decode criteria for goal %s: %w", goal.ID, err)
			}
			goal.Criteria = &criteria
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return goals, nil
}

// PutSale persists one sale and enqueues its processing event atomically,
// mirroring an on-create trigger in the sales system.
func (s *Store) PutSale(ctx context.Context, sale domain.Sale) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	sale.ID = strings.TrimSpace(sale.ID)
	if sale.ID == "" {
		return fmt.Errorf("sale id is required")
	}
	now := toMillis(time.Now())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sale write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback sale write: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sales (id, user_id, pharmacy_id, product_id, quantity, total_price, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, sale.ID, strings.TrimSpace(sale.UserID), strings.TrimSpace(sale.PharmacyID), strings.TrimSpace(sale.ProductID), sale.Quantity, sale.TotalPrice, now); err != nil {
		return rollbackWith(fmt.Errorf("insert sale: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sale_events (sale_id, created_at) VALUES (?, ?)
`, sale.ID, now); err != nil {
		return rollbackWith(fmt.Errorf("enqueue sale event: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sale write: %w", err)
	}
	return nil
}

// ListPendingSales lists oldest-first unprocessed sale events with payloads.
func (s *Store) ListPendingSales(ctx context.Context, limit int) ([]storage.PendingSale, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT e.id, e.created_at, s.id, s.user_id, s.pharmacy_id, s.product_id, s.quantity, s.total_price
FROM sale_events e
JOIN sales s ON s.id = e.sale_id
WHERE e.processed_at IS NULL
ORDER BY e.id
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sales: %w", err)
	}
	defer rows.Close()

	pending := make([]storage.PendingSale, 0, limit)
	for rows.Next() {
		var (
			item      storage.PendingSale
			createdAt int64
		)
		if err := rows.Scan(
			&item.EventID,
			&createdAt,
			&item.Sale.ID,
			&item.Sale.UserID,
			&item.Sale.PharmacyID,
			&item.Sale.ProductID,
			&item.Sale.Quantity,
			&item.Sale.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("scan pending sale: %w", err)
		}
		item.CreatedAt = fromMillis(createdAt)
		pending = append(pending, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending sales: %w", err)
	}
	return pending, nil
}

// MarkSaleEventProcessed retires one sale event from the pending feed.
func (s *Store) MarkSaleEventProcessed(ctx context.Context, eventID int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE sale_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL
`, toMillis(time.Now()), eventID)
	if err != nil {
		return fmt.Errorf("mark sale event processed: %w", err)
	}
	return nil
}

// AddProgress atomically adds delta to the (user, goal) progress record,
// creating it when absent. The completed terminal state is guarded inside
// the statement: a completed record is never mutated, and the stored
// record is returned unchanged so callers can observe the short-circuit.
func (s *Store) AddProgress(ctx context.Context, userID, goalID string, delta float64) (domain.Progress, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Progress{}, err
	}
	userID = strings.TrimSpace(userID)
	goalID = strings.TrimSpace(goalID)
	if userID == "" {
		return domain.Progress{}, fmt.Errorf("user id is required")
	}
	if goalID == "" {
		return domain.Progress{}, fmt.Errorf("goal id is required")
	}
	now := toMillis(time.Now())

	row := s.sqlDB.QueryRowContext(ctx, `
INSERT INTO user_goal_progress (user_id, goal_id, progress_value, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, goal_id) DO UPDATE SET
	progress_value = user_goal_progress.progress_value + excluded.progress_value,
	updated_at = excluded.updated_at
WHERE user_goal_progress.status != ?
RETURNING user_id, goal_id, progress_value, status, created_at, updated_at
`, userID, goalID, delta, string(domain.StatusInProgress), now, now, string(domain.StatusCompleted))

	progress, err := scanProgress(row.Scan)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Progress{}, fmt.Errorf("add progress: %w", err)
	}
	// The upsert was filtered out: the record is already completed.
	return s.GetProgress(ctx, userID, goalID)
}

// CompleteProgress transitions one record into the completed terminal
// state when it is still in-progress and has reached target. The reported
// bool is true for exactly one caller per (user, goal) key.
func (s *Store) CompleteProgress(ctx context.Context, userID, goalID string, target float64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	goalID = strings.TrimSpace(goalID)
	if userID == "" || goalID == "" {
		return false, fmt.Errorf("user id and goal id are required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE user_goal_progress
SET status = ?, updated_at = ?
WHERE user_id = ? AND goal_id = ? AND status = ? AND progress_value >= ?
`, string(domain.StatusCompleted), toMillis(time.Now()), userID, goalID, string(domain.StatusInProgress), target)
	if err != nil {
		return false, fmt.Errorf("complete progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete progress rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetProgress loads one (user, goal) progress record.
func (s *Store) GetProgress(ctx context.Context, userID, goalID string) (domain.Progress, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Progress{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, goal_id, progress_value, status, created_at, updated_at
FROM user_goal_progress
WHERE user_id = ? AND goal_id = ?
`, strings.TrimSpace(userID), strings.TrimSpace(goalID))
	progress, err := scanProgress(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Progress{}, storage.ErrNotFound
		}
		return domain.Progress{}, fmt.Errorf("get progress: %w", err)
	}
	return progress, nil
}

// AddUserPoints atomically increments one user's point balance.
func (s *Store) AddUserPoints(ctx context.Context, userID string, points int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET points = points + ? WHERE id = ?
`, points, userID)
	if err != nil {
		return fmt.Errorf("add user points: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add user points rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordOutcome persists one per-sale processing outcome.
func (s *Store) RecordOutcome(ctx context.Context, outcome storage.OutcomeRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	outcome.ID = strings.TrimSpace(outcome.ID)
	outcome.SaleID = strings.TrimSpace(outcome.SaleID)
	outcome.Outcome = strings.TrimSpace(outcome.Outcome)
	outcome.Detail = strings.TrimSpace(outcome.Detail)
	if outcome.SaleID == "" {
		return fmt.Errorf("sale id is required")
	}
	if outcome.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if outcome.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate outcome id: %w", err)
		}
		outcome.ID = generated
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO processing_outcomes (id, sale_id, outcome, detail, goals_matched, goals_completed, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, outcome.ID, outcome.SaleID, outcome.Outcome, outcome.Detail, outcome.GoalsMatched, outcome.GoalsCompleted, toMillis(outcome.CreatedAt))
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// ListOutcomes lists newest-first processing outcomes.
func (s *Store) ListOutcomes(ctx context.Context, limit int) ([]storage.OutcomeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, sale_id, outcome, detail, goals_matched, goals_completed, created_at
FROM processing_outcomes
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]storage.OutcomeRecord, 0, limit)
	for rows.Next() {
		var (
			record    storage.OutcomeRecord
			createdAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.SaleID,
			&record.Outcome,
			&record.Detail,
			&record.GoalsMatched,
			&record.GoalsCompleted,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		outcomes = append(outcomes, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

func scanProgress(scan func(...any) error) (domain.Progress, error) {
	var (
		progress  domain.Progress
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := scan(
		&progress.UserID,
		&progress.GoalID,
		&progress.ProgressValue,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Progress{}, err
	}
	progress.Status = domain.Status(status)
	progress.CreatedAt = fromMillis(createdAt)
	progress.UpdatedAt = fromMillis(updatedAt)
	return progress, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var (
	_ domain.Store         = (*Store)(nil)
	_ storage.EventFeed    = (*Store)(nil)
	_ storage.OutcomeStore = (*Store)(nil)
)
