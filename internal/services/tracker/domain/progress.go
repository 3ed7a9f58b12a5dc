package domain

import "time"

// Status is the lifecycle state of one (user, goal) progress record.
type Status string

const (
	// StatusInProgress marks a record still accumulating toward its target.
	StatusInProgress Status = "in-progress"
	// StatusCompleted is terminal: no further accumulation or reward.
	StatusCompleted Status = "completed"
)

// Progress is the per-user, per-goal cumulative counter. The record moves
// absent -> in-progress -> completed and never backwards; ProgressValue is
// monotonically non-decreasing for the lifetime of the record.
type Progress struct {
	UserID        string
	GoalID        string
	ProgressValue float64
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Completed reports whether the record reached its terminal state.
func (p Progress) Completed() bool {
	return p.Status == StatusCompleted
}
