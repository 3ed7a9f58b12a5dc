// Package errors provides structured error handling with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Sale errors
	CodeSaleMissingUserID Code = "SALE_MISSING_USER_ID"
	CodeSaleMissingID     Code = "SALE_MISSING_ID"

	// Goal errors
	CodeGoalInvalidMetric Code = "GOAL_INVALID_METRIC"
	CodeGoalInvalidTarget Code = "GOAL_INVALID_TARGET"

	// Reference data errors
	CodeUserNotFound    Code = "USER_NOT_FOUND"
	CodeProductNotFound Code = "PRODUCT_NOT_FOUND"

	// Progress errors
	CodeProgressCompleted Code = "PROGRESS_ALREADY_COMPLETED"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeStoreNotConfigured Code = "STORE_NOT_CONFIGURED"
)
