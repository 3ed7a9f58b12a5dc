package domain

import apperrors "github.com/pharmovia/incentives/internal/platform/errors"

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeStoreNotConfigured, "tracker store is not configured")
	// ErrSaleMissingUserID indicates a sale without the required user id.
	ErrSaleMissingUserID = apperrors.New(apperrors.CodeSaleMissingUserID, "sale is missing a user id")
	// ErrUserNotFound indicates the sale references an unknown user.
	ErrUserNotFound = apperrors.New(apperrors.CodeUserNotFound, "user not found")
	// ErrProductNotFound indicates the sale references an unknown product.
	ErrProductNotFound = apperrors.New(apperrors.CodeProductNotFound, "product not found")
	// ErrGoalInvalidMetric indicates a goal with an unknown accumulation metric.
	ErrGoalInvalidMetric = apperrors.New(apperrors.CodeGoalInvalidMetric, "goal metric must be revenue or quantity")
	// ErrGoalInvalidTarget indicates a goal with a non-positive target value.
	ErrGoalInvalidTarget = apperrors.New(apperrors.CodeGoalInvalidTarget, "goal target value must be greater than zero")
	// ErrNotFound indicates a requested record is absent from storage.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
)
