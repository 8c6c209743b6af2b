package plan

import "errors"

var (
	ErrPlanNotFound      = errors.New("plan not found")
	ErrNoPlans           = errors.New("at least one plan is required")
	ErrNoFreePlan        = errors.New("exactly one free fallback plan is required")
	ErrInvalidPlanConfig = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans = errors.New("failed to load plans")
)
