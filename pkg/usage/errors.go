package usage

import "errors"

var (
	ErrRecordNotFound = errors.New("usage record not found")
	ErrInvalidAmount  = errors.New("usage increment amount must be positive")
	ErrStoreFailure   = errors.New("usage store operation failed")
)
