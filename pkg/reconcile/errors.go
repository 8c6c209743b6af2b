package reconcile

import "errors"

var (
	ErrLedgerFailure       = errors.New("idempotency ledger operation failed")
	ErrUnknownSubscription = errors.New("no subscription matches the event's provider references")
)
