package reconcile

import "context"

// Ledger is the idempotency record of already-processed provider event IDs.
// Retention must exceed the provider's maximum redelivery window so a
// redelivered event can never be applied twice; entries may be
// garbage-collected after that window.
type Ledger interface {
	// Seen reports whether the event ID has already been processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Record marks the event ID as processed. Called only after successful
	// application (or a confirmed no-op), so a crash mid-processing causes
	// safe redelivery rather than silent loss.
	Record(ctx context.Context, eventID string) error
}
