// Package billing manages the subscription lifecycle and its persistence,
// with Paddle as the payment provider behind a minimal Provider interface.
//
// The package keeps a single subscription record per user. The record moves
// through a small state machine (incomplete, active, past_due,
// canceled_pending, canceled, expired) driven by user commands and by
// provider webhooks; CanTransition encodes the legal moves and everything
// else is rejected.
//
// # Architecture
//
//   - Service: user-facing lifecycle commands (Create, ChangePlan, Cancel,
//     AttachPaymentMethod)
//   - Store: persistence port with optimistic concurrency (memory and
//     Postgres implementations)
//   - Provider: payment provider port (Paddle implementation included)
//   - WebhookEvent: normalized provider event consumed by the reconcile
//     package
//
// # Concurrency
//
// Every Subscription carries a Version counter. Store.Update performs a
// compare-and-swap against the expected version and fails with
// ErrVersionConflict when another writer got there first. UpdateWithRetry
// wraps the read-mutate-write loop with a bounded number of retries and is
// shared by the lifecycle service and the webhook reconciler, so user
// commands and asynchronous provider events never overwrite each other
// silently.
//
// # Provider Failures
//
// Lifecycle commands talk to the provider before touching local state. When
// the provider call fails the local record is left unchanged and the command
// returns ErrProviderUnavailable joined with the underlying error, so a
// retry starts from a clean slate.
//
// # Basic Usage
//
//	provider, err := billing.NewPaddleProvider(paddleCfg, catalog)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := billing.NewService(catalog, provider, billing.NewMemoryStore(),
//		billing.WithLogger(log))
//
//	sub, err := svc.Create(ctx, userID, "premium", paymentMethodRef)
package billing
