// Package reconcile applies payment provider webhooks to local subscription
// state, exactly once per event regardless of redelivery.
//
// # Pipeline
//
// Reconciler.Handle runs every delivery through the same steps: verify the
// signature and parse via the provider, consult the idempotency Ledger,
// apply the event through the store's compare-and-swap update, then record
// the event ID. Recording happens only after a successful apply, so a crash
// mid-apply means the provider's redelivery gets a clean second attempt.
//
// # Ordering
//
// Providers do not guarantee delivery order. Events carrying billing period
// data are ignored when their period predates the stored one; events without
// periods rely on the subscription state machine to reject moves that no
// longer make sense. Both kinds of ignored event are still recorded in the
// ledger and acknowledged, since redelivering them cannot help.
//
// # Ledger Backends
//
// Memory (with background expiry), Redis (TTL keys), and Postgres (a table
// pruned explicitly) ledgers are provided. Entries are kept for 72 hours by
// default, comfortably past the provider's redelivery window.
package reconcile
