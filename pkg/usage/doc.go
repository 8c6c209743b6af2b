// Package usage tracks per-user quota consumption within billing periods.
//
// Counters are keyed by (user, quota, period start) and only ever grow; a
// new billing period starts a fresh counter rather than resetting the old
// one, which keeps past periods available for reconciliation and makes
// renewals race-free.
//
// The central operation is Store.IncrementIfBelow: a single atomic
// check-and-increment so concurrent consumers can never push a counter past
// its limit. The memory store serializes on a mutex, the Redis store runs a
// Lua script, and the Postgres store uses a conditional upsert.
//
// Tracker wraps a Store with the allow/deny decision logic and the Result
// type handed back to callers.
//
//	tracker := usage.NewTracker(usage.NewMemoryStore())
//
//	res, err := tracker.CheckAndIncrement(ctx, userID, plan.QuotaAIInsights, periodStart, limit, 1)
//	if err != nil {
//		return err
//	}
//	if !res.Allowed {
//		// over limit, res.Current and res.Limit explain the denial
//	}
package usage
