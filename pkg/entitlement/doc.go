// Package entitlement answers the two questions feature code asks at request
// time: does this user have a feature, and may they consume a quota right
// now.
//
// The Checker resolves the user's effective plan from their subscription
// (active, past_due, and canceled_pending all still entitle) and falls back
// to the catalog's free plan when there is none. Quota checks then delegate
// to the usage tracker with that plan's limit and the appropriate billing
// period start; for free-tier users the period is the calendar month in UTC.
//
// Feature checks fail closed: any lookup error reads as "no access" with a
// warning logged, never as a panic or a granted feature.
//
//	checker := entitlement.NewChecker(catalog, store, tracker)
//
//	if checker.HasFeature(ctx, userID, plan.FeatureTelehealth) {
//		// start the session
//	}
//
//	res, err := checker.CheckQuota(ctx, userID, plan.QuotaAIInsights)
//	if err != nil {
//		return err
//	}
//	if !res.Allowed {
//		// quota exhausted for this period
//	}
package entitlement
