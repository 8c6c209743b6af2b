// Package plan defines subscription plans and the in-memory catalog that
// serves them to the rest of the application.
//
// A Plan bundles a price, a billing interval, a set of boolean feature gates,
// and per-quota numeric limits. Plans are loaded once at startup from a
// Source (static definitions or a YAML file), validated, and cached by the
// Catalog; there is no runtime mutation, so all reads are lock-free.
//
// # Basic Usage
//
// Load plans from a YAML file and build the catalog:
//
//	source, err := plan.NewYAMLFileSource("plans.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	catalog, err := plan.NewCatalog(ctx, source)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	premium, err := catalog.Get("premium")
//	if err != nil {
//		// plan.ErrPlanNotFound
//	}
//
//	if premium.HasFeature(plan.FeatureTelehealth) {
//		// gated code path
//	}
//
// # Quotas
//
// Quota limits are int64 counts per billing period. The sentinel
// plan.Unlimited (-1) means no cap; a limit of 0 means the quota is defined
// but nothing may be consumed. A quota absent from the map is undefined for
// that plan, which callers must treat as not granted at all.
//
// # Free Plan
//
// Exactly one plan in the catalog must be free (zero price, no interval).
// It is the fallback tier for users without an entitled subscription and is
// returned by Catalog.FreePlan.
package plan
