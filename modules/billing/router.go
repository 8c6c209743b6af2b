package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UserResolver extracts the authenticated user ID from a request, typically
// from a session or token middleware installed above this router.
type UserResolver func(r *http.Request) (uuid.UUID, error)

// RouterOptions configures the billing module router. Both handlers are
// required; Router panics on nil dependencies at mount time rather than at
// request time.
type RouterOptions struct {
	Webhooks *WebhookHandler
	Queries  *QueryHandler
}

// Router creates the billing module router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//	    Webhooks: billing.NewWebhookHandler(reconciler, log),
//	    Queries:  billing.NewQueryHandler(catalog, lifecycle, checker, resolveUser, log),
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Webhooks == nil {
		panic("billing module: WebhookHandler is required")
	}
	if opts.Queries == nil {
		panic("billing module: QueryHandler is required")
	}

	r := chi.NewRouter()

	r.Post("/webhooks/billing", opts.Webhooks.Handle)

	r.Get("/plans", opts.Queries.ListPlans)
	r.Get("/subscription", opts.Queries.GetSubscription)
	r.Get("/usage/{quota}", opts.Queries.GetUsage)
	r.Post("/quota/{quota}/consume", opts.Queries.ConsumeQuota)

	return r
}
