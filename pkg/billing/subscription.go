package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a subscription.
// The absence of a record entirely is the implicit "none" state.
type Status string

const (
	StatusIncomplete      Status = "incomplete"       // created, awaiting first payment confirmation
	StatusActive          Status = "active"           // paid and current
	StatusPastDue         Status = "past_due"         // renewal payment failed, grace period
	StatusCanceledPending Status = "canceled_pending" // cancellation scheduled for period end
	StatusCanceled        Status = "canceled"         // terminal
	StatusExpired         Status = "expired"          // terminal, first payment ultimately failed
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// Subscription represents a user's commercial relationship with the platform.
// Each user has at most one authoritative record; terminal records are kept
// for audit history, never physically deleted.
type Subscription struct {
	UserID             uuid.UUID // primary key - one subscription per user
	PlanID             string
	Status             Status
	ProviderCustomerID string // provider's customer ID (ctm_xxx, cus_xxx, etc)
	ProviderSubID      string // provider's subscription ID, unique across records
	PeriodStart        time.Time
	PeriodEnd          time.Time
	CancelAtPeriodEnd  bool
	LastEventAt        time.Time // provider timestamp of the last applied webhook, orders same-period events
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64 // monotonically increasing, detects stale writes
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsPastDue() bool {
	return s.Status == StatusPastDue
}

// Entitled reports whether the subscription still grants its plan's
// entitlements. Past-due and pending-cancellation subscriptions keep the
// last-known plan as a grace period until the provider confirms otherwise.
func (s *Subscription) Entitled() bool {
	switch s.Status {
	case StatusActive, StatusPastDue, StatusCanceledPending:
		return true
	default:
		return false
	}
}

// clone returns a copy so store internals never leak mutable state.
func (s *Subscription) clone() *Subscription {
	cp := *s
	return &cp
}
