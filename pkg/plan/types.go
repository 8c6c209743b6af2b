package plan

// Quota represents a countable, periodically-resetting usage type.
type Quota string

const (
	QuotaAIInsights        Quota = "ai_insight"
	QuotaTelehealthSession Quota = "telehealth_session"
	QuotaCoachingMessages  Quota = "coaching_message"
	QuotaFamilyMembers     Quota = "family_member"
	QuotaDataExports       Quota = "data_export"
	QuotaSymptomChecks     Quota = "symptom_check"
)

const (
	// Unlimited indicates no limit for a quota (-1 chosen for SQL compatibility)
	Unlimited int64 = -1
)

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureTelehealth       Feature = "telehealth"
	FeatureAIInsights       Feature = "ai_insights"
	FeatureHealthCoaching   Feature = "health_coaching"
	FeatureFamilyMonitoring Feature = "family_monitoring"
	FeatureMealPlanning     Feature = "meal_planning"
	FeatureDataExport       Feature = "data_export"
	FeaturePrioritySupport  Feature = "priority_support"
	FeatureMedicalAlerts    Feature = "medical_alerts"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  // Amount in smallest currency unit (cents for USD)
	Currency string // ISO 4217 currency code
}

// Interval represents the billing frequency for a subscription plan.
type Interval string

const (
	IntervalNone    Interval = "none" // Free plans with no billing
	IntervalMonthly Interval = "monthly"
	IntervalAnnual  Interval = "annual"
)
