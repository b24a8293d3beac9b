// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog and the billing period used for
// monthly quota enforcement.
package domain

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PlanTier identifies the subscription level of an account.
type PlanTier string

const (
	PlanTierFree     PlanTier = "free"
	PlanTierStarter  PlanTier = "starter"
	PlanTierPro      PlanTier = "pro"
	PlanTierBusiness PlanTier = "business"
)

// DefaultPlanTier is assigned to every newly registered account.
const DefaultPlanTier = PlanTierFree

// Monthly artifact ceilings per tier.
const (
	FreeMonthlyLimit     = 100
	StarterMonthlyLimit  = 2500
	ProMonthlyLimit      = 10000
	BusinessMonthlyLimit = 100000
)

// Monthly list prices per tier, in US cents.
const (
	FreeMonthlyPriceCents     = 0
	StarterMonthlyPriceCents  = 500
	ProMonthlyPriceCents      = 1500
	BusinessMonthlyPriceCents = 5000
)

// AllPlanTiers returns the catalog in ascending order of quota.
func AllPlanTiers() []PlanTier {
	return []PlanTier{PlanTierFree, PlanTierStarter, PlanTierPro, PlanTierBusiness}
}

// LimitFor returns the monthly artifact ceiling for a tier.
// Adding a tier requires a new case here; anything else is UnknownTier.
func LimitFor(tier PlanTier) (int, error) {
	switch tier {
	case PlanTierFree:
		return FreeMonthlyLimit, nil
	case PlanTierStarter:
		return StarterMonthlyLimit, nil
	case PlanTierPro:
		return ProMonthlyLimit, nil
	case PlanTierBusiness:
		return BusinessMonthlyLimit, nil
	default:
		return 0, UnknownTier("plan.limit_for", tier)
	}
}

// PriceFor returns the monthly list price of a tier in US cents.
func PriceFor(tier PlanTier) (int, error) {
	switch tier {
	case PlanTierFree:
		return FreeMonthlyPriceCents, nil
	case PlanTierStarter:
		return StarterMonthlyPriceCents, nil
	case PlanTierPro:
		return ProMonthlyPriceCents, nil
	case PlanTierBusiness:
		return BusinessMonthlyPriceCents, nil
	default:
		return 0, UnknownTier("plan.price_for", tier)
	}
}

// ParsePlanTier converts a stored plan string into a PlanTier.
func ParsePlanTier(s string) (PlanTier, error) {
	tier := PlanTier(s)
	if !tier.Valid() {
		return "", UnknownTier("plan.parse", tier)
	}
	return tier, nil
}

// Valid reports whether the tier is part of the catalog.
func (t PlanTier) Valid() bool {
	_, err := LimitFor(t)
	return err == nil
}

// DisplayName returns the tier name for human-facing output ("Pro").
func (t PlanTier) DisplayName() string {
	return cases.Title(language.English).String(string(t))
}

// AllowsCustomColors reports whether the tier may set QR colours.
func (t PlanTier) AllowsCustomColors() bool {
	return t == PlanTierPro || t == PlanTierBusiness
}

// AllowsLogo reports whether the tier may embed a logo in the QR image.
func (t PlanTier) AllowsLogo() bool {
	return t == PlanTierPro || t == PlanTierBusiness
}

// BillingPeriod is a half-open calendar month [Start, End) in UTC.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// PeriodFor returns the UTC calendar month containing t.
func PeriodFor(t time.Time) BillingPeriod {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// Contains reports whether t falls inside the period.
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key returns the period in "2006-01" form.
func (p BillingPeriod) Key() string {
	return p.Start.Format("2006-01")
}

// UsageReport is the read-only projection returned by the usage endpoint.
type UsageReport struct {
	Plan      PlanTier
	Usage     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Admission is the result of a successful quota admission: the artifact that
// was created and the counts after it was recorded.
type Admission struct {
	Artifact  *Artifact
	Usage     int
	Limit     int
	Remaining int
}
