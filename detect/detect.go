// Package detect decides whether an observed price qualifies as a real drop
// against the stored baseline.
package detect

import (
	"math"

	"github.com/aluiziolira/price-sentinel/models"
)

// Policy is the per-source qualification rule. A drop qualifies when it
// clears the percentage threshold or the absolute-amount threshold; a zero
// threshold is disabled.
type Policy struct {
	MinDropPct    float64
	MinDropAmount float64
}

// Drop describes a qualifying price drop.
type Drop struct {
	PreviousPrice float64
	Price         float64
	Amount        float64
	DiscountPct   int
}

// DiscountPct computes the integer discount of observed relative to
// previous. It is never negative and is zero when previous is not positive.
func DiscountPct(previous, observed float64) int {
	if previous <= 0 {
		return 0
	}
	pct := int(math.Round(100 * (previous - observed) / previous))
	if pct < 0 {
		return 0
	}
	return pct
}

// Evaluate compares an observation against the previously stored baseline.
// It must run before the baseline is overwritten; a first sighting (nil
// prev) never reports a drop, and a non-positive baseline makes the ratio
// undefined so no drop is reported either.
func Evaluate(prev *models.TrackedProduct, observed float64, pol Policy) (Drop, bool) {
	if prev == nil || prev.CurrentPrice <= 0 || observed <= 0 {
		return Drop{}, false
	}
	if observed >= prev.CurrentPrice {
		return Drop{}, false
	}

	amount := prev.CurrentPrice - observed
	pct := 100 * amount / prev.CurrentPrice

	qualifies := (pol.MinDropPct > 0 && pct >= pol.MinDropPct) ||
		(pol.MinDropAmount > 0 && amount >= pol.MinDropAmount)
	if !qualifies {
		return Drop{}, false
	}

	return Drop{
		PreviousPrice: prev.CurrentPrice,
		Price:         observed,
		Amount:        amount,
		DiscountPct:   DiscountPct(prev.CurrentPrice, observed),
	}, true
}
