package estimation

import (
	"math"
	"time"

	"valuation/server/internal/geometry"
	"valuation/server/internal/models"
)

const (
	// Sales further than this get the minimum distance weight
	weightRadiusKm    = 5.0
	minDistanceWeight = 0.1

	// A sale loses half its weight every 24 months
	recencyHalfLifeMonths = 24.0
	daysPerMonth          = 30.44
)

// RateSource provides the fallback price per square metre
type RateSource interface {
	DefaultPricePerSqm(kind models.PropertyKind) float64
}

// Pricer turns comparable sales into an estimate
type Pricer struct {
	rates RateSource
	now   func() time.Time
}

// NewPricer returns a Pricer. now defaults to time.Now.
func NewPricer(rates RateSource, now func() time.Time) *Pricer {
	if now == nil {
		now = time.Now
	}
	return &Pricer{rates: rates, now: now}
}

// ConditionMultiplier maps a condition to its price adjustment.
// Unknown conditions are neutral.
func ConditionMultiplier(c models.Condition) float64 {
	switch c {
	case models.ConditionToRenovate:
		return 0.8
	case models.ConditionWorkNeeded:
		return 0.9
	case models.ConditionGood:
		return 1.0
	case models.ConditionVeryGood:
		return 1.1
	case models.ConditionLikeNew:
		return 1.15
	case models.ConditionNew:
		return 1.2
	default:
		return 1.0
	}
}

// ConfidenceScore grows with the number of comparables used
func ConfidenceScore(n int) float64 {
	switch {
	case n >= 5:
		return 0.9
	case n >= 3:
		return 0.7
	case n >= 1:
		return 0.5
	default:
		return 0.3
	}
}

// RangeMargin is the half width of the price range, as a fraction
func RangeMargin(n int) float64 {
	switch {
	case n >= 5:
		return 0.05
	case n >= 3:
		return 0.07
	case n >= 1:
		return 0.10
	default:
		return 0.15
	}
}

// Weigh scores every usable sale against origin. Sales without a positive
// price and living area are dropped.
func (p *Pricer) Weigh(sales []models.Sale, origin models.GeoCoordinate) []models.WeightedComparable {
	now := p.now()
	point := origin.Point()

	weighted := make([]models.WeightedComparable, 0, len(sales))
	for _, s := range sales {
		if _, ok := s.PricePerSqm(); !ok {
			continue
		}
		d := geometry.DistanceToKm(point, s.Latitude, s.Longitude)
		weighted = append(weighted, models.WeightedComparable{
			Sale:       s,
			DistanceKm: d,
			Weight:     distanceWeight(d) * recencyWeight(s.SaleDate, now),
		})
	}
	return weighted
}

func distanceWeight(km float64) float64 {
	return math.Max(minDistanceWeight, 1-km/weightRadiusKm)
}

func recencyWeight(saleDate, now time.Time) float64 {
	if saleDate.IsZero() {
		return 1
	}
	ageMonths := now.Sub(saleDate).Hours() / 24 / daysPerMonth
	if ageMonths <= 0 {
		return 1
	}
	return math.Pow(0.5, ageMonths/recencyHalfLifeMonths)
}

// ComputeEstimate prices the query from its comparables, or from the region
// default rate when none is usable. Rounding happens only on the result.
func (p *Pricer) ComputeEstimate(q models.PropertyQuery, comparables []models.Sale, origin models.GeoCoordinate) models.EstimateResult {
	weighted := p.Weigh(comparables, origin)

	var sumWeights, sumWeighted float64
	for _, c := range weighted {
		ppsqm, _ := c.Sale.PricePerSqm()
		sumWeights += c.Weight
		sumWeighted += ppsqm * c.Weight
	}

	n := len(weighted)
	var avgPricePerSqm float64
	if n > 0 && sumWeights > 0 {
		avgPricePerSqm = sumWeighted / sumWeights
	} else {
		n = 0
		avgPricePerSqm = p.rates.DefaultPricePerSqm(q.Kind)
	}

	adjusted := avgPricePerSqm * q.LivingAreaSqm * ConditionMultiplier(q.Condition)
	margin := RangeMargin(n)

	return models.EstimateResult{
		AveragePricePerSqm: round(adjusted / q.LivingAreaSqm),
		EstimatedPrice:     round(adjusted),
		PriceRange: models.PriceRange{
			Min: round(adjusted * (1 - margin)),
			Max: round(adjusted * (1 + margin)),
		},
		ComparableSaleCount: n,
		ConfidenceScore:     ConfidenceScore(n),
	}
}

// round saturates instead of overflowing the int64 conversion
func round(v float64) int64 {
	r := math.Round(v)
	switch {
	case math.IsNaN(r) || r <= 0:
		return 0
	case r >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(r)
}
