package estimation

import (
	"context"
	"sort"
	"time"

	"valuation/server/internal/address"
	"valuation/server/internal/database"
	"valuation/server/internal/geometry"
	"valuation/server/internal/metrics"
	"valuation/server/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SalesStore is the read-only query surface over historical sales
type SalesStore interface {
	FindSales(ctx context.Context, filter database.SaleFilter) ([]models.Sale, error)
}

// Tier is one step of the widening comparable search
type Tier struct {
	Name string

	// Accepted living area deviation, as a fraction of the query area
	AreaTolerance float64

	// Half side of the coordinate box in degrees, 0 disables the box
	BoxDeltaDeg float64

	// Match street name or postal code in the address text instead of coordinates
	TextMatch bool
}

// DefaultTiers go from tight geographic match to text match.
// 0.002° is roughly 200 m, 0.02° roughly 2 km at this latitude.
var DefaultTiers = []Tier{
	{Name: "nearby", AreaTolerance: 0.20, BoxDeltaDeg: 0.002},
	{Name: "widened", AreaTolerance: 0.35, BoxDeltaDeg: 0.02},
	{Name: "address_text", AreaTolerance: 0.40, TextMatch: true},
}

const (
	DefaultMinComparables = 3
	DefaultMaxComparables = 10
)

// Filter builds the store query for this tier. It returns false when the
// tier cannot run, e.g. a text tier without any usable search term.
func (t Tier) Filter(q models.PropertyQuery, origin models.GeoCoordinate) (database.SaleFilter, bool) {
	filter := database.SaleFilter{
		Kind:       q.Kind,
		MinArea:    q.LivingAreaSqm * (1 - t.AreaTolerance),
		MaxArea:    q.LivingAreaSqm * (1 + t.AreaTolerance),
		PricedOnly: true,
	}

	if t.TextMatch {
		terms := address.Parse(q.Address).SearchTerms()
		if len(terms) == 0 {
			return filter, false
		}
		filter.AddressContainsAny = terms
		return filter, true
	}

	if t.BoxDeltaDeg > 0 {
		bound := geometry.BoundAround(origin.Point(), t.BoxDeltaDeg)
		filter.Bound = &bound
	}
	return filter, true
}

// Retriever finds comparable sales by widening the search until enough
// are found.
type Retriever struct {
	store   SalesStore
	tiers   []Tier
	min     int
	max     int
	timeout time.Duration
	logger  *logrus.Logger
}

func NewRetriever(store SalesStore, tiers []Tier, minSample, maxSample int, timeout time.Duration, logger *logrus.Logger) *Retriever {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	if minSample <= 0 {
		minSample = DefaultMinComparables
	}
	if maxSample < minSample {
		maxSample = DefaultMaxComparables
	}
	return &Retriever{
		store:   store,
		tiers:   tiers,
		min:     minSample,
		max:     maxSample,
		timeout: timeout,
		logger:  logger,
	}
}

// FindComparables returns at most max distinct usable sales, closest first.
// Sales that cannot be priced never count toward the minimum sample.
// An empty result is not an error.
func (r *Retriever) FindComparables(ctx context.Context, q models.PropertyQuery, origin models.GeoCoordinate) ([]models.Sale, error) {
	seen := make(map[string]struct{})
	var merged []models.Sale
	reached := "exhausted"

	for _, tier := range r.tiers {
		filter, ok := tier.Filter(q, origin)
		if !ok {
			continue
		}

		sales, err := r.find(ctx, filter)
		if err != nil {
			return nil, upstream(errors.Wrapf(err, "tier %s", tier.Name))
		}

		added := 0
		for _, s := range sales {
			if _, ok := s.PricePerSqm(); !ok {
				continue
			}
			key := s.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, s)
			added++
		}

		r.logger.WithFields(logrus.Fields{
			"tier":  tier.Name,
			"found": len(sales),
			"added": added,
			"total": len(merged),
		}).Debug("Comparable tier searched")

		if len(merged) >= r.min {
			reached = tier.Name
			break
		}
	}
	metrics.RetrievalTier.WithLabelValues(reached).Inc()

	SortByDistance(merged, origin)
	if len(merged) > r.max {
		merged = merged[:r.max]
	}
	return merged, nil
}

func (r *Retriever) find(ctx context.Context, filter database.SaleFilter) ([]models.Sale, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.store.FindSales(ctx, filter)
}

// SortByDistance orders sales closest to origin first. Ties go to the most
// recent sale, then to the key so the order is deterministic.
func SortByDistance(sales []models.Sale, origin models.GeoCoordinate) {
	p := origin.Point()
	dist := make(map[string]float64, len(sales))
	for i := range sales {
		dist[sales[i].Key()] = geometry.DistanceToKm(p, sales[i].Latitude, sales[i].Longitude)
	}

	sort.SliceStable(sales, func(i, j int) bool {
		di, dj := dist[sales[i].Key()], dist[sales[j].Key()]
		if di != dj {
			return di < dj
		}
		if !sales[i].SaleDate.Equal(sales[j].SaleDate) {
			return sales[i].SaleDate.After(sales[j].SaleDate)
		}
		return sales[i].Key() < sales[j].Key()
	})
}
