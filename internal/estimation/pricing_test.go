package estimation

import (
	"math"
	"testing"
	"time"

	"valuation/server/config"
	"valuation/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	origin   = models.GeoCoordinate{Latitude: 48.8722, Longitude: 2.7073}
)

func testRegion(t *testing.T) *config.Region {
	t.Helper()
	region := config.GetRegionByName("lagny-sur-marne")
	require.NotNil(t, region)
	return region
}

func coord(v float64) *float64 {
	return &v
}

// saleAt builds a located sale priced at ppsqm per square metre
func saleAt(id int64, ppsqm, area, lat, lon float64, date time.Time) models.Sale {
	return models.Sale{
		ID:           id,
		PropertyKind: models.KindApartment,
		Address:      "Rue de la Paix 77400 Lagny-sur-Marne",
		LivingArea:   area,
		Price:        ppsqm * area,
		SaleDate:     date,
		Latitude:     coord(lat),
		Longitude:    coord(lon),
	}
}

func apartmentQuery(condition models.Condition) models.PropertyQuery {
	return models.PropertyQuery{
		Kind:          models.KindApartment,
		Address:       "3 Rue de la Paix 77400 Lagny-sur-Marne",
		LivingAreaSqm: 60,
		RoomCount:     3,
		Condition:     condition,
	}
}

func sameSpotSales() []models.Sale {
	date := fixedNow.AddDate(0, -6, 0)
	return []models.Sale{
		saleAt(1, 4000, 60, origin.Latitude, origin.Longitude, date),
		saleAt(2, 4200, 60, origin.Latitude, origin.Longitude, date),
		saleAt(3, 3900, 60, origin.Latitude, origin.Longitude, date),
		saleAt(4, 4100, 60, origin.Latitude, origin.Longitude, date),
	}
}

func TestComputeEstimateEqualWeights(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })

	result := pricer.ComputeEstimate(apartmentQuery(models.ConditionGood), sameSpotSales(), origin)

	assert.Equal(t, int64(4050), result.AveragePricePerSqm)
	assert.Equal(t, int64(243000), result.EstimatedPrice)
	assert.Equal(t, models.PriceRange{Min: 225990, Max: 260010}, result.PriceRange)
	assert.Equal(t, 4, result.ComparableSaleCount)
	assert.Equal(t, 0.7, result.ConfidenceScore)
}

func TestComputeEstimateConditionMultiplier(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })

	good := pricer.ComputeEstimate(apartmentQuery(models.ConditionGood), sameSpotSales(), origin)
	brandNew := pricer.ComputeEstimate(apartmentQuery(models.ConditionNew), sameSpotSales(), origin)
	unknown := pricer.ComputeEstimate(apartmentQuery(models.ConditionUnknown), sameSpotSales(), origin)

	assert.Equal(t, int64(291600), brandNew.EstimatedPrice)
	assert.InDelta(t, float64(good.EstimatedPrice)*1.2, float64(brandNew.EstimatedPrice), 1)
	assert.Equal(t, good, unknown)
}

func TestComputeEstimateFallback(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })

	tests := []struct {
		name        string
		kind        models.PropertyKind
		comparables []models.Sale
		expected    int64
	}{
		{"No comparables apartment", models.KindApartment, nil, 252000},
		{"No comparables house", models.KindHouse, nil, 228000},
		{"Only unusable sales", models.KindApartment, []models.Sale{
			{ID: 1, LivingArea: 0, Price: 200000},
			{ID: 2, LivingArea: 50, Price: 0},
		}, 252000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := apartmentQuery(models.ConditionGood)
			q.Kind = tt.kind

			result := pricer.ComputeEstimate(q, tt.comparables, origin)
			assert.Equal(t, tt.expected, result.EstimatedPrice)
			assert.Equal(t, 0, result.ComparableSaleCount)
			assert.Equal(t, 0.3, result.ConfidenceScore)
			assert.Equal(t, round(float64(tt.expected)*0.85), result.PriceRange.Min)
			assert.Equal(t, round(float64(tt.expected)*1.15), result.PriceRange.Max)
		})
	}
}

func TestComputeEstimateSkipsUnusableSales(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })

	sales := append(sameSpotSales(), models.Sale{ID: 9, LivingArea: 60, Price: 0})
	result := pricer.ComputeEstimate(apartmentQuery(models.ConditionGood), sales, origin)

	assert.Equal(t, 4, result.ComparableSaleCount)
	assert.Equal(t, int64(243000), result.EstimatedPrice)
}

func TestComputeEstimateInvariants(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })
	date := fixedNow.AddDate(-1, 0, 0)

	sets := [][]models.Sale{
		nil,
		{saleAt(1, 3500, 55, 48.873, 2.708, date)},
		{saleAt(1, 3500, 55, 48.873, 2.708, date), saleAt(2, 4800, 70, 48.86, 2.69, date.AddDate(-3, 0, 0)), saleAt(3, 4100, 62, 48.8722, 2.7073, date)},
		sameSpotSales(),
	}

	for _, sales := range sets {
		for c := models.ConditionUnknown; c <= models.ConditionNew; c++ {
			result := pricer.ComputeEstimate(apartmentQuery(c), sales, origin)
			assert.LessOrEqual(t, result.PriceRange.Min, result.EstimatedPrice)
			assert.LessOrEqual(t, result.EstimatedPrice, result.PriceRange.Max)
			assert.Greater(t, result.EstimatedPrice, int64(0))
			assert.GreaterOrEqual(t, result.ConfidenceScore, 0.0)
			assert.LessOrEqual(t, result.ConfidenceScore, 1.0)
		}
	}
}

func TestComputeEstimateDeterministic(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })
	sales := []models.Sale{
		saleAt(1, 3500, 55, 48.873, 2.708, fixedNow.AddDate(-1, 0, 0)),
		saleAt(2, 4800, 70, 48.86, 2.69, fixedNow.AddDate(-4, 0, 0)),
	}

	first := pricer.ComputeEstimate(apartmentQuery(models.ConditionVeryGood), sales, origin)
	second := pricer.ComputeEstimate(apartmentQuery(models.ConditionVeryGood), sales, origin)
	assert.Equal(t, first, second)
}

func TestNearbySalesWeighMore(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })
	date := fixedNow.AddDate(0, -1, 0)

	sales := []models.Sale{
		saleAt(1, 5000, 60, origin.Latitude, origin.Longitude, date),
		// About 11 km north, floors at the minimum weight
		saleAt(2, 3000, 60, origin.Latitude+0.1, origin.Longitude, date),
	}

	result := pricer.ComputeEstimate(apartmentQuery(models.ConditionGood), sales, origin)
	// (5000*1 + 3000*0.1) / 1.1
	assert.Equal(t, int64(4818), result.AveragePricePerSqm)
}

func TestWeights(t *testing.T) {
	assert.Equal(t, 1.0, distanceWeight(0))
	assert.InDelta(t, 0.5, distanceWeight(2.5), 1e-9)
	assert.Equal(t, minDistanceWeight, distanceWeight(5))
	assert.Equal(t, minDistanceWeight, distanceWeight(999))

	assert.Equal(t, 1.0, recencyWeight(time.Time{}, fixedNow))
	assert.Equal(t, 1.0, recencyWeight(fixedNow.AddDate(0, 1, 0), fixedNow))
	assert.InDelta(t, 0.5, recencyWeight(fixedNow.AddDate(-2, 0, 0), fixedNow), 0.01)
	assert.Greater(t, recencyWeight(fixedNow.AddDate(-1, 0, 0), fixedNow), recencyWeight(fixedNow.AddDate(-3, 0, 0), fixedNow))
}

func TestWeighUnlocatedSale(t *testing.T) {
	pricer := NewPricer(testRegion(t), func() time.Time { return fixedNow })

	weighted := pricer.Weigh([]models.Sale{{ID: 1, LivingArea: 50, Price: 200000, SaleDate: fixedNow}}, origin)
	require.Len(t, weighted, 1)
	assert.Equal(t, 999.0, weighted[0].DistanceKm)
	assert.Equal(t, minDistanceWeight, weighted[0].Weight)
}

func TestScoreTables(t *testing.T) {
	tests := []struct {
		n          int
		confidence float64
		margin     float64
	}{
		{0, 0.3, 0.15},
		{1, 0.5, 0.10},
		{2, 0.5, 0.10},
		{3, 0.7, 0.07},
		{4, 0.7, 0.07},
		{5, 0.9, 0.05},
		{10, 0.9, 0.05},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.confidence, ConfidenceScore(tt.n), "confidence for %d", tt.n)
		assert.Equal(t, tt.margin, RangeMargin(tt.n), "margin for %d", tt.n)
	}

	for c := models.ConditionToRenovate; c < models.ConditionNew; c++ {
		assert.Less(t, ConditionMultiplier(c), ConditionMultiplier(c+1))
	}
	assert.Equal(t, 1.0, ConditionMultiplier(models.ConditionUnknown))
}

func TestRoundSaturates(t *testing.T) {
	assert.Equal(t, int64(0), round(-12.4))
	assert.Equal(t, int64(0), round(math.NaN()))
	assert.Equal(t, int64(math.MaxInt64), round(1e30))
	assert.Equal(t, int64(243000), round(242999.6))
}
