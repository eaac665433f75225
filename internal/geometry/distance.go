package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadiusKm is the mean radius used for haversine distances.
	// orb/geo uses the WGS84 equatorial radius, which overstates distances by ~0.1%.
	EarthRadiusKm = 6371.0

	// UnknownDistanceKm is assigned to sales without coordinates so they
	// sort after every located sale.
	UnknownDistanceKm = 999.0
)

// HaversineKm returns the great-circle distance between two [lon, lat] points
func HaversineKm(p1, p2 orb.Point) float64 {
	lat1Rad := p1.Lat() * math.Pi / 180
	lat2Rad := p2.Lat() * math.Pi / 180
	deltaLat := (p2.Lat() - p1.Lat()) * math.Pi / 180
	deltaLon := (p2.Lon() - p1.Lon()) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceToKm returns the distance from origin to an optional coordinate
// pair, or UnknownDistanceKm when either part is missing.
func DistanceToKm(origin orb.Point, lat, lon *float64) float64 {
	if lat == nil || lon == nil {
		return UnknownDistanceKm
	}
	return HaversineKm(origin, orb.Point{*lon, *lat})
}

// BoundAround returns a box extending deltaDeg degrees on each axis around
// center, clamped to valid coordinate ranges.
func BoundAround(center orb.Point, deltaDeg float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{
			math.Max(-180, center.Lon()-deltaDeg),
			math.Max(-90, center.Lat()-deltaDeg),
		},
		Max: orb.Point{
			math.Min(180, center.Lon()+deltaDeg),
			math.Min(90, center.Lat()+deltaDeg),
		},
	}
}
