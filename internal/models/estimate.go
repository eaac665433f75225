package models

import (
	"errors"

	"github.com/paulmach/orb"
)

// GeoCoordinate is a resolved address position
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var ErrInvalidCoordinate = errors.New("coordinate out of range")

// NewGeoCoordinate validates the ranges [-90,90] and [-180,180]
func NewGeoCoordinate(lat, lon float64) (GeoCoordinate, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return GeoCoordinate{}, ErrInvalidCoordinate
	}
	return GeoCoordinate{Latitude: lat, Longitude: lon}, nil
}

// Point returns the coordinate in orb's [lon, lat] order
func (g GeoCoordinate) Point() orb.Point {
	return orb.Point{g.Longitude, g.Latitude}
}

// WeightedComparable is a sale scored against one estimation origin
type WeightedComparable struct {
	Sale       Sale
	DistanceKm float64
	Weight     float64
}

type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// EstimateResult is the output of the estimation engine, serialised in the
// format the valuation form consumes.
type EstimateResult struct {
	AveragePricePerSqm  int64      `json:"average_price_per_sqm"`
	EstimatedPrice      int64      `json:"estimated_price"`
	PriceRange          PriceRange `json:"price_range"`
	ComparableSaleCount int        `json:"comparable_sales"`
	ConfidenceScore     float64    `json:"confidence_score"`
}
