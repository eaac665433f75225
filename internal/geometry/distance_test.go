package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name     string
		p1, p2   orb.Point
		expected float64
		delta    float64
	}{
		{
			name:     "Same point",
			p1:       orb.Point{2.7073, 48.8722},
			p2:       orb.Point{2.7073, 48.8722},
			expected: 0,
			delta:    1e-9,
		},
		{
			name:     "Paris to Lagny-sur-Marne",
			p1:       orb.Point{2.3522, 48.8566},
			p2:       orb.Point{2.7073, 48.8722},
			expected: 26.0,
			delta:    0.5,
		},
		{
			name:     "One degree of latitude",
			p1:       orb.Point{0, 0},
			p2:       orb.Point{0, 1},
			expected: 111.19,
			delta:    0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, HaversineKm(tt.p1, tt.p2), tt.delta)
			assert.InDelta(t, HaversineKm(tt.p1, tt.p2), HaversineKm(tt.p2, tt.p1), 1e-9, "distance should be symmetric")
		})
	}
}

func TestDistanceToKm(t *testing.T) {
	origin := orb.Point{2.7073, 48.8722}
	lat, lon := 48.8722, 2.7073

	assert.InDelta(t, 0, DistanceToKm(origin, &lat, &lon), 1e-9)
	assert.Equal(t, UnknownDistanceKm, DistanceToKm(origin, nil, &lon))
	assert.Equal(t, UnknownDistanceKm, DistanceToKm(origin, &lat, nil))
}

func TestBoundAround(t *testing.T) {
	b := BoundAround(orb.Point{2.7, 48.8}, 0.002)
	assert.InDelta(t, 2.698, b.Min.Lon(), 1e-9)
	assert.InDelta(t, 48.802, b.Max.Lat(), 1e-9)
	assert.True(t, b.Contains(orb.Point{2.701, 48.799}))
	assert.False(t, b.Contains(orb.Point{2.71, 48.8}))

	clamped := BoundAround(orb.Point{179.99, 89.99}, 0.05)
	assert.Equal(t, 180.0, clamped.Max.Lon())
	assert.Equal(t, 90.0, clamped.Max.Lat())
}
