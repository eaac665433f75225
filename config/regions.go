package config

import "valuation/server/internal/models"

// Region holds the market defaults used when no comparable sale is found
type Region struct {
	Name   string    `json:"name"`
	Center []float64 `json:"center"`

	// Default price per square metre, calibrated on local sales
	HousePricePerSqm     float64 `json:"house_price_per_sqm"`
	ApartmentPricePerSqm float64 `json:"apartment_price_per_sqm"`
}

// SupportedRegions is a list of markets the estimator is calibrated for
var SupportedRegions = []Region{
	{
		Name:                 "lagny-sur-marne",
		Center:               []float64{48.8722, 2.7073},
		HousePricePerSqm:     3800,
		ApartmentPricePerSqm: 4200,
	},
	// Add more regions here as needed
}

// GetRegionNames returns a list of supported region names
func GetRegionNames() []string {
	names := make([]string, len(SupportedRegions))
	for i, region := range SupportedRegions {
		names[i] = region.Name
	}
	return names
}

// GetRegionByName returns a region configuration by name
func GetRegionByName(name string) *Region {
	for _, region := range SupportedRegions {
		if region.Name == name {
			return &region
		}
	}
	return nil
}

// DefaultPricePerSqm returns the fallback rate for a property kind
func (r *Region) DefaultPricePerSqm(kind models.PropertyKind) float64 {
	if kind == models.KindHouse {
		return r.HousePricePerSqm
	}
	return r.ApartmentPricePerSqm
}
