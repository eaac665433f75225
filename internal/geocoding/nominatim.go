package geocoding

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"valuation/server/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	nominatimDefaultURL = "https://nominatim.openstreetmap.org"

	// Nominatim's usage policy allows one request per second
	nominatimRate = 1.0
)

// NominatimGeocoder queries OpenStreetMap Nominatim
type NominatimGeocoder struct {
	httpProvider
}

func NewNominatimGeocoder(opts Options, logger *logrus.Logger) *NominatimGeocoder {
	return &NominatimGeocoder{
		httpProvider: newHTTPProvider("nominatim", nominatimDefaultURL, nominatimRate, opts, logger),
	}
}

type nominatimResponse []struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		Road     string `json:"road"`
		Postcode string `json:"postcode"`
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
	} `json:"address"`
}

func (g *NominatimGeocoder) search(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	params := url.Values{
		"q":              []string{q},
		"format":         []string{"json"},
		"limit":          []string{strconv.Itoa(limit)},
		"countrycodes":   []string{"fr"},
		"addressdetails": []string{"1"},
	}

	body, err := g.get(ctx, "/search", params.Encode())
	if err != nil {
		g.logger.WithError(err).WithField("address", q).Error("Geocoding request failed")
		return nil, err
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("address", q).Error("Failed to parse response")
		return nil, errors.Wrap(err, "failed to parse response")
	}

	suggestions := make([]Suggestion, 0, len(result))
	for _, r := range result {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			g.logger.WithField("display_name", r.DisplayName).Warn("Skipping match with unparseable coordinates")
			continue
		}
		city := r.Address.City
		if city == "" {
			city = r.Address.Town
		}
		if city == "" {
			city = r.Address.Village
		}
		suggestions = append(suggestions, Suggestion{
			Label:      r.DisplayName,
			Street:     r.Address.Road,
			PostalCode: r.Address.Postcode,
			City:       city,
			Latitude:   lat,
			Longitude:  lon,
		})
	}
	return suggestions, nil
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (models.GeoCoordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.GeoCoordinate{}, ErrEmptyQuery
	}

	g.logger.WithField("address", address).Debug("Geocoding address with Nominatim")

	matches, err := g.search(ctx, address, 1)
	if err != nil {
		return models.GeoCoordinate{}, err
	}
	if len(matches) == 0 {
		g.logger.WithField("address", address).Warn("No results found")
		return models.GeoCoordinate{}, ErrNotFound
	}

	coord, err := models.NewGeoCoordinate(matches[0].Latitude, matches[0].Longitude)
	if err != nil {
		return models.GeoCoordinate{}, errors.Wrapf(err, "invalid coordinates for %q", address)
	}

	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  coord.Latitude,
		"longitude": coord.Longitude,
		"source":    "nominatim",
	}).Info("Successfully geocoded address")

	return coord, nil
}

func (g *NominatimGeocoder) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSuggestLen {
		return []Suggestion{}, nil
	}
	return g.search(ctx, query, clampLimit(limit))
}
