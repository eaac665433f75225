package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"valuation/server/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	banDefaultURL = "https://api-adresse.data.gouv.fr"

	// BAN caps clients at 50 requests per second per IP
	banRate = 40.0
)

// BANGeocoder queries the French national address base (Base Adresse Nationale)
type BANGeocoder struct {
	httpProvider
	focus []float64
}

func NewBANGeocoder(opts Options, logger *logrus.Logger) *BANGeocoder {
	return &BANGeocoder{
		httpProvider: newHTTPProvider("ban", banDefaultURL, banRate, opts, logger),
		focus:        opts.Focus,
	}
}

type banResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label    string  `json:"label"`
			Score    float64 `json:"score"`
			Street   string  `json:"street"`
			Name     string  `json:"name"`
			Postcode string  `json:"postcode"`
			City     string  `json:"city"`
		} `json:"properties"`
	} `json:"features"`
}

func (g *BANGeocoder) search(ctx context.Context, q string, limit int) ([]Suggestion, error) {
	params := url.Values{
		"q":     []string{q},
		"limit": []string{strconv.Itoa(limit)},
	}
	if len(g.focus) == 2 {
		params.Set("lat", fmt.Sprintf("%f", g.focus[0]))
		params.Set("lon", fmt.Sprintf("%f", g.focus[1]))
	}

	body, err := g.get(ctx, "/search/", params.Encode())
	if err != nil {
		g.logger.WithError(err).WithField("address", q).Error("Geocoding request failed")
		return nil, err
	}

	var result banResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("address", q).Error("Failed to parse response")
		return nil, errors.Wrap(err, "failed to parse response")
	}

	suggestions := make([]Suggestion, 0, len(result.Features))
	for _, f := range result.Features {
		// GeoJSON order is [lon, lat]
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		street := f.Properties.Street
		if street == "" {
			street = f.Properties.Name
		}
		suggestions = append(suggestions, Suggestion{
			Label:      f.Properties.Label,
			Street:     street,
			PostalCode: f.Properties.Postcode,
			City:       f.Properties.City,
			Latitude:   f.Geometry.Coordinates[1],
			Longitude:  f.Geometry.Coordinates[0],
		})
	}
	return suggestions, nil
}

// Geocode returns the coordinates of the best-ranked match
func (g *BANGeocoder) Geocode(ctx context.Context, address string) (models.GeoCoordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.GeoCoordinate{}, ErrEmptyQuery
	}

	g.logger.WithField("address", address).Debug("Geocoding address with BAN")

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
		"label":     matches[0].Label,
		"latitude":  coord.Latitude,
		"longitude": coord.Longitude,
		"source":    "ban",
	}).Info("Successfully geocoded address")

	return coord, nil
}

// Suggest returns up to limit matches for address autocomplete
func (g *BANGeocoder) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSuggestLen {
		return []Suggestion{}, nil
	}
	return g.search(ctx, query, clampLimit(limit))
}
