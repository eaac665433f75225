package geocoding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"valuation/server/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound   = errors.New("no results found for address")
	ErrEmptyQuery = errors.New("empty geocoding query")
)

const (
	// Autocomplete is skipped below this many characters
	MinSuggestLen  = 5
	DefaultSuggest = 5
	MaxSuggest     = 10
)

// Suggestion is one ranked address match returned for autocomplete
type Suggestion struct {
	Label      string  `json:"label"`
	Street     string  `json:"street,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	City       string  `json:"city,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Geocoder resolves free-text addresses to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeoCoordinate, error)
	Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error)
}

// Options configures an HTTP geocoding provider
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Optional [lat, lon] used to rank nearby matches first
	Focus []float64

	// Outbound requests per second, 0 uses the provider's usage policy
	RatePerSecond float64
}

// New returns the provider named by kind ("ban" or "nominatim")
func New(kind string, opts Options, logger *logrus.Logger) (Geocoder, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	switch kind {
	case "ban", "":
		return NewBANGeocoder(opts, logger), nil
	case "nominatim":
		return NewNominatimGeocoder(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q", kind)
	}
}

// httpProvider carries the transport shared by the providers
type httpProvider struct {
	name      string
	logger    *logrus.Logger
	client    *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

func newHTTPProvider(name, defaultURL string, defaultRate float64, opts Options, logger *logrus.Logger) httpProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "Valuation Estimator/1.0"
	}
	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = defaultRate
	}

	return httpProvider{
		name:      name,
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// get performs the request and returns the body of a 200 response
func (p *httpProvider) get(ctx context.Context, path, rawQuery string) ([]byte, error) {
	// Blocks until the provider allows another request
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "geocoding rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.URL.RawQuery = rawQuery
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "geocoding request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("geocoding service returned status %d", resp.StatusCode)
	}
	return body, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSuggest
	}
	if limit > MaxSuggest {
		return MaxSuggest
	}
	return limit
}
