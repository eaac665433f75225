package estimation

import (
	"context"
	"errors"
	"os"
	"time"

	"valuation/server/internal/geocoding"
	"valuation/server/internal/metrics"
	"valuation/server/internal/models"

	"github.com/sirupsen/logrus"
)

// Geocoder resolves a free-text address to a coordinate
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeoCoordinate, error)
}

// Options tunes the engine, zero values use the defaults
type Options struct {
	Tiers          []Tier
	MinComparables int
	MaxComparables int
	GeocodeTimeout time.Duration
	StoreTimeout   time.Duration
	Now            func() time.Time
}

const DefaultCallTimeout = 5 * time.Second

// Engine runs one estimation: resolve the address, gather comparables, price.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	geocoder       Geocoder
	retriever      *Retriever
	pricer         *Pricer
	geocodeTimeout time.Duration
	logger         *logrus.Logger
}

func NewEngine(geocoder Geocoder, store SalesStore, rates RateSource, opts Options, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = DefaultCallTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultCallTimeout
	}

	return &Engine{
		geocoder:       geocoder,
		retriever:      NewRetriever(store, opts.Tiers, opts.MinComparables, opts.MaxComparables, opts.StoreTimeout, logger),
		pricer:         NewPricer(rates, opts.Now),
		geocodeTimeout: opts.GeocodeTimeout,
		logger:         logger,
	}
}

// Resolve geocodes an address and maps provider failures to engine errors
func (e *Engine) Resolve(ctx context.Context, address string) (models.GeoCoordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.geocodeTimeout)
	defer cancel()

	coord, err := e.geocoder.Geocode(ctx, address)
	switch {
	case err == nil:
		return coord, nil
	case errors.Is(err, geocoding.ErrEmptyQuery):
		return models.GeoCoordinate{}, invalidInput("address missing")
	case errors.Is(err, geocoding.ErrNotFound):
		return models.GeoCoordinate{}, notFound("address not found")
	default:
		return models.GeoCoordinate{}, upstream(err)
	}
}

// Estimate values the property described by q
func (e *Engine) Estimate(ctx context.Context, q models.PropertyQuery) (result models.EstimateResult, err error) {
	start := time.Now()
	defer func() {
		metrics.EstimateDuration.Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = KindOf(err).String()
		} else if result.ComparableSaleCount == 0 {
			outcome = "fallback"
		}
		metrics.EstimatesTotal.WithLabelValues(outcome).Inc()
	}()

	if err := ValidateQuery(q); err != nil {
		return models.EstimateResult{}, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"kind":        q.Kind,
		"living_area": q.LivingAreaSqm,
		"condition":   q.Condition.String(),
	})

	origin, err := e.Resolve(ctx, q.Address)
	if err != nil {
		log.WithError(err).Warn("Failed to resolve address")
		return models.EstimateResult{}, err
	}

	comparables, err := e.retriever.FindComparables(ctx, q, origin)
	if err != nil {
		log.WithError(err).Error("Failed to retrieve comparable sales")
		return models.EstimateResult{}, err
	}

	result = e.pricer.ComputeEstimate(q, comparables, origin)
	metrics.ComparablesFound.Observe(float64(result.ComparableSaleCount))

	log.WithFields(logrus.Fields{
		"comparables":     result.ComparableSaleCount,
		"estimated_price": result.EstimatedPrice,
		"confidence":      result.ConfidenceScore,
	}).Info("Estimate computed")

	return result, nil
}
