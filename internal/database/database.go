package database

import (
	"context"
	"math"
	"os"
	"strings"

	"valuation/server/internal/models"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// MaxRowsPerQuery bounds a single comparable lookup
const MaxRowsPerQuery = 500

type Database struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// SaleFilter selects comparable sales. Zero values disable a predicate.
type SaleFilter struct {
	Kind    models.PropertyKind
	MinArea float64
	MaxArea float64

	// Restrict to sales located inside the box
	Bound *orb.Bound

	// Containment against the address text ignoring case, accents and
	// punctuation, any term matches
	AddressContainsAny []string

	// Skip sales without a positive price and living area
	PricedOnly bool

	Limit int
}

// Open connects to sqlite (dsn is a file path) or postgres (dsn is a
// connection string).
func Open(driver, dsn string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}

	return &Database{db: db, logger: logger}, nil
}

func (d *Database) GetDB() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunMigrations creates the sales table and its indexes
func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&models.Sale{}); err != nil {
		return errors.Wrap(err, "failed to migrate property_sales")
	}

	// Rows that already have coordinates never need geocoding
	err := d.db.Model(&models.Sale{}).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL AND geocoding_attempted = ?", false).
		Update("geocoding_attempted", true).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark existing coordinates as attempted")
	}
	return d.backfillAddressSearch()
}

// backfillAddressSearch folds the address of rows written before the
// address_search column existed
func (d *Database) backfillAddressSearch() error {
	var sales []models.Sale
	filled := 0
	result := d.db.Select("id", "address").
		Where("address_search IS NULL OR address_search = ''").
		Where("address <> ''").
		FindInBatches(&sales, 500, func(_ *gorm.DB, _ int) error {
			for _, s := range sales {
				err := d.db.Model(&models.Sale{}).Where("id = ?", s.ID).
					Update("address_search", models.FoldAddress(s.Address)).Error
				if err != nil {
					return err
				}
				filled++
			}
			return nil
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to backfill address_search")
	}
	if filled > 0 {
		d.logger.WithField("rows", filled).Info("Backfilled address search column")
	}
	return nil
}

// FindSales returns the sales matching filter. Box queries come back closest
// to the box centre first, others most recent first.
func (d *Database) FindSales(ctx context.Context, filter SaleFilter) ([]models.Sale, error) {
	q := d.db.WithContext(ctx).Model(&models.Sale{})

	if filter.Kind != "" {
		q = q.Where("property_kind = ?", filter.Kind)
	}
	if filter.MinArea > 0 {
		q = q.Where("living_area >= ?", filter.MinArea)
	}
	if filter.MaxArea > 0 {
		q = q.Where("living_area <= ?", filter.MaxArea)
	}
	if filter.PricedOnly {
		q = q.Where("price > 0 AND living_area > 0")
	}
	if filter.Bound != nil {
		q = q.Where("latitude BETWEEN ? AND ?", filter.Bound.Min.Lat(), filter.Bound.Max.Lat()).
			Where("longitude BETWEEN ? AND ?", filter.Bound.Min.Lon(), filter.Bound.Max.Lon())
	}

	if terms := likePatterns(filter.AddressContainsAny); len(terms) > 0 {
		clauses := make([]string, len(terms))
		args := make([]interface{}, len(terms))
		for i, term := range terms {
			clauses[i] = "address_search LIKE ?"
			args[i] = term
		}
		q = q.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	limit := filter.Limit
	if limit <= 0 || limit > MaxRowsPerQuery {
		limit = MaxRowsPerQuery
	}

	if filter.Bound != nil {
		q = q.Order(nearestFirst(filter.Bound.Center()))
	} else {
		q = q.Order("sale_date DESC").Order("id")
	}

	var sales []models.Sale
	if err := q.Limit(limit).Find(&sales).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query sales")
	}
	return sales, nil
}

// nearestFirst orders by squared equirectangular distance to center so the
// row limit keeps the closest sales of a dense box. gorm drops column orders
// merged with an expression, so the tie-breaks live in the same expression.
func nearestFirst(center orb.Point) clause.OrderBy {
	scale := math.Cos(center.Lat() * math.Pi / 180)
	return clause.OrderBy{Expression: clause.Expr{
		SQL: "(latitude - ?) * (latitude - ?) + (longitude - ?) * (longitude - ?) * ?, sale_date DESC, id",
		Vars: []interface{}{
			center.Lat(), center.Lat(),
			center.Lon(), center.Lon(),
			scale * scale,
		},
		WithoutParentheses: true,
	}}
}

func likePatterns(terms []string) []string {
	// Folding also drops the LIKE wildcards % and _
	var patterns []string
	for _, t := range terms {
		t = models.FoldAddress(t)
		if t == "" {
			continue
		}
		patterns = append(patterns, "%"+t+"%")
	}
	return patterns
}

// InsertSales writes a batch of sales in one transaction
func (d *Database) InsertSales(ctx context.Context, sales []models.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return InsertSalesTx(tx, sales)
	})
}

// InsertSalesTx writes sales using an open transaction
func InsertSalesTx(tx *gorm.DB, sales []models.Sale) error {
	for i := range sales {
		if sales[i].HasCoordinates() {
			sales[i].GeocodingAttempted = true
		}
	}
	if err := tx.CreateInBatches(sales, 100).Error; err != nil {
		return errors.Wrap(err, "failed to insert sales")
	}
	return nil
}

// CountSales returns the number of stored sales
func (d *Database) CountSales(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Sale{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "failed to count sales")
	}
	return count, nil
}
