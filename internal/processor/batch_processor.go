package processor

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"valuation/server/config"
	"valuation/server/internal/models"
)

// Columns of the DVF open data export
const (
	colMutationID = "id_mutation"
	colLocalID    = "id_local"
	colDate       = "date_mutation"
	colPrice      = "valeur_fonciere"
	colNumber     = "adresse_numero"
	colSuffix     = "adresse_suffixe"
	colStreet     = "adresse_nom_voie"
	colPostalCode = "code_postal"
	colCity       = "nom_commune"
	colKind       = "type_local"
	colSurface    = "surface_reelle_bati"
	colLongitude  = "longitude"
	colLatitude   = "latitude"
)

var requiredColumns = []string{colDate, colPrice, colStreet, colPostalCode, colCity, colKind, colSurface}

var errSkipRow = errors.New("row is not a usable dwelling sale")

// SaleWriter persists one batch of sales atomically
type SaleWriter interface {
	InsertSales(ctx context.Context, sales []models.Sale) error
}

// ImportReport summarizes one import run
type ImportReport struct {
	Read          int `json:"read"`
	Imported      int `json:"imported"`
	Skipped       int `json:"skipped"`
	Merged        int `json:"merged"`
	FailedBatches int `json:"failed_batches"`
}

// BatchImporter loads historical sales from DVF CSV files in batches
type BatchImporter struct {
	store  SaleWriter
	logger *logrus.Logger
	config *config.Config
}

// NewBatchImporter creates a new importer instance
func NewBatchImporter(store SaleWriter, config *config.Config, logger *logrus.Logger) *BatchImporter {
	return &BatchImporter{
		store:  store,
		config: config,
		logger: logger,
	}
}

// ImportFile imports every usable row of the CSV file at path
func (p *BatchImporter) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportReport{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	p.logger.WithField("file", path).Info("Importing sales")
	return p.Import(ctx, f)
}

// Import reads DVF rows from r. Rows that are not houses or apartments, or
// lack a price or surface, are skipped. Rows sharing an id_mutation are one
// sale and become a single Sale (see saleGroup). A batch that still fails
// after the configured retries is counted and the import goes on.
func (p *BatchImporter) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	var report ImportReport

	reader, columns, err := newDVFReader(r)
	if err != nil {
		return report, err
	}

	batchSize := p.config.BatchProcessing.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	batch := make([]models.Sale, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.processBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.FailedBatches++
		} else {
			report.Imported += len(batch)
		}
		batch = make([]models.Sale, 0, batchSize)
		return nil
	}

	// DVF exports list the rows of a mutation next to each other
	var group saleGroup
	closeGroup := func() error {
		defer func() { group = saleGroup{} }()
		if len(group.sales) == 0 {
			return nil
		}
		sale, ok := group.merge()
		if !ok {
			report.Skipped += len(group.sales)
			return nil
		}
		report.Merged += len(group.sales) - 1
		batch = append(batch, sale)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, errors.Wrapf(err, "failed to read line %d", report.Read+2)
		}
		report.Read++

		id := recordField(columns, record, colMutationID)
		if id == "" || id != group.id {
			if err := closeGroup(); err != nil {
				return report, err
			}
			group.id = id
		}

		sale, err := ParseRecord(columns, record)
		if err != nil {
			report.Skipped++
			continue
		}
		if !group.add(sale, recordField(columns, record, colLocalID)) {
			// Same dwelling listed again for another parcel
			report.Merged++
		}
	}
	if err := closeGroup(); err != nil {
		return report, err
	}
	if err := flush(); err != nil {
		return report, err
	}

	p.logger.WithFields(logrus.Fields{
		"read":           report.Read,
		"imported":       report.Imported,
		"skipped":        report.Skipped,
		"merged":         report.Merged,
		"failed_batches": report.FailedBatches,
	}).Info("Import completed")

	return report, nil
}

// processBatch writes a single batch with retry logic
func (p *BatchImporter) processBatch(ctx context.Context, batch []models.Sale) error {
	maxRetries := p.config.BatchProcessing.MaxRetries

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch import, attempt %d of %d", attempt, maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.BatchProcessing.RetryDelay):
			}
		}

		if err = p.store.InsertSales(ctx, batch); err == nil {
			p.logger.Debugf("Successfully imported batch of %d sales", len(batch))
			return nil
		}

		p.logger.Errorf("Batch import failed: %v", err)
	}

	return fmt.Errorf("failed to import batch after %d attempts: %w", maxRetries+1, err)
}

// newDVFReader detects the delimiter from the header line and maps column
// names to their index.
func newDVFReader(r io.Reader) (*csv.Reader, map[string]int, error) {
	buffered := bufio.NewReader(r)
	head, err := buffered.Peek(4096)
	if len(head) == 0 {
		if err == nil || err == io.EOF {
			err = errors.New("empty file")
		}
		return nil, nil, errors.Wrap(err, "failed to read header")
	}
	first := string(head)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}

	reader := csv.NewReader(buffered)
	reader.Comma = detectDelimiter(first)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}

	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			return nil, nil, errors.Errorf("missing column %q", col)
		}
	}
	return reader, columns, nil
}

func detectDelimiter(headerLine string) rune {
	for _, d := range []rune{'|', ';', '\t'} {
		if strings.ContainsRune(headerLine, d) {
			return d
		}
	}
	return ','
}

// saleGroup gathers the dwelling rows of one mutation. Every row of a
// mutation repeats its total price, so the rows must not be stored apart.
type saleGroup struct {
	id     string
	sales  []models.Sale
	locals map[string]struct{}
}

// add returns false when the dwelling identified by localID is already in
// the group
func (g *saleGroup) add(sale models.Sale, localID string) bool {
	if localID != "" {
		if g.locals == nil {
			g.locals = make(map[string]struct{})
		}
		if _, ok := g.locals[localID]; ok {
			return false
		}
		g.locals[localID] = struct{}{}
	}
	g.sales = append(g.sales, sale)
	return true
}

// merge returns a single sale for the mutation: the first dwelling with the
// summed living area of all of them. A mutation mixing houses and
// apartments has no meaningful price per square metre and is dropped.
func (g *saleGroup) merge() (models.Sale, bool) {
	if len(g.sales) == 0 {
		return models.Sale{}, false
	}
	sale := g.sales[0]
	for _, s := range g.sales[1:] {
		if s.PropertyKind != sale.PropertyKind {
			return models.Sale{}, false
		}
		sale.LivingArea += s.LivingArea
	}
	return sale, true
}

func recordField(columns map[string]int, record []string, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ParseRecord converts one DVF row into a Sale
func ParseRecord(columns map[string]int, record []string) (models.Sale, error) {
	field := func(name string) string {
		return recordField(columns, record, name)
	}

	var kind models.PropertyKind
	switch strings.ToLower(field(colKind)) {
	case "maison":
		kind = models.KindHouse
	case "appartement":
		kind = models.KindApartment
	default:
		return models.Sale{}, errSkipRow
	}

	price, err := parseDecimal(field(colPrice))
	if err != nil || price <= 0 {
		return models.Sale{}, errSkipRow
	}
	surface, err := parseDecimal(field(colSurface))
	if err != nil || surface <= 0 {
		return models.Sale{}, errSkipRow
	}

	sale := models.Sale{
		PropertyKind: kind,
		Address:      buildAddress(field(colNumber), field(colSuffix), field(colStreet), field(colPostalCode), field(colCity)),
		LivingArea:   surface,
		Price:        price,
		SaleDate:     parseDate(field(colDate)),
	}
	if sale.Address == "" {
		return models.Sale{}, errSkipRow
	}

	lat, latErr := parseDecimal(field(colLatitude))
	lon, lonErr := parseDecimal(field(colLongitude))
	if latErr == nil && lonErr == nil {
		if coord, err := models.NewGeoCoordinate(lat, lon); err == nil {
			sale.Latitude = &coord.Latitude
			sale.Longitude = &coord.Longitude
		}
	}
	return sale, nil
}

func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	// The text export writes "245000,00"
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Replace(s, ",", ".", 1)
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func buildAddress(number, suffix, street, postalCode, city string) string {
	if street == "" {
		return ""
	}
	head := strings.TrimSpace(number + strings.ToLower(suffix) + " " + street)
	if len(postalCode) == 4 {
		// Numeric exports drop the leading zero
		postalCode = "0" + postalCode
	}
	return strings.Join(strings.Fields(strings.Join([]string{head, postalCode, city}, " ")), " ")
}
