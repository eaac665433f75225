package database

import (
	"context"

	"valuation/server/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AddressGeocoder is the part of a geocoder needed to backfill coordinates
type AddressGeocoder interface {
	Geocode(ctx context.Context, address string) (models.GeoCoordinate, error)
}

// GeocodeReport summarizes one UpdateMissingCoordinates run
type GeocodeReport struct {
	Total     int64 `json:"total"`
	Processed int   `json:"processed"`
	Failed    int   `json:"failed"`
}

// UpdateMissingCoordinates geocodes stored sales that have no coordinates.
// Every attempted row is marked so failures are not retried on each run.
func (d *Database) UpdateMissingCoordinates(ctx context.Context, geocoder AddressGeocoder, batchSize int) (GeocodeReport, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	pending := d.db.WithContext(ctx).Model(&models.Sale{}).
		Where("(latitude IS NULL OR longitude IS NULL)").
		Where("geocoding_attempted = ?", false).
		Where("address <> ''").
		Session(&gorm.Session{})

	var report GeocodeReport
	if err := pending.Count(&report.Total).Error; err != nil {
		return report, errors.Wrap(err, "failed to count sales")
	}

	if report.Total == 0 {
		d.logger.Info("No sales need geocoding")
		return report, nil
	}

	d.logger.Infof("Found %d sales that need geocoding", report.Total)

	for int64(report.Processed+report.Failed) < report.Total {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var batch []models.Sale
		if err := pending.Order("id").Limit(batchSize).Find(&batch).Error; err != nil {
			return report, errors.Wrap(err, "failed to query sales")
		}

		// Nothing left although the count said otherwise: rows changed underneath
		if len(batch) == 0 {
			break
		}

		err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, sale := range batch {
				updates := map[string]interface{}{"geocoding_attempted": true}

				coord, err := geocoder.Geocode(ctx, sale.Address)
				if err != nil {
					d.logger.WithError(err).WithField("address", sale.Address).Warn("Failed to geocode sale")
					report.Failed++
				} else {
					updates["latitude"] = coord.Latitude
					updates["longitude"] = coord.Longitude
					report.Processed++
				}

				if err := tx.Model(&models.Sale{}).Where("id = ?", sale.ID).Updates(updates).Error; err != nil {
					return errors.Wrap(err, "failed to update coordinates")
				}
			}
			return nil
		})
		if err != nil {
			return report, err
		}

		d.logger.WithFields(logrus.Fields{
			"done":   report.Processed + report.Failed,
			"total":  report.Total,
			"failed": report.Failed,
		}).Info("Geocoding progress")
	}

	d.logger.WithFields(logrus.Fields{
		"processed": report.Processed,
		"failed":    report.Failed,
		"total":     report.Total,
	}).Info("Geocoding completed")

	return report, nil
}
