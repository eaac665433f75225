package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"valuation/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "5250", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "ban", cfg.Geocoder.Provider)
	assert.Equal(t, 5*time.Second, cfg.Geocoder.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Estimation.StoreTimeout)
	assert.Equal(t, 3, cfg.Estimation.MinComparables)
	assert.Equal(t, 10, cfg.Estimation.MaxComparables)
	assert.Equal(t, "lagny-sur-marne", cfg.Estimation.Region)
	assert.False(t, cfg.Notification.NotifyOnEstimate)
	assert.Zero(t, cfg.Maintenance.GeocodeInterval)
	assert.Equal(t, 10, cfg.Maintenance.GeocodeBatchSize)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GEOCODER_PROVIDER=nominatim\nMAX_COMPARABLES=15\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("GEOCODER_PROVIDER")
		os.Unsetenv("MAX_COMPARABLES")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "nominatim", cfg.Geocoder.Provider)
	assert.Equal(t, 15, cfg.Estimation.MaxComparables)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "Unknown driver", key: "DB_DRIVER", val: "mongo"},
		{name: "Unknown provider", key: "GEOCODER_PROVIDER", val: "google"},
		{name: "Unknown region", key: "ESTIMATION_REGION", val: "atlantis"},
		{name: "Zero minimum", key: "MIN_COMPARABLES", val: "0"},
		{name: "Not a duration", key: "STORE_TIMEOUT", val: "soon"},
		{name: "Negative geocode interval", key: "GEOCODE_INTERVAL", val: "-1m"},
		{name: "Negative geocoder rate", key: "GEOCODER_RATE_LIMIT", val: "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestGetRegionByName(t *testing.T) {
	region := GetRegionByName("lagny-sur-marne")
	require.NotNil(t, region)
	assert.Equal(t, 3800.0, region.DefaultPricePerSqm(models.KindHouse))
	assert.Equal(t, 4200.0, region.DefaultPricePerSqm(models.KindApartment))
	assert.InDelta(t, 48.8722, region.Center[0], 0.0001)

	assert.Nil(t, GetRegionByName("utrecht"))
	assert.Contains(t, GetRegionNames(), "lagny-sur-marne")
}
