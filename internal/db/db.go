package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"delivery-tracking-backend/config"
	"delivery-tracking-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	logrus.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableGeoIndexes {
		logrus.Info("applying geo-specific DDL")
		if err := applyGeoDDL(db); err != nil {
			logrus.WithError(err).Warn("failed to apply some geo DDL, continuing without it")
		}
	}

	logrus.Info("database initialization complete")
	return db, nil
}

// Migrate runs the schema migrations for all engine tables. Exposed so
// tests can migrate an in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.TrackingSession{},
		&model.LocationSample{},
		&model.Geofence{},
		&model.GeofenceEvent{},
		&model.ContainmentState{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// applyGeoDDL adds the PostGIS extension and the hot-path indexes. Sample
// reads are always (trip, time-desc); event reads are (trip, time-asc).
func applyGeoDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS postgis;",
		"CREATE INDEX IF NOT EXISTS idx_location_samples_trip_time_desc ON location_samples (trip_id, timestamp DESC);",
		"CREATE INDEX IF NOT EXISTS idx_geofence_events_trip_time ON geofence_events (trip_id, triggered_at);",
		"CREATE INDEX IF NOT EXISTS idx_location_samples_geom ON location_samples USING GIST (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326));",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
