package database

import (
	"fmt"

	"cardsite-backend/internal/config"
	"cardsite-backend/internal/logging"
	"cardsite-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		logging.L.WithError(err).Fatal("could not connect to database")
	}

	if err := Migrate(DB); err != nil {
		logging.L.WithError(err).Fatal("auto migrate failed")
	}

	logging.L.Info("database connected, migrations applied")
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.Brand{},
		&models.Branch{},
		&models.SubscriptionPlan{},
		&models.Subscription{},
		&models.PaymentOrder{},
		&models.Payment{},
		&models.Invoice{},
		&models.AnalyticsEvent{},
		&models.QRCode{},
		&models.ShortLink{},
		&models.Lead{},
		&models.Notification{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database answers; used by the health endpoint.
func Ping() error {
	if DB == nil {
		return fmt.Errorf("database not initialised")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
