package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"

	config "github.com/slotbook/clinic_booking/configs"
	"github.com/slotbook/clinic_booking/models"
)

// Connect opens the postgres pool. The caller owns the handle and must
// Close it on shutdown.
func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	return open(postgres.Open(cfg.DatabaseURL), cfg, log)
}

func open(dialector gorm.Dialector, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gl := zapgorm2.New(log.Named("gorm"))
	gl.LogLevel = gormlogger.Warn
	gl.SlowThreshold = 500 * time.Millisecond
	gl.IgnoreRecordNotFoundError = true

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            false,
		DisableAutomaticPing:   true,
		Logger:                 gl,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected",
		zap.Int("max_open_conns", cfg.DBMaxOpenConns),
		zap.Int("max_idle_conns", cfg.DBMaxIdleConns),
	)
	return db, nil
}

// Migrate creates or updates doctors, slots and bookings, including the
// cascading foreign keys and check constraints declared on the models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Doctor{}, &models.Slot{}, &models.Booking{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
