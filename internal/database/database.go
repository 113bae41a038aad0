// Package database opens the gorm connection and owns the schema.
package database

import (
	"github.com/pkg/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/model"
)

// Open connects with the configured driver, applies pool settings and
// registers tracing when enabled.
func Open(cfg config.DatabaseConfig, log *zap.Logger, logLevel string, tracing bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(log, logger.GormLevel(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	if tracing {
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Driver), otelgorm.WithoutQueryVariables())); err != nil {
			return nil, errors.Wrap(err, "register otelgorm")
		}
	}
	return db, nil
}

// Migrate creates or updates every storefront table.
func Migrate(db *gorm.DB) error {
	return errors.Wrap(
		db.AutoMigrate(&model.Category{}, &model.Product{}, &model.SizeStock{}, &model.Order{}),
		"auto migrate",
	)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	return sqlDB.Close()
}
