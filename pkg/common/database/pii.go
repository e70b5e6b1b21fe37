package database

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/medsplit/pkg/common/config"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenPII connects to the restricted store that holds personal data. The
// caller owns the handle and must Close it on shutdown.
func OpenPII(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.PIIDriver {
	case config.PIIDriverSQLite:
		dialector = sqlite.Open(cfg.PIISQLitePath)
	case config.PIIDriverPostgres:
		dialector = postgres.Open(fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.PostgresHost,
			cfg.PostgresUser,
			cfg.PostgresPassword,
			cfg.PostgresDB,
			cfg.PostgresPort,
			cfg.PostgresSSLMode,
		))
	default:
		return nil, fmt.Errorf("unsupported PII driver %q", cfg.PIIDriver)
	}

	db, err := gorm.Open(dialector, quietConfig())
	if err != nil {
		logger.Log.WithError(err).WithField("driver", cfg.PIIDriver).Error("failed to connect to PII store")
		return nil, err
	}
	logger.Log.WithField("driver", cfg.PIIDriver).Info("connected to PII store")
	return db, nil
}

// OpenClinicalSQL connects to a relational clinical store. It refuses to share
// the PII store's database file so the two stores stay physically apart.
func OpenClinicalSQL(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.ClinicalDatabaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("CLINICAL_DATABASE_URL is required for the sql clinical backend")
	}
	if cfg.PIIDriver == config.PIIDriverSQLite && dsn == cfg.PIISQLitePath {
		return nil, fmt.Errorf("clinical store must not share the PII database %q", dsn)
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, quietConfig())
	if err != nil {
		logger.Log.WithError(err).Error("failed to connect to clinical SQL store")
		return nil, err
	}
	logger.Log.Info("connected to clinical SQL store")
	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQL statements would otherwise be logged with bound values, which for the
// PII store means names and phone numbers.
func quietConfig() *gorm.Config {
	return &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
}
