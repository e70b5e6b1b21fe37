// Package stores opens the two patient stores from configuration and hands
// them out as explicitly owned handles.
package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/synaptica-ai/medsplit/pkg/clinical"
	"github.com/synaptica-ai/medsplit/pkg/common/config"
	"github.com/synaptica-ai/medsplit/pkg/common/database"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"github.com/synaptica-ai/medsplit/pkg/dlp"
	"github.com/synaptica-ai/medsplit/pkg/pii"
	"gorm.io/gorm"
)

// Stores bundles the adapters and the clients behind them. Close releases
// every client that Open acquired.
type Stores struct {
	PII      *pii.Repository
	Clinical *clinical.Store
	Guard    *dlp.Guard
	Detector *dlp.Detector

	piiDB   *gorm.DB
	closers []func() error
}

// Open connects both stores. A PII store failure is fatal; a clinical store
// failure leaves the service in local-only mode, where registrations end in
// the pii_only state.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	rules, err := dlp.LoadRules(cfg.GuardRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load guard rules: %w", err)
	}
	detector, err := dlp.NewDetector(rules)
	if err != nil {
		return nil, fmt.Errorf("compile guard rules: %w", err)
	}

	s := &Stores{Guard: dlp.NewGuard(rules), Detector: detector}

	s.piiDB, err = database.OpenPII(cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { return database.Close(s.piiDB) })

	s.PII = pii.NewRepository(s.piiDB, cfg.StoreTimeout)
	if err := s.PII.AutoMigrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate PII store: %w", err)
	}

	backend, err := s.openClinical(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).WithField("backend", cfg.ClinicalBackend).
			Warn("clinical store unavailable, running in local-only mode")
		backend = clinical.DisabledBackend{Reason: err}
	}
	s.Clinical = clinical.NewStore(backend, s.Guard, cfg.StoreTimeout)
	logger.Log.WithField("backend", backend.Name()).Info("clinical store ready")

	return s, nil
}

func (s *Stores) openClinical(ctx context.Context, cfg *config.Config) (clinical.Backend, error) {
	switch cfg.ClinicalBackend {
	case config.ClinicalBackendFirestore:
		client, err := database.NewFirestore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		return clinical.NewFirestoreBackend(client, cfg.ClinicalCollection), nil

	case config.ClinicalBackendSQL:
		db, err := database.OpenClinicalSQL(cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { return database.Close(db) })
		backend := clinical.NewSQLBackend(db)
		if err := backend.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate clinical store: %w", err)
		}
		return backend, nil

	case config.ClinicalBackendRedis:
		client, err := database.NewRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		return clinical.NewRedisBackend(client, cfg.ClinicalCollection), nil

	case config.ClinicalBackendMemory:
		return clinical.NewMemoryBackend(), nil

	default:
		return nil, fmt.Errorf("unsupported clinical backend %q", cfg.ClinicalBackend)
	}
}

// Ping checks the PII store, which the service cannot work without.
func (s *Stores) Ping(ctx context.Context) error {
	sqlDB, err := s.piiDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases clients in reverse order of acquisition.
func (s *Stores) Close() error {
	var errList []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	s.closers = nil
	return errors.Join(errList...)
}
