package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/medsplit/pkg/common/config"
	"github.com/synaptica-ai/medsplit/pkg/common/kafka"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"github.com/synaptica-ai/medsplit/pkg/gateway/middleware"
	"github.com/synaptica-ai/medsplit/pkg/gateway/routes"
	"github.com/synaptica-ai/medsplit/pkg/identifier"
	"github.com/synaptica-ai/medsplit/pkg/linkage"
	"github.com/synaptica-ai/medsplit/pkg/observability/metrics"
	"github.com/synaptica-ai/medsplit/pkg/stores"
	"github.com/synaptica-ai/medsplit/pkg/verifier"
)

func main() {
	cfg := config.Load()
	logFile := logger.Init(cfg.LogLevel, cfg.LogFile)
	defer logFile.Close()

	if err := identifier.CheckEntropy(); err != nil {
		logger.Log.WithError(err).Fatal("cannot mint linking identifiers")
	}

	ctx := context.Background()
	st, err := stores.Open(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open PII store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Log.WithError(err).Error("failed to close stores")
		}
	}()

	var events linkage.Publisher
	if cfg.EventsEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.LifecycleTopic, "patient-service")
		defer producer.Close()
		events = producer
	} else {
		logger.Log.Info("KAFKA_BROKERS not set, lifecycle events disabled")
	}

	manager := linkage.NewManager(st.PII, st.Clinical, st.Guard, events)
	audit := verifier.NewVerifier(st.PII, st.Clinical, st.Guard, st.Detector, cfg.VerifierPreviewLimit)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := st.Ping(r.Context()); err != nil {
			logger.Log.WithError(err).Warn("PII store not ready")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready","clinical_backend":%q}`, st.Clinical.Backend())
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	routes.NewPatientsHandler(manager).Register(router)
	routes.NewSeparationHandler(audit).Register(router)
	routes.RegisterPreflight(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"host":             cfg.ServerHost,
			"port":             cfg.ServerPort,
			"pii_driver":       cfg.PIIDriver,
			"clinical_backend": st.Clinical.Backend(),
		}).Info("Patient Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Patient Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Patient Service stopped")
}
