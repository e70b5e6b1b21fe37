package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/synaptica-ai/medsplit/pkg/common/config"
	"github.com/synaptica-ai/medsplit/pkg/common/kafka"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"github.com/synaptica-ai/medsplit/pkg/common/models"
	"github.com/synaptica-ai/medsplit/pkg/gateway/httpclient"
	"github.com/synaptica-ai/medsplit/pkg/stores"
	"github.com/synaptica-ai/medsplit/pkg/verifier"
)

const (
	exitClean     = 0
	exitViolation = 1
	exitError     = 2
)

func main() {
	var (
		once    = pflag.Bool("once", false, "run one verification, print the JSON report and exit")
		remote  = pflag.String("remote", "", "fetch the report from a running patient service at this base URL instead of opening the stores")
		preview = pflag.Int("preview", -1, "identifiers to list per category; negative uses VERIFIER_PREVIEW_LIMIT")
		timeout = pflag.Duration("timeout", 30*time.Second, "timeout for a single verification run")
	)
	pflag.Parse()

	cfg := config.Load()
	if *preview >= 0 {
		cfg.VerifierPreviewLimit = *preview
	}
	logFile := logger.InitTo(os.Stderr, cfg.LogLevel, cfg.LogFile)
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *remote != "" {
		os.Exit(runRemote(ctx, *remote, *timeout))
	}

	st, err := stores.Open(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Error("failed to open PII store")
		os.Exit(exitError)
	}
	defer st.Close()

	audit := verifier.NewVerifier(st.PII, st.Clinical, st.Guard, st.Detector, cfg.VerifierPreviewLimit)

	if *once || !cfg.EventsEnabled() {
		code := runOnce(ctx, audit, *timeout)
		st.Close()
		os.Exit(code)
	}

	if err := watch(ctx, cfg, audit, *timeout); err != nil && ctx.Err() == nil {
		logger.Log.WithError(err).Error("auditor stopped")
		st.Close()
		os.Exit(exitError)
	}
	logger.Log.Info("Separation Auditor stopped")
}

func runOnce(ctx context.Context, audit *verifier.Verifier, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := audit.Verify(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("verification failed")
		return exitError
	}
	return printReport(report)
}

func runRemote(ctx context.Context, baseURL string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/api/verify-separation"
	var report verifier.Report
	if err := httpclient.GetJSON(ctx, httpclient.New(timeout), url, &report); err != nil {
		logger.Log.WithError(err).WithField("url", url).Error("failed to fetch verification report")
		return exitError
	}
	return printReport(&report)
}

func printReport(report *verifier.Report) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	if !report.Clean() {
		return exitViolation
	}
	return exitClean
}

// watch verifies once on start and again after every lifecycle event. The
// consumer group commits an event only after its verification ran.
func watch(ctx context.Context, cfg *config.Config, audit *verifier.Verifier, timeout time.Duration) error {
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.LifecycleTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	verify := func(ctx context.Context, trigger string) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		report, err := audit.Verify(ctx)
		if err != nil {
			return err
		}
		entry := logger.WithField("trigger", trigger)
		if !report.Clean() {
			entry.WithField("violations", len(report.Violations)).Error("separation violated")
		} else if report.LinkageIssues || report.IntegrityIssues {
			entry.WithField("warnings", len(report.Warnings)).Warn("separation intact, integrity warnings present")
		}
		return nil
	}

	if err := verify(ctx, "startup"); err != nil {
		logger.Log.WithError(err).Warn("initial verification failed")
	}

	logger.WithField("topic", cfg.LifecycleTopic).Info("Separation Auditor watching lifecycle events")
	return consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
		return verify(ctx, event.Type)
	})
}
