package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cuilabs/aios/pkg/artifacts"
	"github.com/cuilabs/aios/pkg/config"
	"github.com/cuilabs/aios/pkg/gate"
	"github.com/cuilabs/aios/pkg/gate/evaluators"
	"github.com/cuilabs/aios/pkg/history"
	"github.com/cuilabs/aios/pkg/observability"
	"github.com/cuilabs/aios/pkg/sink"
)

// runCheck implements `releasegate check`.
//
// Exit codes:
//
//	0 = all gates pass
//	1 = at least one gate failed
//	2 = usage error or the report could not be written
func runCheck(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("check", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		integration string
		perf        string
		chaos       string
		models      string
		output      string
		policyPath  string
		release     string
		signKey     string
		keyID       string
		historyDSN  string
		jsonOutput  bool
		parallel    bool
		inputs      multiFlag
	)

	cmd.StringVar(&integration, "integration", "", "Path or URL of the integration test results")
	cmd.StringVar(&perf, "perf", "", "Path or URL of the performance test results")
	cmd.StringVar(&chaos, "chaos", "", "Path or URL of the chaos test results")
	cmd.StringVar(&models, "models", "", "Path or URL of the model validation report")
	cmd.Var(&inputs, "input", "Additional named input key=location (repeatable)")
	cmd.StringVar(&output, "output", "", "Where to write the gate report (REQUIRED)")
	cmd.StringVar(&policyPath, "config", "", "Gate policy YAML (default: the four standard gates)")
	cmd.StringVar(&release, "release", "", "Semantic version of the release under evaluation")
	cmd.StringVar(&signKey, "sign-key", "", "Ed25519 PEM private key; writes <output>.jwt")
	cmd.StringVar(&keyID, "key-id", "", "Key identifier placed in the attestation header")
	cmd.StringVar(&historyDSN, "history", "", "Record the run in this database (sqlite path or postgres:// URL)")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the report as JSON instead of the summary")
	cmd.BoolVar(&parallel, "parallel", false, "Evaluate gates concurrently")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if output == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --output is required")
		return 2
	}

	if release != "" {
		if _, err := semver.NewVersion(release); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --release %q is not a semantic version: %v\n", release, err)
			return 2
		}
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel, stderr)
	if signKey == "" {
		signKey = cfg.SigningKeyPath
	}
	if keyID == "" {
		keyID = cfg.SigningKeyID
	}
	if historyDSN == "" {
		historyDSN = cfg.HistoryDSN
	}

	named := map[string]string{
		"integration": integration,
		"perf":        perf,
		"chaos":       chaos,
		"models":      models,
	}
	for _, kv := range inputs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			_, _ = fmt.Fprintf(stderr, "Error: --input %q must be key=location\n", kv)
			return 2
		}
		named[key] = value
	}

	policy := config.DefaultPolicy()
	if policyPath != "" {
		p, err := config.LoadPolicy(policyPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		policy = p
	}

	engine, err := evaluators.Build(policy, named)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		obs, _ = observability.New(ctx, observability.DefaultConfig())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	engine.WithLogger(logger).
		WithTracer(obs.Tracer()).
		WithRecorder(obs).
		WithParallel(parallel)

	store := artifacts.NewRouter("")
	loader := artifacts.NewLoader(store, cfg.CacheSize).WithLogger(logger)

	report := engine.Run(ctx, loader, gate.RunOptions{Release: release})
	obs.RecordRun(ctx, report)

	if err := sink.Write(ctx, store, report, output); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if signKey != "" {
		if err := writeAttestation(ctx, store, report, output+".jwt", signKey, keyID); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	if historyDSN != "" {
		recordHistory(ctx, logger, historyDSN, report)
	}
	if cfg.RedisAddr != "" {
		pub := sink.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStream)
		if err := pub.Publish(ctx, report); err != nil {
			logger.Warn("report publish failed", "addr", cfg.RedisAddr, "error", err)
		}
		_ = pub.Close()
	}

	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if err := sink.Summary(stdout, report); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return sink.ExitCode(report)
}

// recordHistory persists the run. A history outage never changes the verdict.
func recordHistory(ctx context.Context, logger *slog.Logger, dsn string, report *gate.Report) {
	store, err := history.Open(ctx, dsn)
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()
	if err := store.Save(ctx, report); err != nil {
		logger.Warn("history save failed", "run_id", report.RunID, "error", err)
	}
}

func writeAttestation(ctx context.Context, store artifacts.Store, report *gate.Report, dest, keyPath, keyID string) error {
	key, err := loadPrivateKey(keyPath)
	if err != nil {
		return err
	}
	token, err := gate.Attest(report, key, keyID)
	if err != nil {
		return err
	}
	loc, err := artifacts.ParseLocation(dest)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, loc, []byte(token+"\n")); err != nil {
		return fmt.Errorf("write attestation %s: %w", dest, err)
	}
	return nil
}

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an Ed25519 private key")
	}
	return priv, nil
}

func loadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an Ed25519 key")
	}
	return pub, nil
}
