package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/cuilabs/aios/pkg/artifacts"
	"github.com/cuilabs/aios/pkg/config"
	"github.com/cuilabs/aios/pkg/modelval"
)

// runValidateModels implements `releasegate validate-models`.
//
// Exit codes:
//
//	0 = report written, no drift
//	1 = report written, model drifted from baseline
//	2 = predictions unavailable or invalid
func runValidateModels(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate-models", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		modelsDir   string
		predictions string
		outDir      string
	)

	cmd.StringVar(&modelsDir, "models-dir", "packages/ml/models", "Directory holding model_card.json and baseline_metrics.json")
	cmd.StringVar(&predictions, "predictions", "", "Predictions document (default: <models-dir>/predictions.json)")
	cmd.StringVar(&outDir, "out", "", "Output directory for report.json (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if outDir == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --out is required")
		return 2
	}

	cfg := config.Load()
	newLogger(cfg.LogLevel, stderr)

	ctx := context.Background()
	v := modelval.NewValidator(artifacts.NewRouter(""))
	report, err := v.Validate(ctx, modelval.Options{ModelsDir: modelsDir, Predictions: predictions})
	if err != nil {
		if errors.Is(err, modelval.ErrDependencyUnavailable) {
			_, _ = fmt.Fprintf(stderr, "Error: no predictions to evaluate: %v\n", err)
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	dest, err := v.Write(ctx, report, outDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	_, _ = fmt.Fprintf(stdout, "Model validation complete. Report saved to: %s\n", dest)
	modelval.PrintSummary(stdout, report)

	if report.DriftScores.Status == modelval.StatusDrifted {
		_, _ = fmt.Fprintln(stderr, "⚠️  Warning: Model has drifted from baseline!")
		return 1
	}
	return 0
}
