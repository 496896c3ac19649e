// Package modelval computes model quality metrics and drift against a
// recorded baseline, producing the report the models gate consumes.
package modelval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cuilabs/aios/pkg/artifacts"
	"github.com/cuilabs/aios/pkg/gate"
)

// ErrDependencyUnavailable is returned when predictions are missing. Metrics
// are never fabricated in their absence.
var ErrDependencyUnavailable = errors.New("modelval: predictions unavailable")

const (
	modelCardFile   = "model_card.json"
	baselineFile    = "baseline_metrics.json"
	predictionsFile = "predictions.json"
	// ReportFile is the name of the report written under the output location.
	ReportFile = "report.json"
)

// Report is the model validation output. Accuracy is repeated at the top
// level for the models gate.
type Report struct {
	Timestamp       string         `json:"timestamp"`
	Accuracy        float64        `json:"accuracy"`
	ModelCard       map[string]any `json:"model_card"`
	ConfusionMatrix [][]int        `json:"confusion_matrix"`
	Labels          []int          `json:"labels"`
	ROC             *ROC           `json:"roc,omitempty"`
	DriftScores     DriftScores    `json:"drift_scores"`
	BaselineMetrics map[string]any `json:"baseline_metrics,omitempty"`
	Metrics         EvalMetrics    `json:"-"`
}

// Options locates validation inputs.
type Options struct {
	ModelsDir   string // holds model_card.json and baseline_metrics.json
	Predictions string // defaults to <ModelsDir>/predictions.json
	Clock       func() time.Time
}

// Validator reads inputs through an artifacts.Store.
type Validator struct {
	store  artifacts.Store
	logger *slog.Logger
}

// NewValidator creates a validator over store.
func NewValidator(store artifacts.Store) *Validator {
	return &Validator{store: store, logger: slog.Default().With("component", "modelval")}
}

// Validate computes metrics, ROC and drift for the configured model.
func (v *Validator) Validate(ctx context.Context, opts Options) (*Report, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	now := clock().UTC()

	predPath := opts.Predictions
	if predPath == "" {
		predPath = join(opts.ModelsDir, predictionsFile)
	}
	var preds Predictions
	found, err := v.readJSON(ctx, predPath, &preds)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDependencyUnavailable, predPath)
	}
	if err := preds.validate(); err != nil {
		return nil, err
	}

	card := map[string]any{}
	found, err = v.readJSON(ctx, join(opts.ModelsDir, modelCardFile), &card)
	if err != nil {
		return nil, err
	}
	if !found {
		card = defaultModelCard(now)
	}

	var baseline map[string]any
	if _, err := v.readJSON(ctx, join(opts.ModelsDir, baselineFile), &baseline); err != nil {
		return nil, err
	}

	metrics := Evaluate(&preds)
	card["eval_metrics"] = metrics
	cm, ls := ConfusionMatrix(&preds)
	roc := ComputeROC(&preds)
	if roc == nil {
		v.logger.InfoContext(ctx, "roc omitted: needs scores and exactly two classes", "samples", len(preds.YTrue))
	}

	return &Report{
		Timestamp:       now.Format(gate.TimestampFormat),
		Accuracy:        metrics.Accuracy,
		ModelCard:       card,
		ConfusionMatrix: cm,
		Labels:          ls,
		ROC:             roc,
		DriftScores:     ComputeDrift(metrics, baseline),
		BaselineMetrics: baseline,
		Metrics:         metrics,
	}, nil
}

// Write stores the report as <outDir>/report.json and returns its location.
func (v *Validator) Write(ctx context.Context, r *Report, outDir string) (string, error) {
	dest := join(outDir, ReportFile)
	loc, err := artifacts.ParseLocation(dest)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal model report: %w", err)
	}
	if err := v.store.Put(ctx, loc, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write model report: %w", err)
	}
	return dest, nil
}

// readJSON decodes the document at location into out. found is false when
// the document does not exist.
func (v *Validator) readJSON(ctx context.Context, location string, out any) (bool, error) {
	loc, err := artifacts.ParseLocation(location)
	if err != nil {
		return false, err
	}
	data, err := v.store.Get(ctx, loc)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", location, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", location, err)
	}
	return true, nil
}

func defaultModelCard(now time.Time) map[string]any {
	return map[string]any{
		"last_trained_date": now.Format(time.RFC3339),
		"dataset_size":      0,
		"model_type":        "unknown",
		"version":           "0.1.0",
	}
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// PrintSummary writes a short human-readable digest of r.
func PrintSummary(w io.Writer, r *Report) {
	fmt.Fprintln(w, "Model Validation Summary:")
	fmt.Fprintf(w, "  Model: %v\n", cardField(r.ModelCard, "model_type"))
	fmt.Fprintf(w, "  Last Trained: %v\n", cardField(r.ModelCard, "last_trained_date"))
	fmt.Fprintf(w, "  Accuracy: %.4f\n", r.Metrics.Accuracy)
	fmt.Fprintf(w, "  F1 Score: %.4f\n", r.Metrics.F1Score)
	if r.ROC != nil {
		fmt.Fprintf(w, "  ROC AUC: %.4f\n", r.ROC.AUC)
	} else {
		fmt.Fprintln(w, "  ROC AUC: n/a")
	}
	fmt.Fprintf(w, "  Drift Status: %s\n", r.DriftScores.Status)
	if r.DriftScores.VsBaseline != nil {
		fmt.Fprintf(w, "  Drift Score: %.4f\n", *r.DriftScores.VsBaseline)
	}
}

func cardField(card map[string]any, key string) any {
	if v, ok := card[key]; ok && v != nil {
		return v
	}
	return "unknown"
}
