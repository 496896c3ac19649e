package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Loader resolves an artifact location to a parsed document.
// It returns nil when the artifact is unavailable or malformed.
type Loader interface {
	Load(ctx context.Context, location string) *Artifact
}

// Recorder receives one observation per evaluated gate.
type Recorder interface {
	RecordVerdict(ctx context.Context, v Verdict, kind string, d time.Duration)
}

// Engine runs a declared set of gates in registration order.
type Engine struct {
	specs    []Spec
	index    map[string]int
	clock    func() time.Time
	newID    func() string
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
	parallel bool
}

// NewEngine creates an engine with no gates.
func NewEngine() *Engine {
	return &Engine{
		index:  make(map[string]int),
		clock:  time.Now,
		newID:  uuid.NewString,
		logger: slog.Default().With("component", "gate"),
		tracer: otel.Tracer("releasegate/gate"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithRunID overrides run ID generation.
func (e *Engine) WithRunID(newID func() string) *Engine {
	e.newID = newID
	return e
}

// WithLogger sets the logger used for evaluator failures.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l.With("component", "gate")
	return e
}

// WithTracer sets the tracer used for per-gate spans.
func (e *Engine) WithTracer(t trace.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithRecorder attaches a per-gate metrics recorder.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

// WithParallel evaluates gates concurrently. Report order is unaffected.
func (e *Engine) WithParallel(parallel bool) *Engine {
	e.parallel = parallel
	return e
}

// Register adds a gate. Gates run in registration order and names are unique.
func (e *Engine) Register(s Spec) error {
	if err := s.validate(); err != nil {
		return err
	}
	if _, exists := e.index[s.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateGate, s.Name)
	}
	e.index[s.Name] = len(e.specs)
	e.specs = append(e.specs, s)
	return nil
}

// Specs returns the registered specs in order.
func (e *Engine) Specs() []Spec {
	out := make([]Spec, len(e.specs))
	copy(out, e.specs)
	return out
}

// RunOptions configures a single evaluation run.
type RunOptions struct {
	Release string
}

// Run evaluates every registered gate and returns a new report.
// A failure inside one evaluator never prevents the others from running.
func (e *Engine) Run(ctx context.Context, loader Loader, opts RunOptions) *Report {
	ctx, span := e.tracer.Start(ctx, "releasegate.run",
		trace.WithAttributes(attribute.Int("gate.count", len(e.specs))))
	defer span.End()

	verdicts := make([]Verdict, len(e.specs))
	if e.parallel {
		var wg sync.WaitGroup
		for i, s := range e.specs {
			wg.Add(1)
			go func(i int, s Spec) {
				defer wg.Done()
				verdicts[i] = e.evaluate(ctx, loader, s)
			}(i, s)
		}
		wg.Wait()
	} else {
		for i, s := range e.specs {
			verdicts[i] = e.evaluate(ctx, loader, s)
		}
	}

	report := NewReport(e.newID(), opts.Release, e.clock(), verdicts)
	span.SetAttributes(attribute.Bool("release.passed", report.OverallPassed()))
	return report
}

func (e *Engine) evaluate(ctx context.Context, loader Loader, s Spec) (v Verdict) {
	ctx, span := e.tracer.Start(ctx, "gate."+s.Name,
		trace.WithAttributes(
			attribute.String("gate.name", s.Name),
			attribute.String("gate.kind", s.Kind),
			attribute.Bool("gate.required", s.Required),
		))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			v = e.internalFailure(ctx, s, fmt.Errorf("panic: %v", r))
		}
		v.Name = s.Name
		span.SetAttributes(attribute.Bool("gate.passed", v.Passed))
		if !v.Passed {
			span.SetStatus(codes.Error, v.Message)
		}
		span.End()
		if e.recorder != nil {
			e.recorder.RecordVerdict(ctx, v, s.Kind, time.Since(start))
		}
	}()

	var art *Artifact
	if s.Source != "" && loader != nil {
		art = loader.Load(ctx, s.Source)
	}

	result, err := s.Evaluate(art, s)
	if err != nil {
		return e.internalFailure(ctx, s, err)
	}
	return result
}

func (e *Engine) internalFailure(ctx context.Context, s Spec, err error) Verdict {
	e.logger.ErrorContext(ctx, "gate evaluator failed",
		"gate", s.Name,
		"kind", s.Kind,
		"error", err,
	)
	return Fail(s.Name, fmt.Sprintf("internal error evaluating %s gate: %v", s.Name, err))
}
