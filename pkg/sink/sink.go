// Package sink persists gate reports, renders the console summary and maps
// the overall verdict to a process exit status.
package sink

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cuilabs/aios/pkg/artifacts"
	"github.com/cuilabs/aios/pkg/gate"
)

//go:embed report.schema.json
var reportSchema string

const reportSchemaURL = "https://releasegate.local/schemas/report.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(reportSchemaURL, strings.NewReader(reportSchema)); err != nil {
			schemaErr = fmt.Errorf("report schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(reportSchemaURL)
	})
	return schema, schemaErr
}

// Validate checks a serialised report against the report JSON Schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("report schema validation failed: %w", err)
	}
	return nil
}

// Encode serialises r as indented JSON and validates the result.
func Encode(r *gate.Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write persists r at dest, a filesystem path or object-store URL.
// An existing document at dest is replaced.
func Write(ctx context.Context, store artifacts.Store, r *gate.Report, dest string) error {
	loc, err := artifacts.ParseLocation(dest)
	if err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, loc, data); err != nil {
		return fmt.Errorf("write report %s: %w", dest, err)
	}
	return nil
}

// Read loads the report at src and checks it against the schema.
func Read(ctx context.Context, store artifacts.Store, src string) (*gate.Report, error) {
	loc, err := artifacts.ParseLocation(src)
	if err != nil {
		return nil, err
	}
	data, err := store.Get(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", src, err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var r gate.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", src, err)
	}
	return &r, nil
}

const rule = "=================================================="

// Summary renders one line per gate in configured order, then the overall line.
func Summary(w io.Writer, r *gate.Report) error {
	var b strings.Builder
	b.WriteString("Release Gate Check Results:\n")
	b.WriteString(rule + "\n")
	for _, v := range r.Verdicts() {
		status := "✅ PASS"
		if !v.Passed {
			status = "❌ FAIL"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", status, v.Name, v.Message)
	}
	b.WriteString(rule + "\n")
	if r.OverallPassed() {
		b.WriteString("Overall: ✅ PASSED\n")
	} else {
		b.WriteString("Overall: ❌ FAILED\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ExitCode is 0 when every gate passed and 1 otherwise.
func ExitCode(r *gate.Report) int {
	if r.OverallPassed() {
		return 0
	}
	return 1
}
