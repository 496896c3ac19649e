package gate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInconsistentReport is returned when a decoded report's stored overall
// verdict disagrees with its gate verdicts.
var ErrInconsistentReport = errors.New("gate: report overall verdict does not match gate verdicts")

// TimestampFormat is the wire format for report timestamps (UTC, trailing Z).
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// Report is the aggregate of every gate verdict for one run.
// Verdicts are held in the configured gate order.
type Report struct {
	RunID     string
	Release   string
	Timestamp time.Time
	verdicts  []Verdict
}

// NewReport assembles a report from verdicts in their declared order.
func NewReport(runID, release string, ts time.Time, verdicts []Verdict) *Report {
	vs := make([]Verdict, len(verdicts))
	copy(vs, verdicts)
	return &Report{
		RunID:     runID,
		Release:   release,
		Timestamp: ts.UTC(),
		verdicts:  vs,
	}
}

// OverallPassed is the logical AND of every gate verdict.
func (r *Report) OverallPassed() bool {
	for _, v := range r.verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}

// Verdicts returns a copy of the verdicts in configured order.
func (r *Report) Verdicts() []Verdict {
	out := make([]Verdict, len(r.verdicts))
	copy(out, r.verdicts)
	return out
}

// Verdict looks up a gate verdict by name.
func (r *Report) Verdict(name string) (Verdict, bool) {
	for _, v := range r.verdicts {
		if v.Name == name {
			return v, true
		}
	}
	return Verdict{}, false
}

// Gates returns the verdicts keyed by gate name.
func (r *Report) Gates() map[string]Verdict {
	m := make(map[string]Verdict, len(r.verdicts))
	for _, v := range r.verdicts {
		m[v.Name] = v
	}
	return m
}

// Failed returns the names of failing gates in order.
func (r *Report) Failed() []string {
	var names []string
	for _, v := range r.verdicts {
		if !v.Passed {
			names = append(names, v.Name)
		}
	}
	return names
}

type reportHeader struct {
	RunID     string `json:"run_id,omitempty"`
	Release   string `json:"release,omitempty"`
	Passed    bool   `json:"passed"`
	Timestamp string `json:"timestamp"`
}

// MarshalJSON writes the report with gates as an object in configured order.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{`)
	if r.RunID != "" {
		if err := writeField(&buf, "run_id", r.RunID); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if r.Release != "" {
		if err := writeField(&buf, "release", r.Release); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeField(&buf, "passed", r.OverallPassed()); err != nil {
		return nil, err
	}
	buf.WriteString(`,"gates":{`)
	for i, v := range r.verdicts {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeField(&buf, v.Name, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},`)
	if err := writeField(&buf, "timestamp", r.Timestamp.UTC().Format(TimestampFormat)); err != nil {
		return nil, err
	}
	buf.WriteString(`}`)
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON decodes a report, preserving gate order from the document.
// It rejects documents whose stored "passed" disagrees with the gates.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw struct {
		reportHeader
		Gates json.RawMessage `json:"gates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	verdicts, err := decodeOrderedGates(raw.Gates)
	if err != nil {
		return fmt.Errorf("decode gates: %w", err)
	}

	var ts time.Time
	if raw.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
	}

	*r = Report{
		RunID:     raw.RunID,
		Release:   raw.Release,
		Timestamp: ts.UTC(),
		verdicts:  verdicts,
	}
	if r.OverallPassed() != raw.Passed {
		return ErrInconsistentReport
	}
	return nil
}

func decodeOrderedGates(data json.RawMessage) ([]Verdict, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("gates must be an object")
	}

	var verdicts []Verdict
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.New("gate name must be a string")
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGate, name)
		}
		seen[name] = true

		var v Verdict
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("gate %s: %w", name, err)
		}
		v.Name = name
		verdicts = append(verdicts, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return verdicts, nil
}
