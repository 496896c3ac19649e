package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a gate policy cannot be used.
var ErrInvalidPolicy = errors.New("config: invalid gate policy")

// Policy is the declared, ordered list of gates for a release.
type Policy struct {
	Gates []GateConfig `yaml:"gates" json:"gates"`
}

// GateConfig configures one gate. Input names the CLI input the gate reads
// (integration, perf, chaos, models or any --input key); Source overrides it
// with a fixed location. Required falls back to the kind's default.
type GateConfig struct {
	Name       string             `yaml:"name" json:"name"`
	Kind       string             `yaml:"kind" json:"kind"`
	Input      string             `yaml:"input,omitempty" json:"input,omitempty"`
	Source     string             `yaml:"source,omitempty" json:"source,omitempty"`
	Required   *bool              `yaml:"required,omitempty" json:"required,omitempty"`
	Thresholds map[string]float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Expr       string             `yaml:"expr,omitempty" json:"expr,omitempty"`
}

// DefaultPolicy returns the standard four-gate policy.
func DefaultPolicy() *Policy {
	return &Policy{Gates: []GateConfig{
		{Name: "integration", Kind: "integration", Input: "integration"},
		{Name: "performance", Kind: "performance", Input: "perf"},
		{Name: "chaos", Kind: "chaos", Input: "chaos"},
		{Name: "models", Kind: "models", Input: "models"},
	}}
}

// LoadPolicy reads a YAML gate policy. Gate order is the order in the file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML gate policy.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	for i := range p.Gates {
		p.Gates[i].Name = norm.NFC.String(strings.TrimSpace(p.Gates[i].Name))
		p.Gates[i].Kind = strings.ToLower(strings.TrimSpace(p.Gates[i].Kind))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks gate names are present and unique and that expr gates carry
// an expression. Kind names are resolved by the evaluator registry.
func (p *Policy) Validate() error {
	if len(p.Gates) == 0 {
		return fmt.Errorf("%w: no gates declared", ErrInvalidPolicy)
	}
	seen := make(map[string]bool, len(p.Gates))
	for i, g := range p.Gates {
		if g.Name == "" {
			return fmt.Errorf("%w: gate %d has no name", ErrInvalidPolicy, i)
		}
		if seen[g.Name] {
			return fmt.Errorf("%w: duplicate gate %q", ErrInvalidPolicy, g.Name)
		}
		seen[g.Name] = true
		if g.Kind == "" {
			return fmt.Errorf("%w: gate %q has no kind", ErrInvalidPolicy, g.Name)
		}
		if g.Kind == "expr" && strings.TrimSpace(g.Expr) == "" {
			return fmt.Errorf("%w: gate %q has kind expr but no expression", ErrInvalidPolicy, g.Name)
		}
	}
	return nil
}
