package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cuilabs/aios/pkg/artifacts"
	"github.com/cuilabs/aios/pkg/gate"
	"github.com/cuilabs/aios/pkg/sink"
)

// runVerify implements `releasegate verify`.
//
// Exit codes:
//
//	0 = report (and attestation, when checked) verified
//	1 = verification failed
//	2 = usage error or an input could not be read
func runVerify(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		reportPath  string
		attestation string
		pubKeyPath  string
	)

	cmd.StringVar(&reportPath, "report", "", "Gate report to verify (REQUIRED)")
	cmd.StringVar(&attestation, "attestation", "", "Attestation JWT (default: <report>.jwt)")
	cmd.StringVar(&pubKeyPath, "pub-key", "", "Ed25519 PEM public key; enables attestation checks")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if reportPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --report is required")
		return 2
	}

	ctx := context.Background()
	store := artifacts.NewRouter("")

	report, err := sink.Read(ctx, store, reportPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, artifacts.ErrNotFound) {
			return 2
		}
		return 1
	}
	digest, err := gate.Digest(report)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "✅ Report valid: %d gates, overall %s\n", len(report.Verdicts()), overall(report))
	_, _ = fmt.Fprintf(stdout, "   Digest: %s\n", digest)

	if pubKeyPath == "" {
		return 0
	}

	pub, err := loadPublicKey(pubKeyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if attestation == "" {
		attestation = reportPath + ".jwt"
	}
	loc, err := artifacts.ParseLocation(attestation)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	token, err := store.Get(ctx, loc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read attestation %s: %v\n", attestation, err)
		return 2
	}

	claims, err := gate.VerifyAttestation(report, strings.TrimSpace(string(token)), pub)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "❌ Attestation invalid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "✅ Attestation verified (run %s, passed=%t)\n", claims.ID, claims.Passed)
	return 0
}

func overall(r *gate.Report) string {
	if r.OverallPassed() {
		return "PASSED"
	}
	return "FAILED"
}
