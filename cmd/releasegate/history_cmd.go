package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cuilabs/aios/pkg/config"
	"github.com/cuilabs/aios/pkg/gate"
	"github.com/cuilabs/aios/pkg/history"
)

// runHistory implements `releasegate history`.
func runHistory(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dsn           string
		limit         int
		latestPassing bool
	)

	cmd.StringVar(&dsn, "dsn", "", "History database (default: RELEASEGATE_HISTORY_DSN)")
	cmd.IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.BoolVar(&latestPassing, "latest-passing", false, "Print only the highest passing release")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	newLogger(cfg.LogLevel, stderr)
	if dsn == "" {
		dsn = cfg.HistoryDSN
	}
	if dsn == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --dsn or RELEASEGATE_HISTORY_DSN is required")
		return 2
	}

	ctx := context.Background()
	store, err := history.Open(ctx, dsn)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer store.Close()

	if latestPassing {
		rec, err := store.LatestPassing(ctx)
		if errors.Is(err, history.ErrNoPassingRelease) {
			_, _ = fmt.Fprintln(stderr, "No passing release recorded")
			return 1
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintln(stdout, rec.Release)
		return 0
	}

	records, err := store.List(ctx, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(stdout, "No runs recorded")
		return 0
	}
	for _, rec := range records {
		status := "✅ PASS"
		if !rec.Passed {
			status = "❌ FAIL"
		}
		release := rec.Release
		if release == "" {
			release = "-"
		}
		line := fmt.Sprintf("%s  %s  %-12s %s", rec.Timestamp.UTC().Format(gate.TimestampFormat), status, release, rec.RunID)
		if len(rec.FailedGates) > 0 {
			line += "  failed: " + strings.Join(rec.FailedGates, ", ")
		}
		_, _ = fmt.Fprintln(stdout, line)
	}
	return 0
}
