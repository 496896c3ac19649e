package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = all gates pass
//	1 = any gate failed (or verification failed)
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "check":
		return runCheck(args[2:], stdout, stderr)
	case "validate-models":
		return runValidateModels(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "history":
		return runHistory(args[2:], stdout, stderr)
	case "keygen":
		return runKeygen(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			return runCheck(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: releasegate <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	printCommand(w, "check", "Evaluate release gates (--integration, --perf, --chaos, --models, --output)")
	printCommand(w, "validate-models", "Compute model metrics and drift (--models-dir, --out)")
	printCommand(w, "verify", "Verify a gate report and its attestation (--report, --pub-key)")
	printCommand(w, "history", "List recorded gate runs (--dsn, --limit)")
	printCommand(w, "keygen", "Generate an Ed25519 signing key pair (--out)")
	printCommand(w, "help", "Show this help")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-16s %s\n", name, desc)
}

// newLogger writes leveled text logs to stderr and installs it as default.
func newLogger(level string, stderr io.Writer) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

type multiFlag []string

func (f *multiFlag) String() string { return fmt.Sprintf("%v", *f) }
func (f *multiFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}
