package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// runKeygen writes an Ed25519 key pair for signing gate attestations.
func runKeygen(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		outDir string
		name   string
	)

	cmd.StringVar(&outDir, "out", ".", "Directory for the key files")
	cmd.StringVar(&name, "name", "releasegate", "Base name of the key files")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 2
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	privPath := filepath.Join(outDir, name+".key")
	pubPath := filepath.Join(outDir, name+".pub")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644); err != nil { //nolint:gosec // public key
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	_, _ = fmt.Fprintf(stdout, "Private key: %s\nPublic key:  %s\n", privPath, pubPath)
	return 0
}
