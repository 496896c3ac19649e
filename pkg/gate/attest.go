package gate

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gowebpki/jcs"
)

// ErrDigestMismatch is returned when an attestation does not cover the report.
var ErrDigestMismatch = errors.New("gate: attestation digest does not match report")

// Digest returns the SHA-256 digest of the RFC 8785 canonical form of r.
func Digest(r *Report) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// AttestationClaims are the JWT claims binding a signer to a report.
type AttestationClaims struct {
	Digest  string `json:"digest"`
	Passed  bool   `json:"passed"`
	Release string `json:"release,omitempty"`
	jwt.RegisteredClaims
}

// Attest signs the report digest with an Ed25519 key and returns a compact JWT.
func Attest(r *Report, key ed25519.PrivateKey, keyID string) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.New("gate: invalid ed25519 signing key")
	}
	digest, err := Digest(r)
	if err != nil {
		return "", err
	}

	claims := AttestationClaims{
		Digest:  digest,
		Passed:  r.OverallPassed(),
		Release: r.Release,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       r.RunID,
			Issuer:   "releasegate",
			Subject:  r.Release,
			IssuedAt: jwt.NewNumericDate(r.Timestamp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	if keyID != "" {
		token.Header["kid"] = keyID
	}
	return token.SignedString(key)
}

// VerifyAttestation checks the token signature and that it covers r.
func VerifyAttestation(r *Report, token string, pub ed25519.PublicKey) (*AttestationClaims, error) {
	claims := &AttestationClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify attestation: %w", err)
	}

	digest, err := Digest(r)
	if err != nil {
		return nil, err
	}
	if claims.Digest != digest || claims.Passed != r.OverallPassed() {
		return nil, ErrDigestMismatch
	}
	return claims, nil
}
