package gate

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigest_StableAcrossCalls(t *testing.T) {
	r := sampleReport()
	d1, err := Digest(r)
	require.NoError(t, err)
	d2, err := Digest(r)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.Contains(t, d1, "sha256:")
}

func TestDigest_ChangesWithVerdicts(t *testing.T) {
	a, err := Digest(sampleReport())
	require.NoError(t, err)

	other := NewReport("run-1", "1.4.0", fixedTime, []Verdict{Pass("integration", "changed")})
	b, err := Digest(other)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestAttest_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	r := sampleReport()
	token, err := Attest(r, priv, "ci-key")
	require.NoError(t, err)

	claims, err := VerifyAttestation(r, token, pub)
	require.NoError(t, err)
	require.False(t, claims.Passed)
	require.Equal(t, "1.4.0", claims.Release)
	require.Equal(t, "run-1", claims.ID)
}

func TestAttest_WrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	r := sampleReport()
	token, err := Attest(r, priv, "")
	require.NoError(t, err)

	_, err = VerifyAttestation(r, token, otherPub)
	require.Error(t, err)
}

func TestAttest_DetectsTamperedReport(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	token, err := Attest(sampleReport(), priv, "")
	require.NoError(t, err)

	tampered := NewReport("run-1", "1.4.0", fixedTime, []Verdict{Pass("integration", "ok")})
	_, err = VerifyAttestation(tampered, token, pub)
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestAttest_InvalidKey(t *testing.T) {
	_, err := Attest(sampleReport(), ed25519.PrivateKey{1, 2, 3}, "")
	require.Error(t, err)
}
