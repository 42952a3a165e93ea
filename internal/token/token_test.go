package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mintAt(t *testing.T, secret string, at *time.Time) *Mint {
	t.Helper()
	return NewWithClock(secret, DefaultInterval, func() time.Time { return *at })
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	m := mintAt(t, "test-secret", &now)

	tok, err := m.Generate("session-1")
	require.NoError(t, err)

	payload, err := m.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "session-1", payload.SessionID)
}

func TestVerifyWindowBounds(t *testing.T) {
	start := time.UnixMilli(1700000000000)
	now := start
	m := mintAt(t, "test-secret", &now)

	tok, err := m.Generate("session-1")
	require.NoError(t, err)

	// Still valid just before the interval ends.
	now = start.Add(DefaultInterval - time.Millisecond)
	_, err = m.Verify(tok)
	require.NoError(t, err)

	// Grace period: previous window still accepted.
	now = start.Add(DefaultInterval + time.Second)
	_, err = m.Verify(tok)
	require.NoError(t, err)

	// Two full intervals later the token is dead.
	now = start.Add(2*DefaultInterval + time.Millisecond)
	_, err = m.Verify(tok)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsFutureWindow(t *testing.T) {
	start := time.UnixMilli(1700000000000)
	now := start.Add(5 * DefaultInterval)
	m := mintAt(t, "test-secret", &now)

	tok, err := m.Generate("session-1")
	require.NoError(t, err)

	// Verifier clock behind the minting clock: future windows are rejected.
	now = start
	_, err = m.Verify(tok)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	m := mintAt(t, "secret-a", &now)
	other := mintAt(t, "secret-b", &now)

	tok, err := m.Generate("session-1")
	require.NoError(t, err)

	_, err = other.Verify(tok)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	m := mintAt(t, "test-secret", &now)

	for _, tok := range []string{
		"",
		"noseparator",
		"only.",
		".onlysig",
		"!!!notbase64!!!.deadbeef",
		base64.StdEncoding.EncodeToString([]byte("not json")) + ".deadbeef",
	} {
		_, err := m.Verify(tok)
		require.ErrorIs(t, err, ErrInvalid, "token %q", tok)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	m := mintAt(t, "test-secret", &now)

	tok, err := m.Generate("session-1")
	require.NoError(t, err)

	encoded, sig, _ := strings.Cut(tok, ".")
	body, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	tampered := strings.Replace(string(body), "session-1", "session-2", 1)
	forged := base64.StdEncoding.EncodeToString([]byte(tampered)) + "." + sig

	_, err = m.Verify(forged)
	require.ErrorIs(t, err, ErrInvalid)
}
