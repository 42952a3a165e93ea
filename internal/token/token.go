package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrInvalid is returned for every verification failure: malformed token,
// signature mismatch, or a timestamp outside the accepted windows. Callers
// get no hint of which check failed.
var ErrInvalid = errors.New("invalid or expired token")

// DefaultInterval is the rotation window for minted tokens.
const DefaultInterval = 20 * time.Second

// Payload is the signed token body. The short JSON keys are part of the wire
// format consumed by the QR display client.
type Payload struct {
	SessionID   string `json:"sid"`
	WindowStart int64  `json:"t"`
}

// Mint issues and verifies rotating session tokens. Verification is a pure
// function of the shared secret and the clock, so any replica can verify
// without coordination.
type Mint struct {
	secret   []byte
	interval time.Duration
	now      func() time.Time
}

// New creates a Mint with the given shared secret and rotation interval.
// A non-positive interval falls back to DefaultInterval.
func New(secret string, interval time.Duration) *Mint {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Mint{secret: []byte(secret), interval: interval, now: time.Now}
}

// NewWithClock creates a Mint with an injected clock for tests.
func NewWithClock(secret string, interval time.Duration, now func() time.Time) *Mint {
	m := New(secret, interval)
	if now != nil {
		m.now = now
	}
	return m
}

// Interval returns the rotation interval.
func (m *Mint) Interval() time.Duration { return m.interval }

// Generate mints a token for the current rotation window.
func (m *Mint) Generate(sessionID string) (string, error) {
	payload := Payload{
		SessionID:   sessionID,
		WindowStart: m.windowStart(m.now()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body) + "." + m.sign(body), nil
}

// Verify checks the signature and rotation window of a token and returns its
// payload. Tokens are accepted for the current window and the immediately
// preceding one; everything else, future windows included, is ErrInvalid.
func (m *Mint) Verify(token string) (Payload, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || sig == "" {
		return Payload{}, ErrInvalid
	}
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, ErrInvalid
	}
	if !hmac.Equal([]byte(m.sign(body)), []byte(sig)) {
		return Payload{}, ErrInvalid
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Payload{}, ErrInvalid
	}
	current := m.windowStart(m.now())
	previous := current - m.interval.Milliseconds()
	if payload.WindowStart != current && payload.WindowStart != previous {
		return Payload{}, ErrInvalid
	}
	return payload, nil
}

// windowStart rounds t down to the start of its rotation window, in unix
// milliseconds. Windows always come from the server clock; client-reported
// time never enters the calculation.
func (m *Mint) windowStart(t time.Time) int64 {
	interval := m.interval.Milliseconds()
	return t.UnixMilli() / interval * interval
}

func (m *Mint) sign(body []byte) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
