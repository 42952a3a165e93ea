package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Identity is the device description derived from request metadata. It is
// computed once per attempt and immutable after being attached to a record.
type Identity struct {
	UserAgent   string `json:"user_agent"`
	IPAddress   string `json:"ip_address"`
	Fingerprint string `json:"fingerprint"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	Platform    string `json:"platform"`
}

// IdentityFromRequest derives a device identity from request headers and the
// resolved client IP.
func IdentityFromRequest(r *http.Request, clientIP string) Identity {
	ua := r.Header.Get("User-Agent")
	browser, os, platform := ParseUserAgent(ua)
	return Identity{
		UserAgent:   ua,
		IPAddress:   clientIP,
		Fingerprint: Fingerprint(r, clientIP),
		Browser:     browser,
		OS:          os,
		Platform:    platform,
	}
}

// Fingerprint hashes the identifying request headers and client IP into a
// stable device hash.
func Fingerprint(r *http.Request, clientIP string) string {
	components := []string{
		r.Header.Get("User-Agent"),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		r.Header.Get("Accept"),
		clientIP,
	}
	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])
}

// ParseUserAgent classifies a user-agent string into browser, OS and
// platform. Substring matching only; anything unrecognized is "Unknown".
func ParseUserAgent(ua string) (browser, os, platform string) {
	browser, os, platform = "Unknown", "Unknown", "Unknown"
	if ua == "" {
		return
	}

	switch {
	case strings.Contains(ua, "Edg"):
		browser = "Edge"
	case strings.Contains(ua, "Opera") || strings.Contains(ua, "OPR"):
		browser = "Opera"
	case strings.Contains(ua, "Chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari"):
		browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad") || strings.Contains(ua, "iOS"):
		os = "iOS"
	case strings.Contains(ua, "Mac OS"):
		os = "macOS"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	}

	switch {
	case strings.Contains(ua, "iPad") || strings.Contains(ua, "Tablet"):
		platform = "Tablet"
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "Android") || strings.Contains(ua, "iPhone"):
		platform = "Mobile"
	default:
		platform = "Desktop"
	}
	return
}
