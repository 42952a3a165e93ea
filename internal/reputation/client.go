package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"attendanceguard/internal/device"
)

// Client calls a proxycheck-style network reputation service. Lookups are
// advisory: every failure path degrades to a zero-risk verdict so attendance
// never blocks on the oracle.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a bounded timeout. The timeout must stay well
// under the end-to-end request budget.
func New(baseURL string, timeout time.Duration, skip bool) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Lookup returns the reputation verdict for an IP. Private, loopback and
// empty addresses short-circuit to zero risk without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) device.Reputation {
	if c.Skip || isPrivateIP(ip) {
		return device.Reputation{}
	}

	rep, err := c.query(ctx, ip)
	if err != nil {
		log.Printf("reputation lookup failed for %s: %v", ip, err)
		return device.Reputation{}
	}
	return rep
}

func (c *Client) query(ctx context.Context, ip string) (device.Reputation, error) {
	url := fmt.Sprintf("%s/v2/%s?vpn=1&asn=1", c.BaseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return device.Reputation{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return device.Reputation{}, fmt.Errorf("reputation service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return device.Reputation{}, fmt.Errorf("reputation service error %s", resp.Status)
	}

	// proxycheck keys the result object by the queried IP.
	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return device.Reputation{}, fmt.Errorf("failed to decode response: %w", err)
	}
	raw, ok := out[ip]
	if !ok {
		return device.Reputation{}, fmt.Errorf("no result for %s", ip)
	}

	var entry struct {
		Proxy    string `json:"proxy"`
		Type     string `json:"type"`
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return device.Reputation{}, fmt.Errorf("failed to decode entry: %w", err)
	}

	rep := device.Reputation{
		IsProxy:  entry.Proxy == "yes",
		IsVPN:    entry.Type == "VPN",
		IsTor:    entry.Type == "TOR",
		Provider: entry.Provider,
	}
	rep.RiskScore = providerRiskScore(entry.Proxy, entry.Type)
	return rep, nil
}

// providerRiskScore mirrors the provider-side scoring: proxy +40, VPN +30,
// TOR +50, datacenter/hosting +20, capped at 100.
func providerRiskScore(proxy, typ string) int {
	score := 0
	if proxy == "yes" {
		score += 40
	}
	switch typ {
	case "VPN":
		score += 30
	case "TOR":
		score += 50
	case "DCH":
		score += 20
	}
	if score > 100 {
		score = 100
	}
	return score
}

func isPrivateIP(ip string) bool {
	if ip == "" || ip == "::1" || ip == "127.0.0.1" {
		return true
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast()
}
