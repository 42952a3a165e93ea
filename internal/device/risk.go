package device

// Risk scoring policy constants.
const (
	sharedDeviceThreshold = 3
	minUserAgentLength    = 20
	maxRiskScore          = 100

	// SuspiciousCutoff is the score above which a device is flagged. The
	// ledger records the flag; whether it blocks is a deployment policy.
	SuspiciousCutoff = 50
)

// Risk flag names attached to attendance records for audit.
const (
	FlagSharedDevice        = "SHARED_DEVICE"
	FlagProxyVPN            = "PROXY_VPN_DETECTED"
	FlagTor                 = "TOR_DETECTED"
	FlagSuspiciousUserAgent = "SUSPICIOUS_USER_AGENT"
)

// Reputation is the network reputation oracle verdict for an IP.
type Reputation struct {
	IsProxy   bool   `json:"is_proxy"`
	IsVPN     bool   `json:"is_vpn"`
	IsTor     bool   `json:"is_tor"`
	Provider  string `json:"provider,omitempty"`
	RiskScore int    `json:"risk_score"`
}

// RiskAssessment combines the oracle verdict with local heuristics.
type RiskAssessment struct {
	Score      int      `json:"score"`
	Suspicious bool     `json:"suspicious"`
	Flags      []string `json:"flags"`
}

// Score combines the reputation oracle result with local heuristics.
// sharedWith is the number of distinct other students whose recent records
// carry the same device fingerprint.
func Score(identity Identity, rep Reputation, sharedWith int) RiskAssessment {
	var flags []string
	local := 0

	if sharedWith > sharedDeviceThreshold {
		flags = append(flags, FlagSharedDevice)
		local += 30
	}
	if rep.IsProxy || rep.IsVPN {
		flags = append(flags, FlagProxyVPN)
		local += 40
	}
	if rep.IsTor {
		flags = append(flags, FlagTor)
		local += 50
	}
	if len(identity.UserAgent) < minUserAgentLength {
		flags = append(flags, FlagSuspiciousUserAgent)
		local += 20
	}
	if local > maxRiskScore {
		local = maxRiskScore
	}

	score := local
	if rep.RiskScore > score {
		score = rep.RiskScore
	}
	return RiskAssessment{
		Score:      score,
		Suspicious: score > SuspiciousCutoff,
		Flags:      flags,
	}
}
