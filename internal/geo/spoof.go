package geo

// Spoof detection thresholds. These are policy constants, tunable rather than
// load-bearing invariants.
const (
	minPlausibleAccuracyMeters = 1.0
	maxPlausibleSpeedMps       = 50.0 // ~180 km/h

	spoofFlagScore  = 3
	spoofBlockScore = 5
)

// Recommendation values returned by DetectSpoofing.
const (
	RecommendAllow = "ALLOW"
	RecommendFlag  = "FLAG"
	RecommendBlock = "BLOCK"
)

// LocationReport is the untrusted client-supplied location payload.
type LocationReport struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters float64  `json:"accuracy_meters"`
	SpeedMps       *float64 `json:"speed_mps,omitempty"`
	IsMock         bool     `json:"is_mock,omitempty"`
}

// Point returns the report's coordinates.
func (r *LocationReport) Point() *Point {
	if r == nil {
		return nil
	}
	return &Point{Latitude: r.Latitude, Longitude: r.Longitude}
}

// SpoofResult is the physical-plausibility verdict for a location report.
type SpoofResult struct {
	Suspicious     bool     `json:"suspicious"`
	Score          int      `json:"score"`
	Warnings       []string `json:"warnings"`
	Recommendation string   `json:"recommendation"`
}

// DetectSpoofing scores a single report for physical implausibility. Signals
// are independent and additive; false positives are preferred over letting a
// BLOCK-tier report through.
func DetectSpoofing(report LocationReport) SpoofResult {
	var warnings []string
	score := 0

	if report.AccuracyMeters > 0 && report.AccuracyMeters < minPlausibleAccuracyMeters {
		warnings = append(warnings, "unrealistically high accuracy")
		score += 2
	}
	if report.SpeedMps != nil && *report.SpeedMps > maxPlausibleSpeedMps {
		warnings = append(warnings, "unrealistic speed detected")
		score += 3
	}
	if report.IsMock {
		warnings = append(warnings, "mock location detected")
		score += 5
	}

	res := SpoofResult{
		Suspicious:     score >= spoofFlagScore,
		Score:          score,
		Warnings:       warnings,
		Recommendation: RecommendAllow,
	}
	switch {
	case score >= spoofBlockScore:
		res.Recommendation = RecommendBlock
	case score >= spoofFlagScore:
		res.Recommendation = RecommendFlag
	}
	return res
}
