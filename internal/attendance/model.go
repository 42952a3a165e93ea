package attendance

import (
	"time"

	"attendanceguard/internal/device"
	"attendanceguard/internal/geo"
)

// Status of an attendance record.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
)

// Source records which verification path produced a record.
type Source string

const (
	SourceQR         Source = "QR"
	SourceZoom       Source = "ZOOM"
	SourceGoogleMeet Source = "GOOGLE_MEET"
	SourceTeams      Source = "TEAMS"
	SourceWebRTC     Source = "WEBRTC"
)

// Session statuses the ledger cares about.
const (
	SessionScheduled = "SCHEDULED"
	SessionLive      = "LIVE"
	SessionCompleted = "COMPLETED"
	SessionCancelled = "CANCELLED"
)

// Session is the class session an attendance attempt references.
type Session struct {
	ID       string               `json:"id"`
	ClassID  string               `json:"class_id"`
	Title    string               `json:"title"`
	Status   string               `json:"status"`
	Location *geo.SessionLocation `json:"location,omitempty"`
}

// GeofencingRequired reports whether the session demands a location report.
func (s *Session) GeofencingRequired() bool {
	return s.Location != nil && s.Location.GeofencingEnabled
}

// DeviceReport is the device verdict attached to a record. Immutable once
// written.
type DeviceReport struct {
	device.Identity
	IsProxy   bool     `json:"is_proxy"`
	IsVPN     bool     `json:"is_vpn"`
	IsTor     bool     `json:"is_tor"`
	RiskScore int      `json:"risk_score"`
	RiskFlags []string `json:"risk_flags,omitempty"`
}

// LocationAudit is the location evidence stored with a record.
type LocationAudit struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters float64  `json:"accuracy_meters"`
	AccuracyLabel  string   `json:"accuracy_label"`
	Verified       bool     `json:"verified"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	Suspicious     bool     `json:"suspicious"`
}

// OnlineData carries the telemetry summary for records produced by the
// online-session finalization path.
type OnlineData struct {
	JoinTime        time.Time  `json:"join_time"`
	LeaveTime       *time.Time `json:"leave_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	EngagementScore int        `json:"engagement_score"`
}

// Record is an attendance record. Exactly one exists per (session, student),
// enforced by a storage-level uniqueness constraint.
type Record struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	StudentID string         `json:"student_id"`
	ClassID   string         `json:"class_id"`
	Status    Status         `json:"status"`
	Source    Source         `json:"source"`
	Device    DeviceReport   `json:"device"`
	Location  *LocationAudit `json:"location,omitempty"`
	Online    *OnlineData    `json:"online,omitempty"`
	MarkedAt  time.Time      `json:"marked_at"`
	CreatedAt time.Time      `json:"created_at"`
}

// MarkRequest is the client submission for the QR verification path.
type MarkRequest struct {
	Token    string              `json:"token" binding:"required"`
	Location *geo.LocationReport `json:"location,omitempty"`
}

// MarkResult is returned on a successful commit.
type MarkResult struct {
	Record       Record           `json:"record"`
	Verification geo.Verification `json:"location_verification"`
}

// NearbySession describes the closest live geofenced session a student could
// mark attendance for.
type NearbySession struct {
	Session        Session `json:"session"`
	DistanceMeters float64 `json:"distance_meters"`
	WithinRange    bool    `json:"within_range"`
	AlreadyMarked  bool    `json:"already_marked"`
	Token          string  `json:"token"`
}
