package engagement

import (
	"time"

	"attendanceguard/internal/attendance"
)

// Platform identifies the meeting provider behind an online session.
type Platform string

const (
	PlatformZoom       Platform = "ZOOM"
	PlatformGoogleMeet Platform = "GOOGLE_MEET"
	PlatformTeams      Platform = "TEAMS"
	PlatformWebRTC     Platform = "WEBRTC"
)

// Source maps a platform to the attendance record source.
func (p Platform) Source() attendance.Source {
	switch p {
	case PlatformZoom:
		return attendance.SourceZoom
	case PlatformGoogleMeet:
		return attendance.SourceGoogleMeet
	case PlatformTeams:
		return attendance.SourceTeams
	default:
		return attendance.SourceWebRTC
	}
}

// Valid reports whether the platform is one of the supported providers.
func (p Platform) Valid() bool {
	switch p {
	case PlatformZoom, PlatformGoogleMeet, PlatformTeams, PlatformWebRTC:
		return true
	}
	return false
}

// Online session statuses.
const (
	StatusScheduled = "SCHEDULED"
	StatusLive      = "LIVE"
	StatusEnded     = "ENDED"
	StatusCancelled = "CANCELLED"
)

// MediaState is a camera or mic state reported by the meeting platform.
type MediaState string

const (
	MediaOn      MediaState = "ON"
	MediaOff     MediaState = "OFF"
	MediaPartial MediaState = "PARTIAL"
)

// OnlineSession is the virtual counterpart of a class session.
type OnlineSession struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	Platform        Platform   `json:"platform"`
	MeetingID       string     `json:"meeting_id"`
	MeetingLink     string     `json:"meeting_link,omitempty"`
	Status          string     `json:"status"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

// Participant is one attendee's telemetry within an online session. Updated
// incrementally while the session is live, finalized on leave or session end.
type Participant struct {
	ID               string     `json:"id"`
	OnlineSessionID  string     `json:"online_session_id"`
	StudentID        string     `json:"student_id"`
	JoinTime         time.Time  `json:"join_time"`
	LeaveTime        *time.Time `json:"leave_time,omitempty"`
	DurationMinutes  int        `json:"duration_minutes"`
	CameraState      MediaState `json:"camera_state"`
	MicState         MediaState `json:"mic_state"`
	TabSwitches      int        `json:"tab_switches"`
	ChatMessages     int        `json:"chat_messages"`
	AttentionMinutes float64    `json:"attention_minutes"`
	EngagementScore  int        `json:"engagement_score"`
}

// Update is an engagement ping for a participant. Nil fields are left
// untouched; the ping overwrites only what it carries.
type Update struct {
	CameraState      *MediaState `json:"camera_state,omitempty"`
	MicState         *MediaState `json:"mic_state,omitempty"`
	TabSwitches      *int        `json:"tab_switches,omitempty"`
	ChatMessages     *int        `json:"chat_messages,omitempty"`
	AttentionMinutes *float64    `json:"attention_minutes,omitempty"`
}
