package attendance

// Kind identifies why an attendance attempt was rejected. Every rejection is
// terminal; callers need new input before retrying.
type Kind string

const (
	KindTokenInvalid       Kind = "TOKEN_INVALID"
	KindSessionNotLive     Kind = "SESSION_NOT_LIVE"
	KindNotEnrolled        Kind = "NOT_ENROLLED"
	KindAlreadyMarked      Kind = "ALREADY_MARKED"
	KindLocationRequired   Kind = "LOCATION_REQUIRED"
	KindLocationOutOfRange Kind = "LOCATION_OUT_OF_RANGE"
	KindLocationSpoofed    Kind = "LOCATION_SPOOFED"
	KindInvalidCoordinates Kind = "INVALID_COORDINATES"
	KindDeviceSuspicious   Kind = "DEVICE_SUSPICIOUS"
)

// Error is a typed rejection carrying the detail a caller needs to render a
// specific remediation message.
type Error struct {
	Kind           Kind     `json:"kind"`
	Message        string   `json:"message"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	RadiusMeters   *float64 `json:"radius_meters,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func reject(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError extracts a ledger rejection from an error chain.
func AsError(err error) (*Error, bool) {
	le, ok := err.(*Error)
	return le, ok
}
