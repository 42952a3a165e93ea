package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"attendanceguard/internal/device"
	"attendanceguard/internal/geo"
	"attendanceguard/internal/token"
)

// SessionStore provides session and roster lookups.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	ListLiveGeofencedSessions(ctx context.Context) ([]Session, error)
	IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
}

// RecordStore provides attendance record persistence. Insert must enforce
// (session, student) uniqueness and return ErrDuplicate on violation.
type RecordStore interface {
	Exists(ctx context.Context, sessionID, studentID string) (bool, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	CountFingerprintSharers(ctx context.Context, fingerprint, excludeStudentID string) (int, error)
	ListByStudent(ctx context.Context, studentID, classID string, limit int) ([]Record, error)
}

// ReputationOracle is the external network reputation lookup. Implementations
// must degrade to a zero verdict on failure rather than returning an error.
type ReputationOracle interface {
	Lookup(ctx context.Context, ip string) device.Reputation
}

// Service is the attendance ledger: it aggregates token, geofence, spoof and
// device verdicts into an at-most-once attendance record per
// (session, student).
type Service struct {
	sessions SessionStore
	records  RecordStore
	tokens   *token.Mint
	oracle   ReputationOracle

	oracleTimeout time.Duration

	// BlockSuspiciousDevice rejects attempts whose device risk score crosses
	// the suspicious cutoff. Off by default: device risk is recorded for
	// audit, not enforced.
	BlockSuspiciousDevice bool
}

// NewService creates the ledger.
func NewService(sessions SessionStore, records RecordStore, tokens *token.Mint, oracle ReputationOracle, oracleTimeout time.Duration) *Service {
	if oracleTimeout <= 0 {
		oracleTimeout = 3 * time.Second
	}
	return &Service{
		sessions:      sessions,
		records:       records,
		tokens:        tokens,
		oracle:        oracle,
		oracleTimeout: oracleTimeout,
	}
}

// Tokens exposes the mint for the QR display endpoint.
func (s *Service) Tokens() *token.Mint { return s.tokens }

// Mark runs the full verification state machine for one attendance attempt.
// Checks run in a fixed order and the first failure is terminal; exactly one
// rejection kind is surfaced per attempt.
func (s *Service) Mark(ctx context.Context, studentID string, req MarkRequest, identity device.Identity) (MarkResult, error) {
	// 1. Token
	payload, err := s.tokens.Verify(req.Token)
	if err != nil {
		markCounter(KindTokenInvalid)
		return MarkResult{}, reject(KindTokenInvalid, "invalid or expired QR code")
	}

	// 2. Session liveness
	session, err := s.sessions.GetSession(ctx, payload.SessionID)
	if err != nil {
		return MarkResult{}, err
	}
	if session == nil || session.Status != SessionLive {
		markCounter(KindSessionNotLive)
		return MarkResult{}, reject(KindSessionNotLive, "session is not live")
	}

	// 3. Enrollment
	enrolled, err := s.sessions.IsEnrolled(ctx, session.ClassID, studentID)
	if err != nil {
		return MarkResult{}, err
	}
	if !enrolled {
		markCounter(KindNotEnrolled)
		return MarkResult{}, reject(KindNotEnrolled, "you are not enrolled in this class")
	}

	// 4. Duplicate pre-check. The insert below still races against
	// concurrent attempts; the unique constraint is the real arbiter.
	exists, err := s.records.Exists(ctx, session.ID, studentID)
	if err != nil {
		return MarkResult{}, err
	}
	if exists {
		markCounter(KindAlreadyMarked)
		return MarkResult{}, reject(KindAlreadyMarked, "attendance already marked for this session")
	}

	// 5. Location
	verification, audit, lerr := s.verifyLocation(session, req.Location)
	if lerr != nil {
		markCounter(lerr.Kind)
		return MarkResult{}, lerr
	}

	// 6. Device scoring. Always runs; never blocks on the oracle.
	report := s.scoreDevice(ctx, studentID, identity)
	if audit != nil {
		audit.Suspicious = audit.Suspicious || report.RiskScore > device.SuspiciousCutoff
	}
	if s.BlockSuspiciousDevice && report.RiskScore > device.SuspiciousCutoff {
		markCounter(KindDeviceSuspicious)
		return MarkResult{}, &Error{
			Kind:     KindDeviceSuspicious,
			Message:  "device failed risk screening",
			Warnings: report.RiskFlags,
		}
	}

	// 7. Commit
	rec, err := s.records.Insert(ctx, Record{
		SessionID: session.ID,
		StudentID: studentID,
		ClassID:   session.ClassID,
		Status:    StatusPresent,
		Source:    SourceQR,
		Device:    report,
		Location:  audit,
	})
	if errors.Is(err, ErrDuplicate) {
		markCounter(KindAlreadyMarked)
		return MarkResult{}, reject(KindAlreadyMarked, "attendance already marked for this session")
	}
	if err != nil {
		return MarkResult{}, err
	}

	marksAccepted.Inc()
	return MarkResult{Record: rec, Verification: verification}, nil
}

// verifyLocation runs coordinate validation, spoof detection and the
// geofence check for the location phase of Mark.
func (s *Service) verifyLocation(session *Session, report *geo.LocationReport) (geo.Verification, *LocationAudit, *Error) {
	if report == nil {
		if session.GeofencingRequired() {
			return geo.Verification{}, nil, reject(KindLocationRequired, "location verification is required for this session")
		}
		return geo.Verify(session.Location, nil), nil, nil
	}

	if !geo.ValidCoordinates(report.Latitude, report.Longitude) {
		return geo.Verification{}, nil, reject(KindInvalidCoordinates, "invalid location coordinates provided")
	}

	spoof := geo.DetectSpoofing(*report)
	if spoof.Recommendation == geo.RecommendBlock {
		return geo.Verification{}, nil, &Error{
			Kind:     KindLocationSpoofed,
			Message:  "suspicious location data detected",
			Warnings: spoof.Warnings,
		}
	}

	verification := geo.Verify(session.Location, report.Point())
	if !verification.Verified {
		return geo.Verification{}, nil, &Error{
			Kind:           KindLocationOutOfRange,
			Message:        verification.Reason,
			DistanceMeters: verification.DistanceMeters,
			RadiusMeters:   verification.RadiusMeters,
		}
	}

	return verification, &LocationAudit{
		Latitude:       report.Latitude,
		Longitude:      report.Longitude,
		AccuracyMeters: report.AccuracyMeters,
		AccuracyLabel:  geo.AccuracyLabel(report.AccuracyMeters),
		Verified:       true,
		DistanceMeters: verification.DistanceMeters,
		Suspicious:     spoof.Suspicious,
	}, nil
}

// scoreDevice combines the reputation oracle verdict with local heuristics.
// Oracle and history failures degrade to zero risk; a risky network must not
// make attendance unavailable.
func (s *Service) scoreDevice(ctx context.Context, studentID string, identity device.Identity) DeviceReport {
	oracleCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()
	rep := s.oracle.Lookup(oracleCtx, identity.IPAddress)

	shared, err := s.records.CountFingerprintSharers(ctx, identity.Fingerprint, studentID)
	if err != nil {
		log.Printf("fingerprint history lookup failed: %v", err)
		shared = 0
	}

	assessment := device.Score(identity, rep, shared)
	return DeviceReport{
		Identity:  identity,
		IsProxy:   rep.IsProxy,
		IsVPN:     rep.IsVPN,
		IsTor:     rep.IsTor,
		RiskScore: assessment.Score,
		RiskFlags: assessment.Flags,
	}
}

// Nearby finds the closest LIVE geofenced session the student is enrolled in
// and mints a token for it, so clients can offer one-tap marking.
func (s *Service) Nearby(ctx context.Context, studentID string, point geo.Point) (*NearbySession, error) {
	if !geo.ValidCoordinates(point.Latitude, point.Longitude) {
		return nil, reject(KindInvalidCoordinates, "invalid coordinates provided")
	}

	sessions, err := s.sessions.ListLiveGeofencedSessions(ctx)
	if err != nil {
		return nil, err
	}

	var nearest *NearbySession
	minDistance := math.Inf(1)
	for i := range sessions {
		session := sessions[i]
		enrolled, err := s.sessions.IsEnrolled(ctx, session.ClassID, studentID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			continue
		}
		v := geo.Verify(session.Location, &point)
		if v.DistanceMeters == nil || *v.DistanceMeters >= minDistance {
			continue
		}
		minDistance = *v.DistanceMeters
		nearest = &NearbySession{
			Session:        session,
			DistanceMeters: *v.DistanceMeters,
			WithinRange:    v.Verified,
		}
	}
	if nearest == nil {
		return nil, nil
	}

	marked, err := s.records.Exists(ctx, nearest.Session.ID, studentID)
	if err != nil {
		return nil, err
	}
	nearest.AlreadyMarked = marked

	tok, err := s.tokens.Generate(nearest.Session.ID)
	if err != nil {
		return nil, fmt.Errorf("token mint failed: %w", err)
	}
	nearest.Token = tok
	return nearest, nil
}

// History returns a student's attendance records, optionally scoped to one
// class.
func (s *Service) History(ctx context.Context, studentID, classID string, limit int) ([]Record, error) {
	return s.records.ListByStudent(ctx, studentID, classID, limit)
}
