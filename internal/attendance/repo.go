package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"attendanceguard/internal/geo"
)

// ErrDuplicate is returned by Insert when the (session, student) uniqueness
// constraint fires. The ledger maps it to ALREADY_MARKED, identical to the
// pre-check, so a race between concurrent attempts commits at most once.
var ErrDuplicate = errors.New("attendance already recorded")

// sharedDeviceHistory is how many recent records the shared-device heuristic
// inspects.
const sharedDeviceHistory = 10

// Repository persists sessions, rosters and attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanSessionLocation(lat, lon, radius sql.NullFloat64, fenced bool, room, building sql.NullString) *geo.SessionLocation {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &geo.SessionLocation{
		Latitude:          lat.Float64,
		Longitude:         lon.Float64,
		RadiusMeters:      radius.Float64,
		GeofencingEnabled: fenced,
		Room:              room.String,
		Building:          building.String,
	}
}

// GetSession loads a session with its geofence configuration.
func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, title, status,
		       geo_latitude, geo_longitude, geo_radius, geofencing_enabled, room, building
		FROM sessions WHERE id = $1
	`, id)
	var (
		s                Session
		lat, lon, radius sql.NullFloat64
		fenced           bool
		room, building   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.ClassID, &s.Title, &s.Status, &lat, &lon, &radius, &fenced, &room, &building); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Location = scanSessionLocation(lat, lon, radius, fenced, room, building)
	return &s, nil
}

// ListLiveGeofencedSessions returns LIVE sessions with geofencing enabled,
// for nearby-session discovery.
func (r *Repository) ListLiveGeofencedSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class_id, title, status,
		       geo_latitude, geo_longitude, geo_radius, geofencing_enabled, room, building
		FROM sessions
		WHERE status = $1 AND geofencing_enabled = TRUE
		  AND geo_latitude IS NOT NULL AND geo_longitude IS NOT NULL
	`, SessionLive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s                Session
			lat, lon, radius sql.NullFloat64
			fenced           bool
			room, building   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.ClassID, &s.Title, &s.Status, &lat, &lon, &radius, &fenced, &room, &building); err != nil {
			return nil, err
		}
		s.Location = scanSessionLocation(lat, lon, radius, fenced, room, building)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// IsEnrolled reports whether a student is on a class roster.
func (r *Repository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM class_students WHERE class_id = $1 AND student_id = $2)
	`, classID, studentID).Scan(&exists)
	return exists, err
}

// Exists reports whether an attendance record exists for (session, student).
func (r *Repository) Exists(ctx context.Context, sessionID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2)
	`, sessionID, studentID).Scan(&exists)
	return exists, err
}

// CountFingerprintSharers counts distinct other students whose recent records
// carry the same device fingerprint.
func (r *Repository) CountFingerprintSharers(ctx context.Context, fingerprint, excludeStudentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT student_id) FROM (
			SELECT student_id FROM attendance_records
			WHERE device_fingerprint = $1 AND student_id <> $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
	`, fingerprint, excludeStudentID, sharedDeviceHistory).Scan(&count)
	return count, err
}

// Insert writes a new attendance record. A unique violation on
// (session_id, student_id) is returned as ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (
			id, session_id, student_id, class_id, status, source, marked_at,
			device_user_agent, device_ip, device_fingerprint, device_browser, device_os, device_platform,
			device_is_proxy, device_is_vpn, device_is_tor, device_risk_score, device_risk_flags,
			loc_latitude, loc_longitude, loc_accuracy, loc_accuracy_label, loc_verified, loc_distance, loc_suspicious
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.ClassID, rec.Status, rec.Source, rec.MarkedAt,
		rec.Device.UserAgent, rec.Device.IPAddress, rec.Device.Fingerprint,
		rec.Device.Browser, rec.Device.OS, rec.Device.Platform,
		rec.Device.IsProxy, rec.Device.IsVPN, rec.Device.IsTor,
		rec.Device.RiskScore, strings.Join(rec.Device.RiskFlags, ","),
		locLat(rec.Location), locLon(rec.Location), locAccuracy(rec.Location),
		locLabel(rec.Location), locVerified(rec.Location), locDistance(rec.Location), locSuspicious(rec.Location))
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// UpsertOnline creates or replaces a record from the online-session
// finalization path. This is the only path allowed to overwrite an existing
// record, and only for status, source and the online columns.
func (r *Repository) UpsertOnline(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Online == nil {
		return Record{}, errors.New("online data required")
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (
			id, session_id, student_id, class_id, status, source, marked_at,
			online_join_time, online_leave_time, online_duration_min, online_engagement
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			online_join_time = EXCLUDED.online_join_time,
			online_leave_time = EXCLUDED.online_leave_time,
			online_duration_min = EXCLUDED.online_duration_min,
			online_engagement = EXCLUDED.online_engagement
		RETURNING id, created_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.ClassID, rec.Status, rec.Source, rec.MarkedAt,
		rec.Online.JoinTime, rec.Online.LeaveTime, rec.Online.DurationMinutes, rec.Online.EngagementScore)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListByStudent returns a student's attendance history, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID, classID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, student_id, class_id, status, source, marked_at, created_at,
		       device_fingerprint, device_risk_score, loc_verified, loc_distance
		FROM attendance_records
		WHERE student_id = $1`
	args := []any{studentID}
	if classID != "" {
		query += ` AND class_id = $2`
		args = append(args, classID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			fingerprint sql.NullString
			risk        sql.NullInt64
			verified    sql.NullBool
			distance    sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.ClassID, &rec.Status,
			&rec.Source, &rec.MarkedAt, &rec.CreatedAt, &fingerprint, &risk, &verified, &distance); err != nil {
			return nil, err
		}
		rec.Device.Fingerprint = fingerprint.String
		rec.Device.RiskScore = int(risk.Int64)
		if verified.Valid {
			rec.Location = &LocationAudit{Verified: verified.Bool}
			if distance.Valid {
				d := distance.Float64
				rec.Location.DistanceMeters = &d
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// nullable column helpers

func locLat(l *LocationAudit) any {
	if l == nil {
		return nil
	}
	return l.Latitude
}

func locLon(l *LocationAudit) any {
	if l == nil {
		return nil
	}
	return l.Longitude
}

func locAccuracy(l *LocationAudit) any {
	if l == nil {
		return nil
	}
	return l.AccuracyMeters
}

func locLabel(l *LocationAudit) any {
	if l == nil {
		return nil
	}
	return l.AccuracyLabel
}

func locVerified(l *LocationAudit) any {
	if l == nil {
		return nil
	}
	return l.Verified
}

func locDistance(l *LocationAudit) any {
	if l == nil || l.DistanceMeters == nil {
		return nil
	}
	return *l.DistanceMeters
}

func locSuspicious(l *LocationAudit) any {
	if l == nil {
		return nil
	}
	return l.Suspicious
}
