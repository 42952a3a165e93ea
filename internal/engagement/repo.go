package engagement

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSessionExists is returned when an online session already exists for a
// class session.
var ErrSessionExists = errors.New("online session already exists for this session")

// ErrAlreadyJoined is returned when a student joins a session twice.
var ErrAlreadyJoined = errors.New("already joined this session")

// Repository persists online sessions and participants in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateOnlineSession inserts a new online session. At most one exists per
// class session, enforced by a unique constraint on session_id.
func (r *Repository) CreateOnlineSession(ctx context.Context, os OnlineSession) (OnlineSession, error) {
	if os.ID == "" {
		os.ID = uuid.NewString()
	}
	if os.Status == "" {
		os.Status = StatusScheduled
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO online_sessions (id, session_id, platform, meeting_id, meeting_link, status)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, os.ID, os.SessionID, os.Platform, os.MeetingID, os.MeetingLink, os.Status)
	if isUniqueViolation(err) {
		return OnlineSession{}, ErrSessionExists
	}
	if err != nil {
		return OnlineSession{}, err
	}
	return os, nil
}

// GetOnlineSession returns an online session by id, or nil when absent.
func (r *Repository) GetOnlineSession(ctx context.Context, id string) (*OnlineSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, platform, meeting_id, meeting_link, status, start_time, end_time, duration_min
		FROM online_sessions WHERE id = $1
	`, id)
	var (
		os         OnlineSession
		link       sql.NullString
		start, end sql.NullTime
		duration   sql.NullInt64
	)
	if err := row.Scan(&os.ID, &os.SessionID, &os.Platform, &os.MeetingID, &link, &os.Status, &start, &end, &duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	os.MeetingLink = link.String
	if start.Valid {
		os.StartTime = &start.Time
	}
	if end.Valid {
		os.EndTime = &end.Time
	}
	os.DurationMinutes = int(duration.Int64)
	return &os, nil
}

// SetStarted marks a session LIVE.
func (r *Repository) SetStarted(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE online_sessions SET status = $2, start_time = $3 WHERE id = $1
	`, id, StatusLive, at)
	return err
}

// SetEnded marks a session ENDED with its final duration.
func (r *Repository) SetEnded(ctx context.Context, id string, at time.Time, durationMin int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE online_sessions SET status = $2, end_time = $3, duration_min = $4 WHERE id = $1
	`, id, StatusEnded, at, durationMin)
	return err
}

// AddParticipant records a join. A second join for the same student is
// ErrAlreadyJoined.
func (r *Repository) AddParticipant(ctx context.Context, p Participant) (Participant, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CameraState == "" {
		p.CameraState = MediaOff
	}
	if p.MicState == "" {
		p.MicState = MediaOff
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO online_participants (id, online_session_id, student_id, join_time, camera_state, mic_state)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.ID, p.OnlineSessionID, p.StudentID, p.JoinTime, p.CameraState, p.MicState)
	if isUniqueViolation(err) {
		return Participant{}, ErrAlreadyJoined
	}
	if err != nil {
		return Participant{}, err
	}
	return p, nil
}

// GetParticipant returns one participant sub-record, or nil when the student
// never joined.
func (r *Repository) GetParticipant(ctx context.Context, onlineSessionID, studentID string) (*Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, online_session_id, student_id, join_time, leave_time, duration_min,
		       camera_state, mic_state, tab_switches, chat_messages, attention_minutes, engagement_score
		FROM online_participants
		WHERE online_session_id = $1 AND student_id = $2
	`, onlineSessionID, studentID)
	p, err := scanParticipant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetLeave records a participant's leave time and attended duration.
func (r *Repository) SetLeave(ctx context.Context, participantID string, at time.Time, durationMin int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE online_participants SET leave_time = $2, duration_min = $3 WHERE id = $1
	`, participantID, at, durationMin)
	return err
}

// UpdateEngagement overwrites a participant's telemetry counters and score.
// Scoped to a single participant row, so concurrent pings for different
// participants never contend.
func (r *Repository) UpdateEngagement(ctx context.Context, p Participant) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE online_participants
		SET camera_state = $2, mic_state = $3, tab_switches = $4,
		    chat_messages = $5, attention_minutes = $6, engagement_score = $7
		WHERE id = $1
	`, p.ID, p.CameraState, p.MicState, p.TabSwitches, p.ChatMessages, p.AttentionMinutes, p.EngagementScore)
	return err
}

// ListParticipants returns every participant of an online session.
func (r *Repository) ListParticipants(ctx context.Context, onlineSessionID string) ([]Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, online_session_id, student_id, join_time, leave_time, duration_min,
		       camera_state, mic_state, tab_switches, chat_messages, attention_minutes, engagement_score
		FROM online_participants
		WHERE online_session_id = $1
		ORDER BY join_time
	`, onlineSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func scanParticipant(scan func(dest ...any) error) (Participant, error) {
	var (
		p     Participant
		leave sql.NullTime
	)
	err := scan(&p.ID, &p.OnlineSessionID, &p.StudentID, &p.JoinTime, &leave, &p.DurationMinutes,
		&p.CameraState, &p.MicState, &p.TabSwitches, &p.ChatMessages, &p.AttentionMinutes, &p.EngagementScore)
	if err != nil {
		return Participant{}, err
	}
	if leave.Valid {
		p.LeaveTime = &leave.Time
	}
	return p, nil
}
