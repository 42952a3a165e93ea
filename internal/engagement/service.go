package engagement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"attendanceguard/internal/attendance"
)

var (
	// ErrNotFound is returned when the online session does not exist.
	ErrNotFound = errors.New("online session not found")
	// ErrNotLive is returned for join attempts outside a live session.
	ErrNotLive = errors.New("session is not live")
	// ErrNotJoined is returned for leave/engagement calls from a student who
	// never joined.
	ErrNotJoined = errors.New("not joined in this session")
	// ErrNotEnded is returned when finalization runs before the session ends.
	ErrNotEnded = errors.New("session has not ended")
	// ErrUnknownPlatform is returned for unsupported meeting platforms.
	ErrUnknownPlatform = errors.New("unknown meeting platform")
)

// Store is the persistence interface for online sessions and participants.
type Store interface {
	CreateOnlineSession(ctx context.Context, os OnlineSession) (OnlineSession, error)
	GetOnlineSession(ctx context.Context, id string) (*OnlineSession, error)
	SetStarted(ctx context.Context, id string, at time.Time) error
	SetEnded(ctx context.Context, id string, at time.Time, durationMin int) error
	AddParticipant(ctx context.Context, p Participant) (Participant, error)
	GetParticipant(ctx context.Context, onlineSessionID, studentID string) (*Participant, error)
	SetLeave(ctx context.Context, participantID string, at time.Time, durationMin int) error
	UpdateEngagement(ctx context.Context, p Participant) error
	ListParticipants(ctx context.Context, onlineSessionID string) ([]Participant, error)
}

// SessionLookup resolves the class session an online session belongs to.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*attendance.Session, error)
}

// AttendanceUpserter writes finalized attendance records. Finalization is the
// only path allowed to upsert, covering participants who never scanned a code.
type AttendanceUpserter interface {
	UpsertOnline(ctx context.Context, rec attendance.Record) (attendance.Record, error)
}

// Service runs the engagement-to-attendance pipeline for virtual sessions.
type Service struct {
	store    Store
	sessions SessionLookup
	records  AttendanceUpserter
	now      func() time.Time
}

// NewService creates the service.
func NewService(store Store, sessions SessionLookup, records AttendanceUpserter) *Service {
	return &Service{store: store, sessions: sessions, records: records, now: time.Now}
}

// NewServiceWithClock creates the service with an injected clock for tests.
func NewServiceWithClock(store Store, sessions SessionLookup, records AttendanceUpserter, now func() time.Time) *Service {
	s := NewService(store, sessions, records)
	if now != nil {
		s.now = now
	}
	return s
}

// Create registers an online session for a class session.
func (s *Service) Create(ctx context.Context, sessionID string, platform Platform, meetingLink string) (OnlineSession, error) {
	if !platform.Valid() {
		return OnlineSession{}, ErrUnknownPlatform
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return OnlineSession{}, err
	}
	if session == nil {
		return OnlineSession{}, ErrNotFound
	}
	return s.store.CreateOnlineSession(ctx, OnlineSession{
		SessionID:   sessionID,
		Platform:    platform,
		MeetingID:   generateMeetingID(),
		MeetingLink: meetingLink,
		Status:      StatusScheduled,
	})
}

// Start marks the online session LIVE.
func (s *Service) Start(ctx context.Context, id string) (*OnlineSession, error) {
	os, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.store.SetStarted(ctx, id, at); err != nil {
		return nil, err
	}
	os.Status = StatusLive
	os.StartTime = &at
	return os, nil
}

// Join records a participant joining a live session.
func (s *Service) Join(ctx context.Context, id, studentID string) (Participant, error) {
	os, err := s.get(ctx, id)
	if err != nil {
		return Participant{}, err
	}
	if os.Status != StatusLive {
		return Participant{}, ErrNotLive
	}
	return s.store.AddParticipant(ctx, Participant{
		OnlineSessionID: id,
		StudentID:       studentID,
		JoinTime:        s.now(),
	})
}

// Leave records a participant leaving and returns their attended minutes.
func (s *Service) Leave(ctx context.Context, id, studentID string) (int, error) {
	p, err := s.participant(ctx, id, studentID)
	if err != nil {
		return 0, err
	}
	at := s.now()
	duration := wholeMinutes(at.Sub(p.JoinTime))
	if err := s.store.SetLeave(ctx, p.ID, at, duration); err != nil {
		return 0, err
	}
	return duration, nil
}

// UpdateEngagement applies an engagement ping and returns the recomputed
// score. The attention ratio is taken against the session's elapsed minutes
// so repeated pings stay monotonic while the session runs.
func (s *Service) UpdateEngagement(ctx context.Context, id, studentID string, upd Update) (int, error) {
	os, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}
	p, err := s.participant(ctx, id, studentID)
	if err != nil {
		return 0, err
	}

	if upd.CameraState != nil {
		p.CameraState = *upd.CameraState
	}
	if upd.MicState != nil {
		p.MicState = *upd.MicState
	}
	if upd.TabSwitches != nil {
		p.TabSwitches = *upd.TabSwitches
	}
	if upd.ChatMessages != nil {
		p.ChatMessages = *upd.ChatMessages
	}
	if upd.AttentionMinutes != nil {
		p.AttentionMinutes = *upd.AttentionMinutes
	}

	elapsed := 0.0
	if os.StartTime != nil {
		elapsed = s.now().Sub(*os.StartTime).Minutes()
	}
	p.EngagementScore = Score(*p, elapsed)

	if err := s.store.UpdateEngagement(ctx, *p); err != nil {
		return 0, err
	}
	return p.EngagementScore, nil
}

// End marks the session ENDED and records its duration. Finalization happens
// separately (the worker consumes a finalize job), so ending the meeting
// stays cheap.
func (s *Service) End(ctx context.Context, id string) (*OnlineSession, error) {
	os, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	at := s.now()
	duration := 0
	if os.StartTime != nil {
		duration = wholeMinutes(at.Sub(*os.StartTime))
	}
	if err := s.store.SetEnded(ctx, id, at, duration); err != nil {
		return nil, err
	}
	os.Status = StatusEnded
	os.EndTime = &at
	os.DurationMinutes = duration
	return os, nil
}

// Finalize converts every participant's telemetry into an attendance record.
// Participants with no recorded leave are treated as having stayed to the
// session end (synthetic leave time). Runs to completion even with partial
// data; per-participant failures are logged and skipped.
func (s *Service) Finalize(ctx context.Context, id string) error {
	os, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if os.Status != StatusEnded || os.EndTime == nil {
		return ErrNotEnded
	}
	session, err := s.sessions.GetSession(ctx, os.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNotFound
	}

	participants, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return err
	}

	sessionMinutes := float64(os.DurationMinutes)
	for _, p := range participants {
		leave := p.LeaveTime
		if leave == nil {
			leave = os.EndTime
			attended := wholeMinutes(leave.Sub(p.JoinTime))
			if err := s.store.SetLeave(ctx, p.ID, *leave, attended); err != nil {
				log.Printf("finalize: set leave for %s failed: %v", p.StudentID, err)
			}
		}
		attendedMinutes := leave.Sub(p.JoinTime).Minutes()
		if attendedMinutes < 0 {
			attendedMinutes = 0
		}

		p.DurationMinutes = int(math.Floor(attendedMinutes))
		score := Score(p, sessionMinutes)

		_, err := s.records.UpsertOnline(ctx, attendance.Record{
			SessionID: os.SessionID,
			StudentID: p.StudentID,
			ClassID:   session.ClassID,
			Status:    attendance.Status(Classify(attendedMinutes, sessionMinutes)),
			Source:    os.Platform.Source(),
			MarkedAt:  p.JoinTime,
			Online: &attendance.OnlineData{
				JoinTime:        p.JoinTime,
				LeaveTime:       leave,
				DurationMinutes: p.DurationMinutes,
				EngagementScore: score,
			},
		})
		if err != nil {
			log.Printf("finalize: upsert attendance for %s failed: %v", p.StudentID, err)
		}
	}
	return nil
}

// Get returns an online session with its participants.
func (s *Service) Get(ctx context.Context, id string) (*OnlineSession, []Participant, error) {
	os, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return os, participants, nil
}

func (s *Service) get(ctx context.Context, id string) (*OnlineSession, error) {
	os, err := s.store.GetOnlineSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if os == nil {
		return nil, ErrNotFound
	}
	return os, nil
}

func (s *Service) participant(ctx context.Context, id, studentID string) (*Participant, error) {
	p, err := s.store.GetParticipant(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotJoined
	}
	return p, nil
}

func wholeMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(math.Floor(d.Minutes()))
}

func generateMeetingID() string {
	return fmt.Sprintf("MTG-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
