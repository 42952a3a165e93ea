package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"attendanceguard/internal/attendance"
)

type memStore struct {
	sessions     map[string]*OnlineSession
	participants map[string]*Participant // onlineSessionID|studentID
}

func newMemStore() *memStore {
	return &memStore{
		sessions:     make(map[string]*OnlineSession),
		participants: make(map[string]*Participant),
	}
}

func (m *memStore) CreateOnlineSession(_ context.Context, os OnlineSession) (OnlineSession, error) {
	for _, existing := range m.sessions {
		if existing.SessionID == os.SessionID {
			return OnlineSession{}, ErrSessionExists
		}
	}
	m.sessions[os.ID] = &os
	return os, nil
}

func (m *memStore) GetOnlineSession(_ context.Context, id string) (*OnlineSession, error) {
	os, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *os
	return &cp, nil
}

func (m *memStore) SetStarted(_ context.Context, id string, at time.Time) error {
	m.sessions[id].Status = StatusLive
	m.sessions[id].StartTime = &at
	return nil
}

func (m *memStore) SetEnded(_ context.Context, id string, at time.Time, durationMin int) error {
	m.sessions[id].Status = StatusEnded
	m.sessions[id].EndTime = &at
	m.sessions[id].DurationMinutes = durationMin
	return nil
}

func (m *memStore) AddParticipant(_ context.Context, p Participant) (Participant, error) {
	key := p.OnlineSessionID + "|" + p.StudentID
	if _, ok := m.participants[key]; ok {
		return Participant{}, ErrAlreadyJoined
	}
	p.ID = key
	if p.CameraState == "" {
		p.CameraState = MediaOff
	}
	if p.MicState == "" {
		p.MicState = MediaOff
	}
	m.participants[key] = &p
	return p, nil
}

func (m *memStore) GetParticipant(_ context.Context, id, studentID string) (*Participant, error) {
	p, ok := m.participants[id+"|"+studentID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SetLeave(_ context.Context, participantID string, at time.Time, durationMin int) error {
	p := m.participants[participantID]
	p.LeaveTime = &at
	p.DurationMinutes = durationMin
	return nil
}

func (m *memStore) UpdateEngagement(_ context.Context, p Participant) error {
	*m.participants[p.ID] = p
	return nil
}

func (m *memStore) ListParticipants(_ context.Context, id string) ([]Participant, error) {
	var out []Participant
	for _, p := range m.participants {
		if p.OnlineSessionID == id {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memSessions struct{ session *attendance.Session }

func (m *memSessions) GetSession(_ context.Context, id string) (*attendance.Session, error) {
	if m.session != nil && m.session.ID == id {
		return m.session, nil
	}
	return nil, nil
}

type memUpserter struct{ records map[string]attendance.Record }

func (m *memUpserter) UpsertOnline(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	if m.records == nil {
		m.records = make(map[string]attendance.Record)
	}
	m.records[rec.SessionID+"|"+rec.StudentID] = rec
	return rec, nil
}

type fixture struct {
	svc      *Service
	store    *memStore
	upserter *memUpserter
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		upserter: &memUpserter{},
		now:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	sessions := &memSessions{session: &attendance.Session{ID: "sess-1", ClassID: "class-1", Status: attendance.SessionLive}}
	f.svc = NewServiceWithClock(f.store, sessions, f.upserter, func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) startSession(t *testing.T) string {
	t.Helper()
	os, err := f.svc.Create(context.Background(), "sess-1", PlatformZoom, "https://zoom.example/j/1")
	require.NoError(t, err)
	_, err = f.svc.Start(context.Background(), os.ID)
	require.NoError(t, err)
	return os.ID
}

func TestCreateRejectsUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "sess-1", Platform("SKYPE"), "")
	require.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestCreateRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "sess-missing", PlatformZoom, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsSecondOnlineSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "sess-1", PlatformZoom, "")
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), "sess-1", PlatformTeams, "")
	require.ErrorIs(t, err, ErrSessionExists)
}

func TestJoinRequiresLiveSession(t *testing.T) {
	f := newFixture(t)
	os, err := f.svc.Create(context.Background(), "sess-1", PlatformZoom, "")
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), os.ID, "student-1")
	require.ErrorIs(t, err, ErrNotLive)
}

func TestJoinTwiceRejected(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	_, err := f.svc.Join(context.Background(), id, "student-1")
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), id, "student-1")
	require.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestLeaveComputesDuration(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	_, err := f.svc.Join(context.Background(), id, "student-1")
	require.NoError(t, err)

	f.advance(42*time.Minute + 30*time.Second)
	minutes, err := f.svc.Leave(context.Background(), id, "student-1")
	require.NoError(t, err)
	require.Equal(t, 42, minutes)
}

func TestLeaveWithoutJoin(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	_, err := f.svc.Leave(context.Background(), id, "student-1")
	require.ErrorIs(t, err, ErrNotJoined)
}

func TestUpdateEngagementRecomputesScore(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	_, err := f.svc.Join(context.Background(), id, "student-1")
	require.NoError(t, err)

	f.advance(60 * time.Minute)
	camera, mic := MediaOn, MediaOn
	tabs, chats := 3, 6
	attention := 57.0
	score, err := f.svc.UpdateEngagement(context.Background(), id, "student-1", Update{
		CameraState:      &camera,
		MicState:         &mic,
		TabSwitches:      &tabs,
		ChatMessages:     &chats,
		AttentionMinutes: &attention,
	})
	require.NoError(t, err)
	require.Equal(t, 100, score)
}

func TestUpdateEngagementPartialPing(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	_, err := f.svc.Join(context.Background(), id, "student-1")
	require.NoError(t, err)

	camera := MediaOn
	score, err := f.svc.UpdateEngagement(context.Background(), id, "student-1", Update{CameraState: &camera})
	require.NoError(t, err)
	// Camera ON (30) + zero tab switches (20); everything else untouched.
	require.Equal(t, 50, score)

	// A later ping without camera state keeps the previous camera value.
	tabs := 8
	score, err = f.svc.UpdateEngagement(context.Background(), id, "student-1", Update{TabSwitches: &tabs})
	require.NoError(t, err)
	require.Equal(t, 40, score)
}

func TestEndAndFinalizeClassifiesParticipants(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)

	// Present: stays 50 of 60 minutes.
	_, err := f.svc.Join(context.Background(), id, "present-student")
	require.NoError(t, err)
	// Late: joins late, stays 30 minutes.
	f.advance(20 * time.Minute)
	_, err = f.svc.Join(context.Background(), id, "late-student")
	require.NoError(t, err)
	// Absent: joins and leaves almost immediately.
	_, err = f.svc.Join(context.Background(), id, "absent-student")
	require.NoError(t, err)
	f.advance(10 * time.Minute)
	_, err = f.svc.Leave(context.Background(), id, "absent-student")
	require.NoError(t, err)

	f.advance(20 * time.Minute)
	_, err = f.svc.Leave(context.Background(), id, "present-student")
	require.NoError(t, err)
	_, err = f.svc.Leave(context.Background(), id, "late-student")
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	os, err := f.svc.End(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusEnded, os.Status)
	require.Equal(t, 60, os.DurationMinutes)

	require.NoError(t, f.svc.Finalize(context.Background(), id))

	// Threshold 45 minutes, late cutoff 22.5.
	require.Equal(t, attendance.StatusPresent, f.upserter.records["sess-1|present-student"].Status)
	require.Equal(t, attendance.StatusLate, f.upserter.records["sess-1|late-student"].Status)
	require.Equal(t, attendance.StatusAbsent, f.upserter.records["sess-1|absent-student"].Status)

	rec := f.upserter.records["sess-1|present-student"]
	require.Equal(t, attendance.SourceZoom, rec.Source)
	require.NotNil(t, rec.Online)
	require.Equal(t, 50, rec.Online.DurationMinutes)
}

func TestFinalizeSyntheticLeaveForLingeringParticipant(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	_, err := f.svc.Join(context.Background(), id, "student-1")
	require.NoError(t, err)

	// Student never leaves; session ends after 60 minutes.
	f.advance(60 * time.Minute)
	_, err = f.svc.End(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.svc.Finalize(context.Background(), id))

	rec, ok := f.upserter.records["sess-1|student-1"]
	require.True(t, ok)
	require.Equal(t, attendance.StatusPresent, rec.Status)
	require.NotNil(t, rec.Online.LeaveTime)
	require.Equal(t, 60, rec.Online.DurationMinutes)
}

func TestFinalizeBeforeEndRejected(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	require.ErrorIs(t, f.svc.Finalize(context.Background(), id), ErrNotEnded)
}
