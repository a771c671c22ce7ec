package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"quizroom/internal/apperr"
	"quizroom/internal/client"
	"quizroom/internal/constants"
	"quizroom/internal/models"
	"quizroom/internal/transport"
)

type fakeRoomStore struct {
	mu      sync.Mutex
	rooms   map[string]*models.Room
	members map[string]map[string]*models.Member

	nextRoomID        int
	failInsertMember  bool
	failDeleteRoom    bool
	failGetRoomByCode error
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{
		rooms:   make(map[string]*models.Room),
		members: make(map[string]map[string]*models.Member),
	}
}

func (s *fakeRoomStore) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRoomID++
	room.ID = fmt.Sprintf("room-%d", s.nextRoomID)
	room.JoinCode = fmt.Sprintf("CODE%02d", s.nextRoomID)
	room.Status = constants.RoomStatusWaiting
	room.CreatedAt = time.Now()
	s.rooms[room.ID] = room
	s.members[room.ID] = make(map[string]*models.Member)
	return nil
}

func (s *fakeRoomStore) GetRoomByID(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, errors.New("room not found")
	}
	copy := *room
	return &copy, nil
}

func (s *fakeRoomStore) GetRoomByCode(_ context.Context, joinCode string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetRoomByCode != nil {
		return nil, s.failGetRoomByCode
	}
	for _, room := range s.rooms {
		if room.JoinCode == joinCode {
			copy := *room
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("room not found: %w", sql.ErrNoRows)
}

func (s *fakeRoomStore) UpdateRoomStatus(_ context.Context, roomID, fromStatus, toStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || room.Status != fromStatus {
		return false, nil
	}
	room.Status = toStatus
	return true, nil
}

func (s *fakeRoomStore) StampRoomStarted(_ context.Context, roomID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.StartedAt.Time = startedAt
		room.StartedAt.Valid = true
	}
	return nil
}

func (s *fakeRoomStore) StampRoomEnded(_ context.Context, roomID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.EndedAt.Time = endedAt
		room.EndedAt.Valid = true
	}
	return nil
}

func (s *fakeRoomStore) RevertRoomStatus(_ context.Context, roomID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.Status = status
		room.StartedAt.Valid = false
	}
	return nil
}

func (s *fakeRoomStore) UpdateStudyNotes(_ context.Context, roomID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		room.StudyNotes = notes
	}
	return nil
}

func (s *fakeRoomStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteRoom {
		return errors.New("delete failed")
	}
	delete(s.rooms, roomID)
	delete(s.members, roomID)
	return nil
}

func (s *fakeRoomStore) MemberExists(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[roomID][userID]
	return ok, nil
}

func (s *fakeRoomStore) InsertMember(_ context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertMember {
		return errors.New("insert failed")
	}
	if s.members[member.RoomID] == nil {
		s.members[member.RoomID] = make(map[string]*models.Member)
	}
	// Conflict on the composite key is a no-op, like the real store.
	if _, ok := s.members[member.RoomID][member.UserID]; ok {
		return nil
	}
	s.members[member.RoomID][member.UserID] = member
	return nil
}

func (s *fakeRoomStore) DeleteMember(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[roomID], userID)
	return nil
}

func (s *fakeRoomStore) GetMembers(_ context.Context, roomID string) ([]*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []*models.Member
	for _, m := range s.members[roomID] {
		members = append(members, m)
	}
	return members, nil
}

func (s *fakeRoomStore) SyncCurrentPlayers(_ context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := len(s.members[roomID])
	if room, ok := s.rooms[roomID]; ok {
		room.CurrentPlayers = count
	}
	return count, nil
}

func (s *fakeRoomStore) SetMemberReady(_ context.Context, roomID, userID string, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[roomID][userID]
	if !ok {
		return errors.New("member not found")
	}
	member.Ready = ready
	return nil
}

type fakePolicy struct {
	maxPlayers   int
	maxQuestions int
	err          error
}

func (p *fakePolicy) CheckPlayerCount(_ context.Context, _ string, requested int) (*client.PolicyDecision, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &client.PolicyDecision{
		Allowed:         requested <= p.maxPlayers,
		MaxAllowed:      p.maxPlayers,
		RequiresUpgrade: requested > p.maxPlayers,
	}, nil
}

func (p *fakePolicy) CheckQuestionCount(_ context.Context, _ string, requested int) (*client.PolicyDecision, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &client.PolicyDecision{
		Allowed:         requested <= p.maxQuestions,
		MaxAllowed:      p.maxQuestions,
		RequiresUpgrade: requested > p.maxQuestions,
	}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []transport.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, ev transport.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) byTable(table string) []transport.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []transport.Event
	for _, ev := range p.events {
		if ev.Table == table {
			out = append(out, ev)
		}
	}
	return out
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.QuizSession
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.QuizSession)}
}

func (s *fakeSessionStore) CreateSession(_ context.Context, session *models.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Mirrors the partial unique index: one non-complete session per room.
	for _, existing := range s.sessions {
		if existing.RoomID == session.RoomID && existing.Status != constants.SessionStatusComplete {
			return apperr.ErrSessionAlreadyActive
		}
	}
	s.nextID++
	session.ID = fmt.Sprintf("session-%d", s.nextID)
	session.StartedAt = time.Now()
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeSessionStore) GetSessionByID(_ context.Context, sessionID string) (*models.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}
	copy := *session
	return &copy, nil
}

func (s *fakeSessionStore) GetActiveSessionByRoom(_ context.Context, roomID string) (*models.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.RoomID == roomID && session.Status != constants.SessionStatusComplete {
			copy := *session
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *fakeSessionStore) UpdateSessionStatus(_ context.Context, sessionID, fromStatus, toStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.Status != fromStatus {
		return false, nil
	}
	session.Status = toStatus
	return true, nil
}

func (s *fakeSessionStore) AdvanceQuestion(_ context.Context, sessionID string, questionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok && questionIndex > session.CurrentQuestion {
		session.CurrentQuestion = questionIndex
	}
	return nil
}

func (s *fakeSessionStore) CompleteSession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.Status == constants.SessionStatusComplete {
		return false, nil
	}
	session.Status = constants.SessionStatusComplete
	session.EndedAt.Time = time.Now()
	session.EndedAt.Valid = true
	return true, nil
}

func (s *fakeSessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

type fakeContentGen struct {
	err   error
	calls int
}

func (g *fakeContentGen) GenerateQuestions(_ context.Context, req client.GenerationRequest) ([]models.Question, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	questions := make([]models.Question, req.TotalQuestions)
	for i := range questions {
		questions[i] = models.Question{
			ID:         fmt.Sprintf("q-%d", i),
			Text:       fmt.Sprintf("Question %d about %s", i+1, req.Topic),
			Options:    []string{"a", "b", "c", "d"},
			OrderIndex: i,
		}
	}
	return questions, nil
}

func (g *fakeContentGen) GenerateNotes(_ context.Context, req client.GenerationRequest) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return "notes about " + req.Topic, nil
}

type fakeIdentity struct {
	tokens map[string]string
}

func (i *fakeIdentity) Verify(token string) (string, error) {
	userID, ok := i.tokens[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return userID, nil
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (c *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (c *fakeKV) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.data[key]
	if !ok {
		return "", errors.New("key not found")
	}
	return value, nil
}

func (c *fakeKV) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

type fakeSeeder struct {
	mu       sync.Mutex
	seeded   map[string][]*models.Member
	unseeded []string
}

func newFakeSeeder() *fakeSeeder {
	return &fakeSeeder{seeded: make(map[string][]*models.Member)}
}

func (f *fakeSeeder) Seed(session *models.QuizSession, members []*models.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeded[session.ID] = members
}

func (f *fakeSeeder) Unseed(session *models.QuizSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seeded, session.ID)
	f.unseeded = append(f.unseeded, session.ID)
}

type fakeMaterials struct {
	objects map[string][]byte
}

func newFakeMaterials() *fakeMaterials {
	return &fakeMaterials{objects: make(map[string][]byte)}
}

func (m *fakeMaterials) UploadMaterial(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[objectName] = data
	return nil
}

func (m *fakeMaterials) DownloadMaterial(_ context.Context, objectName string) ([]byte, error) {
	data, ok := m.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return string(data), nil
}
