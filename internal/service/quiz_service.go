package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"quizroom/internal/apperr"
	"quizroom/internal/client"
	"quizroom/internal/constants"
	"quizroom/internal/models"
	"quizroom/internal/transport"
)

// SessionStore is implemented by repository.SessionRepository.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.QuizSession) error
	GetSessionByID(ctx context.Context, sessionID string) (*models.QuizSession, error)
	GetActiveSessionByRoom(ctx context.Context, roomID string) (*models.QuizSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID, fromStatus, toStatus string) (bool, error)
	AdvanceQuestion(ctx context.Context, sessionID string, questionIndex int) error
	CompleteSession(ctx context.Context, sessionID string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// IdentityVerifier re-verifies a caller's identity server-side. A
// client-held id is never trusted on its own for host-privileged moves.
type IdentityVerifier interface {
	Verify(token string) (string, error)
}

// QuestionCache holds generated question sets for the lifetime of a
// session. Implemented by cache.RedisClient.
type QuestionCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// ProgressSeeder receives the member list to seed per-member progress at
// session start, and tears it down again when a start is rolled back.
// Implemented by the websocket hub's progress registry.
type ProgressSeeder interface {
	Seed(session *models.QuizSession, members []*models.Member)
	Unseed(session *models.QuizSession)
}

type QuizSettings struct {
	TotalQuestions  int
	TimePerQuestion int
	Topic           string
	Difficulty      string
	ContentFocus    string
	EducationLevel  string
}

const questionCacheTTL = 24 * time.Hour

func questionCacheKey(sessionID string) string {
	return fmt.Sprintf("session:%s:questions", sessionID)
}

type QuizService struct {
	rooms      RoomStore
	sessions   SessionStore
	contentGen client.ContentGenerator
	policy     client.PolicyService
	identity   IdentityVerifier
	cache      QuestionCache
	seeder     ProgressSeeder
	events     EventPublisher
}

func NewQuizService(
	rooms RoomStore,
	sessions SessionStore,
	contentGen client.ContentGenerator,
	policy client.PolicyService,
	identity IdentityVerifier,
	cache QuestionCache,
	seeder ProgressSeeder,
	events EventPublisher,
) *QuizService {
	return &QuizService{
		rooms:      rooms,
		sessions:   sessions,
		contentGen: contentGen,
		policy:     policy,
		identity:   identity,
		cache:      cache,
		seeder:     seeder,
		events:     events,
	}
}

// StartQuiz drives pending → generating → active for a room. Losing a
// concurrent start race returns ErrSessionAlreadyActive; the caller treats
// it as a no-op success. A content-generation failure compensates fully so
// the host can retry the same call.
func (s *QuizService) StartQuiz(ctx context.Context, roomID, hostID, token string, settings QuizSettings) (*models.QuizSession, error) {
	verifiedID, err := s.identity.Verify(token)
	if err != nil || verifiedID != hostID {
		return nil, &apperr.AuthenticationError{ReturnPath: "/rooms/" + roomID}
	}

	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load room", Err: err}
	}
	if room.HostID != hostID {
		return nil, &apperr.ValidationError{Field: "host_id", Reason: "caller is not the room host"}
	}

	if err := s.ensureHostMembership(ctx, room, hostID); err != nil {
		return nil, err
	}

	if settings.TotalQuestions < constants.MinTotalQuestions {
		return nil, &apperr.ValidationError{
			Field:  "total_questions",
			Reason: fmt.Sprintf("must be at least %d", constants.MinTotalQuestions),
		}
	}
	decision, err := s.policy.CheckQuestionCount(ctx, hostID, settings.TotalQuestions)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "entitlement check", Err: err}
	}
	if !decision.Allowed {
		return nil, &apperr.LimitExceededError{
			Requested:       settings.TotalQuestions,
			MaxAllowed:      decision.MaxAllowed,
			RequiresUpgrade: decision.RequiresUpgrade,
		}
	}

	session := &models.QuizSession{
		RoomID:          roomID,
		TotalQuestions:  settings.TotalQuestions,
		TimePerQuestion: settings.TimePerQuestion,
		Status:          constants.SessionStatusGenerating,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		if err == apperr.ErrSessionAlreadyActive {
			return nil, err
		}
		return nil, &apperr.PersistenceError{Op: "create session", Err: err}
	}

	if err := s.activateRoom(ctx, room); err != nil {
		s.compensateStart(ctx, session)
		return nil, err
	}

	members, err := s.rooms.GetMembers(ctx, roomID)
	if err != nil {
		log.Printf("Failed to load members for progress seeding in room %s: %v", roomID, err)
		members = nil
	}
	if s.seeder != nil {
		s.seeder.Seed(session, members)
	}

	s.publishSessionEvent(ctx, session, transport.EventInsert)

	questions, err := s.contentGen.GenerateQuestions(ctx, client.GenerationRequest{
		Topic:          settings.Topic,
		Difficulty:     settings.Difficulty,
		TotalQuestions: settings.TotalQuestions,
		ContentFocus:   settings.ContentFocus,
		EducationLevel: settings.EducationLevel,
		StudyNotes:     room.StudyNotes,
	})
	if err != nil {
		// The room must not stay active with no content; undo the start so
		// StartQuiz can be retried as if this attempt never happened.
		s.compensateStart(ctx, session)
		return nil, &apperr.ContentGenerationFailed{Err: err}
	}

	if err := s.cacheQuestions(ctx, session.ID, questions); err != nil {
		s.compensateStart(ctx, session)
		return nil, &apperr.PersistenceError{Op: "cache questions", Err: err}
	}

	if _, err := s.sessions.UpdateSessionStatus(ctx, session.ID, constants.SessionStatusGenerating, constants.SessionStatusActive); err != nil {
		log.Printf("Failed to activate session %s: %v", session.ID, err)
	}
	session.Status = constants.SessionStatusActive

	s.publishSessionEvent(ctx, session, transport.EventUpdate)
	return session, nil
}

// ensureHostMembership self-heals a verified host who is no longer a member
// row, e.g. after a reload. The insert tolerates already-exists races.
func (s *QuizService) ensureHostMembership(ctx context.Context, room *models.Room, hostID string) error {
	exists, err := s.rooms.MemberExists(ctx, room.ID, hostID)
	if err != nil {
		return &apperr.PersistenceError{Op: "membership lookup", Err: err}
	}
	if exists {
		return nil
	}

	member := &models.Member{
		RoomID:   room.ID,
		UserID:   hostID,
		JoinedAt: time.Now(),
	}
	if err := s.rooms.InsertMember(ctx, member); err != nil {
		return &apperr.PersistenceError{Op: "self-heal host membership", Err: err}
	}
	if _, err := s.rooms.SyncCurrentPlayers(ctx, room.ID); err != nil {
		log.Printf("Failed to sync player count for room %s: %v", room.ID, err)
	}
	return nil
}

func (s *QuizService) activateRoom(ctx context.Context, room *models.Room) error {
	updated, err := s.rooms.UpdateRoomStatus(ctx, room.ID, constants.RoomStatusWaiting, constants.RoomStatusActive)
	if err != nil {
		return &apperr.PersistenceError{Op: "activate room", Err: err}
	}
	if !updated {
		// A retry of a partially failed start finds the room already
		// active; anything else is a stale caller.
		current, err := s.rooms.GetRoomByID(ctx, room.ID)
		if err != nil {
			return &apperr.PersistenceError{Op: "reload room", Err: err}
		}
		if current.Status != constants.RoomStatusActive {
			return apperr.ErrInvalidStateTransition
		}
		return nil
	}

	if err := s.rooms.StampRoomStarted(ctx, room.ID, time.Now()); err != nil {
		log.Printf("Failed to stamp start time for room %s: %v", room.ID, err)
	}
	room.Status = constants.RoomStatusActive
	return nil
}

// compensateStart is best-effort: the session row is removed and the room
// reverted to waiting so the next attempt starts clean. Failures here are
// logged, not escalated.
func (s *QuizService) compensateStart(ctx context.Context, session *models.QuizSession) {
	if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
		log.Printf("Failed to compensate session %s: %v", session.ID, err)
	}
	if err := s.rooms.RevertRoomStatus(ctx, session.RoomID, constants.RoomStatusWaiting); err != nil {
		log.Printf("Failed to revert room %s to waiting: %v", session.RoomID, err)
	}
	if s.seeder != nil {
		s.seeder.Unseed(session)
	}
	s.publishSessionEvent(ctx, session, transport.EventDelete)
}

// EndQuiz is the host ending an active session early.
func (s *QuizService) EndQuiz(ctx context.Context, roomID, hostID, token string) error {
	verifiedID, err := s.identity.Verify(token)
	if err != nil || verifiedID != hostID {
		return &apperr.AuthenticationError{ReturnPath: "/rooms/" + roomID}
	}

	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return &apperr.PersistenceError{Op: "load room", Err: err}
	}
	if room.HostID != hostID {
		return &apperr.ValidationError{Field: "host_id", Reason: "caller is not the room host"}
	}

	session, err := s.sessions.GetActiveSessionByRoom(ctx, roomID)
	if err != nil {
		return &apperr.PersistenceError{Op: "load session", Err: err}
	}
	if session == nil {
		return apperr.ErrInvalidStateTransition
	}

	return s.completeSession(ctx, session)
}

// AdvanceQuestion records forward movement through the question set and
// completes the session once the last question resolves.
func (s *QuizService) AdvanceQuestion(ctx context.Context, sessionID string, questionIndex int) error {
	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return &apperr.PersistenceError{Op: "load session", Err: err}
	}

	if err := s.sessions.AdvanceQuestion(ctx, sessionID, questionIndex); err != nil {
		return &apperr.PersistenceError{Op: "advance question", Err: err}
	}
	session.CurrentQuestion = questionIndex

	if questionIndex >= session.TotalQuestions {
		return s.completeSession(ctx, session)
	}

	s.publishSessionEvent(ctx, session, transport.EventUpdate)
	return nil
}

func (s *QuizService) completeSession(ctx context.Context, session *models.QuizSession) error {
	completed, err := s.sessions.CompleteSession(ctx, session.ID)
	if err != nil {
		return &apperr.PersistenceError{Op: "complete session", Err: err}
	}
	if !completed {
		// Someone else completed it first; nothing left to do.
		return nil
	}
	session.Status = constants.SessionStatusComplete

	if updated, err := s.rooms.UpdateRoomStatus(ctx, session.RoomID, constants.RoomStatusActive, constants.RoomStatusCompleted); err != nil {
		log.Printf("Failed to complete room %s: %v", session.RoomID, err)
	} else if updated {
		if err := s.rooms.StampRoomEnded(ctx, session.RoomID, time.Now()); err != nil {
			log.Printf("Failed to stamp end time for room %s: %v", session.RoomID, err)
		}
	}

	s.publishSessionEvent(ctx, session, transport.EventUpdate)
	return nil
}

func (s *QuizService) GetActiveSession(ctx context.Context, roomID string) (*models.QuizSession, error) {
	session, err := s.sessions.GetActiveSessionByRoom(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load session", Err: err}
	}
	return session, nil
}

// GetQuestions loads the cached question set for an active session.
func (s *QuizService) GetQuestions(ctx context.Context, sessionID string) ([]models.Question, error) {
	raw, err := s.cache.Get(ctx, questionCacheKey(sessionID))
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load questions", Err: err}
	}
	var questions []models.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("corrupt question cache for session %s: %w", sessionID, err)
	}
	return questions, nil
}

func (s *QuizService) cacheQuestions(ctx context.Context, sessionID string, questions []models.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, questionCacheKey(sessionID), string(data), questionCacheTTL)
}

func (s *QuizService) publishSessionEvent(ctx context.Context, session *models.QuizSession, eventType transport.EventType) {
	image, err := json.Marshal(session)
	if err != nil {
		log.Printf("Failed to marshal session event: %v", err)
		return
	}
	ev := transport.Event{
		Table: transport.TableQuizSessions,
		Type:  eventType,
		Key:   session.RoomID,
		New:   image,
	}
	if err := s.events.Publish(ctx, transport.RoomChannel(session.RoomID), ev); err != nil {
		log.Printf("Failed to publish session event for room %s: %v", session.RoomID, err)
	}
}
