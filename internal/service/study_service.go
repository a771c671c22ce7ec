package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sync"
	"time"

	"quizroom/internal/apperr"
	"quizroom/internal/client"
	"quizroom/internal/constants"
	"quizroom/internal/models"
	"quizroom/internal/study"
	"quizroom/internal/transport"

	"github.com/google/uuid"
)

// StudyStateStore holds the shared, ephemeral study-session state.
// Implemented by cache.RedisClient.
type StudyStateStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// MaterialStore persists uploaded study-material documents.
// Implemented by storage.S3Client.
type MaterialStore interface {
	UploadMaterial(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	DownloadMaterial(ctx context.Context, objectName string) ([]byte, error)
}

const studyStateTTL = 2 * time.Hour

func studyStateKey(roomID string) string {
	return fmt.Sprintf("room:%s:study", roomID)
}

// StudyService owns the host-controlled pre-quiz review window. The shared
// state is only the start/stop/edit transitions; every client, this server
// included, runs its own one-second countdown from that state, so minor
// display skew between clients is expected.
type StudyService struct {
	rooms      RoomStore
	state      StudyStateStore
	materials  MaterialStore
	extractor  client.TextExtractor
	contentGen client.ContentGenerator
	events     EventPublisher

	// newTicker is swapped in tests to drive ticks manually.
	newTicker func() (<-chan time.Time, func())

	mu      sync.Mutex
	runners map[string]*study.Runner
}

func NewStudyService(
	rooms RoomStore,
	state StudyStateStore,
	materials MaterialStore,
	extractor client.TextExtractor,
	contentGen client.ContentGenerator,
	events EventPublisher,
) *StudyService {
	return &StudyService{
		rooms:      rooms,
		state:      state,
		materials:  materials,
		extractor:  extractor,
		contentGen: contentGen,
		events:     events,
		newTicker: func() (<-chan time.Time, func()) {
			t := time.NewTicker(time.Second)
			return t.C, t.Stop
		},
		runners: make(map[string]*study.Runner),
	}
}

// StartStudySession begins the shared review window. Host-only.
func (s *StudyService) StartStudySession(ctx context.Context, roomID, hostID string, durationMinutes int, materialsRef string) (*models.StudySession, error) {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load room", Err: err}
	}
	if room.HostID != hostID {
		return nil, &apperr.ValidationError{Field: "host_id", Reason: "only the host controls study time"}
	}
	if durationMinutes < constants.MinStudyMinutes || durationMinutes > constants.MaxStudyMinutes {
		return nil, &apperr.ValidationError{
			Field:  "duration_minutes",
			Reason: fmt.Sprintf("must be between %d and %d", constants.MinStudyMinutes, constants.MaxStudyMinutes),
		}
	}

	session := &models.StudySession{
		RoomID:           roomID,
		Active:           true,
		DurationMinutes:  durationMinutes,
		RemainingSeconds: durationMinutes * 60,
		MaterialsRef:     materialsRef,
	}
	if err := s.saveState(ctx, session); err != nil {
		return nil, err
	}
	s.publishStudyEvent(ctx, session, transport.EventInsert)

	s.startRunner(roomID, durationMinutes)
	return session, nil
}

// EditStudyDuration re-bases the remaining time to the new duration,
// immediately when a countdown is active.
func (s *StudyService) EditStudyDuration(ctx context.Context, roomID, hostID string, durationMinutes int) (*models.StudySession, error) {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load room", Err: err}
	}
	if room.HostID != hostID {
		return nil, &apperr.ValidationError{Field: "host_id", Reason: "only the host controls study time"}
	}
	if durationMinutes < constants.MinStudyMinutes || durationMinutes > constants.MaxStudyMinutes {
		return nil, &apperr.ValidationError{
			Field:  "duration_minutes",
			Reason: fmt.Sprintf("must be between %d and %d", constants.MinStudyMinutes, constants.MaxStudyMinutes),
		}
	}

	session, err := s.loadState(ctx, roomID)
	if err != nil {
		return nil, err
	}

	session.DurationMinutes = durationMinutes
	session.RemainingSeconds = durationMinutes * 60
	if err := s.saveState(ctx, session); err != nil {
		return nil, err
	}
	s.publishStudyEvent(ctx, session, transport.EventUpdate)

	s.mu.Lock()
	if runner, ok := s.runners[roomID]; ok {
		runner.Reseed(durationMinutes)
	}
	s.mu.Unlock()

	return session, nil
}

// EndStudySession stops the window, either by the host or by expiry. Ending
// is advisory: it never auto-starts the quiz.
func (s *StudyService) EndStudySession(ctx context.Context, roomID, hostID string) error {
	if hostID != "" {
		room, err := s.rooms.GetRoomByID(ctx, roomID)
		if err != nil {
			return &apperr.PersistenceError{Op: "load room", Err: err}
		}
		if room.HostID != hostID {
			return &apperr.ValidationError{Field: "host_id", Reason: "only the host controls study time"}
		}
	}

	session, err := s.loadState(ctx, roomID)
	if err != nil {
		// Already gone; ending twice is harmless.
		return nil
	}
	session.Active = false
	session.RemainingSeconds = 0

	if err := s.state.Delete(ctx, studyStateKey(roomID)); err != nil {
		log.Printf("Failed to clear study state for room %s: %v", roomID, err)
	}
	s.publishStudyEvent(ctx, session, transport.EventDelete)

	s.mu.Lock()
	if runner, ok := s.runners[roomID]; ok {
		runner.Stop()
		delete(s.runners, roomID)
	}
	s.mu.Unlock()

	return nil
}

func (s *StudyService) GetStudySession(ctx context.Context, roomID string) (*models.StudySession, error) {
	return s.loadState(ctx, roomID)
}

// UploadMaterials stores a source document, extracts its text, generates
// study notes from it, and shares the notes on the room. Returns the
// materials reference and the generated notes.
func (s *StudyService) UploadMaterials(ctx context.Context, roomID, hostID string, data []byte, filename, mimeType string) (string, string, error) {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return "", "", &apperr.PersistenceError{Op: "load room", Err: err}
	}
	if room.HostID != hostID {
		return "", "", &apperr.ValidationError{Field: "host_id", Reason: "only the host uploads materials"}
	}
	if len(data) == 0 {
		return "", "", &apperr.ValidationError{Field: "file", Reason: "empty upload"}
	}

	objectName := fmt.Sprintf("%s/%s%s", roomID, uuid.New().String(), path.Ext(filename))
	if err := s.materials.UploadMaterial(ctx, objectName, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return "", "", &apperr.PersistenceError{Op: "upload material", Err: err}
	}

	text, err := s.extractor.Extract(ctx, data, mimeType)
	if err != nil {
		if errors.Is(err, client.ErrUnsupportedFormat) || errors.Is(err, client.ErrEmptyContent) {
			return "", "", &apperr.ValidationError{Field: "file", Reason: err.Error()}
		}
		return "", "", fmt.Errorf("text extraction failed: %w", err)
	}

	notes, err := s.contentGen.GenerateNotes(ctx, client.GenerationRequest{
		Topic:      room.Topic,
		Difficulty: room.Difficulty,
		SourceText: text,
	})
	if err != nil {
		return "", "", &apperr.ContentGenerationFailed{Err: err}
	}

	if err := s.rooms.UpdateStudyNotes(ctx, roomID, notes); err != nil {
		return "", "", &apperr.PersistenceError{Op: "share study notes", Err: err}
	}
	room.StudyNotes = notes
	s.publishRoomUpdate(ctx, room)

	return objectName, notes, nil
}

// startRunner drives the server-side authoritative expiry for one room.
func (s *StudyService) startRunner(roomID string, durationMinutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.runners[roomID]; ok {
		old.Stop()
	}

	runner := study.NewRunner(durationMinutes, nil, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.EndStudySession(ctx, roomID, ""); err != nil {
			log.Printf("Failed to end expired study session for room %s: %v", roomID, err)
		}
	})
	s.runners[roomID] = runner

	ticks, stop := s.newTicker()
	go func() {
		defer stop()
		runner.Run(ticks)
	}()
}

func (s *StudyService) saveState(ctx context.Context, session *models.StudySession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal study state: %w", err)
	}
	if err := s.state.Set(ctx, studyStateKey(session.RoomID), string(data), studyStateTTL); err != nil {
		return &apperr.PersistenceError{Op: "save study state", Err: err}
	}
	return nil
}

func (s *StudyService) loadState(ctx context.Context, roomID string) (*models.StudySession, error) {
	raw, err := s.state.Get(ctx, studyStateKey(roomID))
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load study state", Err: err}
	}
	var session models.StudySession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("corrupt study state for room %s: %w", roomID, err)
	}
	return &session, nil
}

func (s *StudyService) publishStudyEvent(ctx context.Context, session *models.StudySession, eventType transport.EventType) {
	image, err := json.Marshal(session)
	if err != nil {
		log.Printf("Failed to marshal study event: %v", err)
		return
	}
	ev := transport.Event{
		Table: transport.TableStudySessions,
		Type:  eventType,
		Key:   session.RoomID,
		New:   image,
	}
	if err := s.events.Publish(ctx, transport.RoomChannel(session.RoomID), ev); err != nil {
		log.Printf("Failed to publish study event for room %s: %v", session.RoomID, err)
	}
}

func (s *StudyService) publishRoomUpdate(ctx context.Context, room *models.Room) {
	image, err := json.Marshal(room)
	if err != nil {
		log.Printf("Failed to marshal room event: %v", err)
		return
	}
	ev := transport.Event{
		Table: transport.TableRooms,
		Type:  transport.EventUpdate,
		Key:   room.ID,
		New:   image,
	}
	if err := s.events.Publish(ctx, transport.RoomChannel(room.ID), ev); err != nil {
		log.Printf("Failed to publish room event for room %s: %v", room.ID, err)
	}
}
