package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quizroom/internal/apperr"
	"quizroom/internal/client"
	"quizroom/internal/constants"
	"quizroom/internal/models"
	"quizroom/internal/transport"
)

// RoomStore is the persistence surface the lifecycle manager needs.
// Implemented by repository.RoomRepository.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoomByID(ctx context.Context, roomID string) (*models.Room, error)
	GetRoomByCode(ctx context.Context, joinCode string) (*models.Room, error)
	UpdateRoomStatus(ctx context.Context, roomID, fromStatus, toStatus string) (bool, error)
	StampRoomStarted(ctx context.Context, roomID string, startedAt time.Time) error
	StampRoomEnded(ctx context.Context, roomID string, endedAt time.Time) error
	RevertRoomStatus(ctx context.Context, roomID, status string) error
	UpdateStudyNotes(ctx context.Context, roomID, notes string) error
	DeleteRoom(ctx context.Context, roomID string) error
	MemberExists(ctx context.Context, roomID, userID string) (bool, error)
	InsertMember(ctx context.Context, member *models.Member) error
	DeleteMember(ctx context.Context, roomID, userID string) error
	GetMembers(ctx context.Context, roomID string) ([]*models.Member, error)
	SyncCurrentPlayers(ctx context.Context, roomID string) (int, error)
	SetMemberReady(ctx context.Context, roomID, userID string, ready bool) error
}

// EventPublisher fans change notifications out to subscribed clients.
// Implemented by transport.Transport.
type EventPublisher interface {
	Publish(ctx context.Context, channelKey string, ev transport.Event) error
}

type RoomSettings struct {
	Difficulty      string
	Topic           string
	IsPrivate       bool
	TimePerQuestion int
	TotalQuestions  int
}

// Forward-only lifecycle graph. Cancellation is only reachable from waiting.
var validRoomTransitions = map[string][]string{
	constants.RoomStatusWaiting: {constants.RoomStatusActive, constants.RoomStatusCancelled},
	constants.RoomStatusActive:  {constants.RoomStatusCompleted},
}

func roomTransitionAllowed(from, to string) bool {
	for _, allowed := range validRoomTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type RoomService struct {
	rooms  RoomStore
	policy client.PolicyService
	events EventPublisher
}

func NewRoomService(rooms RoomStore, policy client.PolicyService, events EventPublisher) *RoomService {
	return &RoomService{
		rooms:  rooms,
		policy: policy,
		events: events,
	}
}

// CreateRoom inserts the room and its host member as a best-effort two-step
// sequence. The two inserts are not atomic: if the member insert fails, the
// just-created room is deleted as compensation. Both steps are idempotent so
// a retry after a partial failure converges.
func (s *RoomService) CreateRoom(ctx context.Context, hostID, hostName, name string, maxPlayers int, settings RoomSettings) (*models.Room, error) {
	if hostID == "" {
		return nil, &apperr.ValidationError{Field: "host_id", Reason: "missing"}
	}
	if name == "" {
		return nil, &apperr.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if maxPlayers < 1 {
		return nil, &apperr.ValidationError{Field: "max_players", Reason: "must be at least 1"}
	}

	decision, err := s.policy.CheckPlayerCount(ctx, hostID, maxPlayers)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "entitlement check", Err: err}
	}
	if !decision.Allowed {
		return nil, &apperr.LimitExceededError{
			Requested:       maxPlayers,
			MaxAllowed:      decision.MaxAllowed,
			RequiresUpgrade: decision.RequiresUpgrade,
		}
	}

	room := &models.Room{
		Name:            name,
		HostID:          hostID,
		MaxPlayers:      maxPlayers,
		Difficulty:      settings.Difficulty,
		Topic:           settings.Topic,
		IsPrivate:       settings.IsPrivate,
		TimePerQuestion: settings.TimePerQuestion,
		TotalQuestions:  settings.TotalQuestions,
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, &apperr.PersistenceError{Op: "create room", Err: err}
	}

	host := &models.Member{
		RoomID:      room.ID,
		UserID:      hostID,
		DisplayName: hostName,
		JoinedAt:    time.Now(),
	}
	if err := s.rooms.InsertMember(ctx, host); err != nil {
		// Compensation is best-effort; a failure here leaves an orphan room
		// which is logged, not escalated.
		if delErr := s.rooms.DeleteRoom(ctx, room.ID); delErr != nil {
			log.Printf("Failed to compensate orphan room %s: %v", room.ID, delErr)
		}
		return nil, &apperr.PersistenceError{Op: "insert host member", Err: err}
	}

	if count, err := s.rooms.SyncCurrentPlayers(ctx, room.ID); err != nil {
		log.Printf("Failed to sync player count for room %s: %v", room.ID, err)
	} else {
		room.CurrentPlayers = count
	}

	s.publishMemberEvent(ctx, room.ID, transport.EventInsert, host)
	return room, nil
}

// JoinRoom is an idempotent-intent insert: joining a room you are already in
// returns your existing membership. The lookup-then-insert pair is backed by
// a uniqueness constraint at the store layer, so a concurrent double-join
// cannot produce duplicate rows.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, userID, displayName string) (*models.Member, error) {
	if userID == "" {
		return nil, &apperr.ValidationError{Field: "user_id", Reason: "missing"}
	}

	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load room", Err: err}
	}

	exists, err := s.rooms.MemberExists(ctx, roomID, userID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "membership lookup", Err: err}
	}
	if exists {
		return s.findMember(ctx, roomID, userID)
	}

	if room.Status == constants.RoomStatusCompleted || room.Status == constants.RoomStatusCancelled {
		return nil, &apperr.ValidationError{Field: "room_id", Reason: "room is no longer joinable"}
	}
	if room.CurrentPlayers >= room.MaxPlayers {
		return nil, &apperr.LimitExceededError{
			Requested:  room.CurrentPlayers + 1,
			MaxAllowed: room.MaxPlayers,
		}
	}

	member := &models.Member{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
	}
	if err := s.rooms.InsertMember(ctx, member); err != nil {
		return nil, &apperr.PersistenceError{Op: "insert member", Err: err}
	}

	if _, err := s.rooms.SyncCurrentPlayers(ctx, roomID); err != nil {
		log.Printf("Failed to sync player count for room %s: %v", roomID, err)
	}

	s.publishMemberEvent(ctx, roomID, transport.EventInsert, member)
	return member, nil
}

// JoinRoomByCode resolves a share code and joins the room behind it.
func (s *RoomService) JoinRoomByCode(ctx context.Context, joinCode, userID, displayName string) (*models.Room, *models.Member, error) {
	room, err := s.rooms.GetRoomByCode(ctx, joinCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, &apperr.ValidationError{Field: "join_code", Reason: "unknown code"}
	}
	if err != nil {
		return nil, nil, &apperr.PersistenceError{Op: "resolve join code", Err: err}
	}
	member, err := s.JoinRoom(ctx, room.ID, userID, displayName)
	if err != nil {
		return nil, nil, err
	}
	return room, member, nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	if err := s.rooms.DeleteMember(ctx, roomID, userID); err != nil {
		return &apperr.PersistenceError{Op: "delete member", Err: err}
	}

	if _, err := s.rooms.SyncCurrentPlayers(ctx, roomID); err != nil {
		log.Printf("Failed to sync player count for room %s: %v", roomID, err)
	}

	s.publishMemberEvent(ctx, roomID, transport.EventDelete, &models.Member{RoomID: roomID, UserID: userID})
	return nil
}

// RefreshMembers is the authoritative resync: a full re-read of membership,
// used as bootstrap and whenever a membership notification arrives, because
// the partial row on the wire is not enough to rebuild the joined view.
func (s *RoomService) RefreshMembers(ctx context.Context, roomID string) ([]*models.Member, error) {
	members, err := s.rooms.GetMembers(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load members", Err: err}
	}
	return members, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load room", Err: err}
	}
	return room, nil
}

// TransitionStatus enforces the forward-only lifecycle graph.
func (s *RoomService) TransitionStatus(ctx context.Context, roomID, newStatus string) error {
	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return &apperr.PersistenceError{Op: "load room", Err: err}
	}

	if !roomTransitionAllowed(room.Status, newStatus) {
		return apperr.ErrInvalidStateTransition
	}

	updated, err := s.rooms.UpdateRoomStatus(ctx, roomID, room.Status, newStatus)
	if err != nil {
		return &apperr.PersistenceError{Op: "update room status", Err: err}
	}
	if !updated {
		// A concurrent writer moved the room first; the graph is forward-only
		// so the stale transition is rejected rather than replayed.
		return apperr.ErrInvalidStateTransition
	}

	now := time.Now()
	switch newStatus {
	case constants.RoomStatusActive:
		if err := s.rooms.StampRoomStarted(ctx, roomID, now); err != nil {
			log.Printf("Failed to stamp start time for room %s: %v", roomID, err)
		}
	case constants.RoomStatusCompleted, constants.RoomStatusCancelled:
		if err := s.rooms.StampRoomEnded(ctx, roomID, now); err != nil {
			log.Printf("Failed to stamp end time for room %s: %v", roomID, err)
		}
	}

	room.Status = newStatus
	s.publishRoomEvent(ctx, room)
	return nil
}

func (s *RoomService) SetReady(ctx context.Context, roomID, userID string, ready bool) error {
	if err := s.rooms.SetMemberReady(ctx, roomID, userID, ready); err != nil {
		return &apperr.PersistenceError{Op: "set ready", Err: err}
	}
	s.publishMemberEvent(ctx, roomID, transport.EventUpdate, &models.Member{RoomID: roomID, UserID: userID, Ready: ready})
	return nil
}

// ShareStudyNotes attaches a generated notes payload to the room so every
// member sees it.
func (s *RoomService) ShareStudyNotes(ctx context.Context, roomID, notes string) error {
	if err := s.rooms.UpdateStudyNotes(ctx, roomID, notes); err != nil {
		return &apperr.PersistenceError{Op: "update study notes", Err: err}
	}

	room, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("Failed to reload room %s after notes update: %v", roomID, err)
		return nil
	}
	s.publishRoomEvent(ctx, room)
	return nil
}

func (s *RoomService) findMember(ctx context.Context, roomID, userID string) (*models.Member, error) {
	members, err := s.rooms.GetMembers(ctx, roomID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load members", Err: err}
	}
	for _, m := range members {
		if m.UserID == userID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("member %s not found in room %s", userID, roomID)
}

// Mutations are observed by other clients only through these notifications;
// the lifecycle manager never pushes to peers directly. Publish failures are
// logged and swallowed: consumers resync by refetching.
func (s *RoomService) publishMemberEvent(ctx context.Context, roomID string, eventType transport.EventType, member *models.Member) {
	image, err := json.Marshal(member)
	if err != nil {
		log.Printf("Failed to marshal member event: %v", err)
		return
	}
	ev := transport.Event{
		Table: transport.TableRoomMembers,
		Type:  eventType,
		Key:   roomID,
	}
	if eventType == transport.EventDelete {
		ev.Old = image
	} else {
		ev.New = image
	}
	if err := s.events.Publish(ctx, transport.RoomChannel(roomID), ev); err != nil {
		log.Printf("Failed to publish member event for room %s: %v", roomID, err)
	}
}

func (s *RoomService) publishRoomEvent(ctx context.Context, room *models.Room) {
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
