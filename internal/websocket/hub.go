package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"quizroom/internal/anticheat"
	"quizroom/internal/constants"
	"quizroom/internal/models"
	"quizroom/internal/progress"
	"quizroom/internal/transport"
)

// RoomDirectory is the slice of the room service the hub needs.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	RefreshMembers(ctx context.Context, roomID string) ([]*models.Member, error)
	SetReady(ctx context.Context, roomID, userID string, ready bool) error
}

type QuizControl interface {
	GetActiveSession(ctx context.Context, roomID string) (*models.QuizSession, error)
	AdvanceQuestion(ctx context.Context, sessionID string, questionIndex int) error
}

type StudyReader interface {
	GetStudySession(ctx context.Context, roomID string) (*models.StudySession, error)
}

// EventBus hands out owned subscriptions. Implemented by transport.Transport.
type EventBus interface {
	Subscribe(ctx context.Context, channelKey string, filters []transport.Filter, handler transport.Handler) *transport.Subscription
}

type ClientMessage struct {
	Client  *Client
	Message Message
}

type Hub struct {
	clients       map[string]map[*Client]bool
	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage

	rooms    RoomDirectory
	quiz     QuizControl
	study    StudyReader
	bus      EventBus
	reporter *anticheat.Reporter

	focusThreshold time.Duration

	mu sync.RWMutex

	// One subscription per channel, owned by the hub. A room's
	// subscriptions are closed when its last client disconnects.
	subMu       sync.Mutex
	subs        map[string]*transport.Subscription
	sessionSubs map[string]string // roomID -> session channel key

	// Per-session progress, seeded at quiz start.
	aggMu       sync.Mutex
	aggregators map[string]*progress.Aggregator
	roomSession map[string]string // roomID -> sessionID
}

func NewHub(
	rooms RoomDirectory,
	study StudyReader,
	bus EventBus,
	reporter *anticheat.Reporter,
	focusThreshold time.Duration,
) *Hub {
	return &Hub{
		clients:        make(map[string]map[*Client]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		rooms:          rooms,
		study:          study,
		bus:            bus,
		reporter:       reporter,
		focusThreshold: focusThreshold,
		subs:           make(map[string]*transport.Subscription),
		sessionSubs:    make(map[string]string),
		aggregators:    make(map[string]*progress.Aggregator),
		roomSession:    make(map[string]string),
	}
}

// BindQuiz wires the quiz control after construction. The hub seeds the
// quiz service's progress and the quiz service drives the hub's sessions,
// so one side has to be attached late. Call before Run.
func (h *Hub) BindQuiz(quiz QuizControl) {
	h.quiz = quiz
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case clientMsg := <-h.HandleMessage:
			h.handleClientMessage(clientMsg)
		}
	}
}

// Seed installs the per-session progress aggregator at quiz start. Called
// by the quiz service through the ProgressSeeder interface.
func (h *Hub) Seed(session *models.QuizSession, members []*models.Member) {
	agg := progress.NewAggregator(session.ID, session.TotalQuestions)
	agg.Seed(members)

	h.aggMu.Lock()
	h.aggregators[session.ID] = agg
	h.roomSession[session.RoomID] = session.ID
	h.aggMu.Unlock()

	h.ensureSessionSubscription(session.RoomID, session.ID)
}

// Unseed tears down what Seed installed when a quiz start is rolled back.
// The delete event also cleans up via handleSessionChange, but only if a
// connected client keeps the room subscription alive; this path does not
// depend on one.
func (h *Hub) Unseed(session *models.QuizSession) {
	h.aggMu.Lock()
	delete(h.aggregators, session.ID)
	if h.roomSession[session.RoomID] == session.ID {
		delete(h.roomSession, session.RoomID)
	}
	h.aggMu.Unlock()

	h.subMu.Lock()
	defer h.subMu.Unlock()
	channel := transport.SessionChannel(session.ID)
	if h.sessionSubs[session.RoomID] == channel {
		delete(h.sessionSubs, session.RoomID)
	}
	if sub, ok := h.subs[channel]; ok {
		sub.Close()
		delete(h.subs, channel)
		log.Printf("Unsubscribed from %s", channel)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.RoomID] == nil {
		h.clients[client.RoomID] = make(map[*Client]bool)
	}
	h.clients[client.RoomID][client] = true
	h.mu.Unlock()

	log.Printf("Client registered: user=%s, room=%s, isHost=%v",
		client.UserID, client.RoomID, client.IsHost)

	h.ensureRoomSubscription(client.RoomID)

	go h.handleJoin(client)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.RoomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	client.CloseSend()
	roomEmpty := len(clients) == 0
	if roomEmpty {
		delete(h.clients, client.RoomID)
	}
	h.mu.Unlock()

	// An episode in flight when the socket drops still counts.
	if ev := client.FlushDetector(time.Now()); ev != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		h.reporter.Report(ctx, ev, client.DisplayName)
		cancel()
	}

	if roomEmpty {
		h.dropRoomSubscriptions(client.RoomID)
	} else {
		h.aggMu.Lock()
		sessionID, hasSession := h.roomSession[client.RoomID]
		agg := h.aggregators[sessionID]
		h.aggMu.Unlock()
		if hasSession && agg != nil {
			agg.SetActive(client.UserID, false)
			h.broadcastLeaderboard(client.RoomID, agg)
		}
	}

	log.Printf("Client unregistered: user=%s, room=%s", client.UserID, client.RoomID)
}

func (h *Hub) handleClientMessage(clientMsg *ClientMessage) {
	client := clientMsg.Client
	msg := clientMsg.Message

	switch msg.Type {
	case MessageTypeFocusChange:
		h.handleFocusChange(client, msg.Payload)

	case MessageTypeProgressUpdate:
		h.handleProgressUpdate(client, msg.Payload)

	case MessageTypeAdvance:
		if client.IsHost {
			h.handleAdvance(client, msg.Payload)
		} else {
			client.SendError("Only the host can advance questions")
		}

	case MessageTypeReady:
		h.handleReady(client, msg.Payload)

	case MessageTypeDismissAlert:
		var payload DismissAlertPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			client.SendError("Invalid dismiss format")
			return
		}
		client.Feed.Dismiss(payload.EventID)

	case MessageTypePing:
		client.SendMessage(MessageTypePong, nil)

	default:
		client.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Hub) handleJoin(client *Client) {
	ctx := context.Background()

	room, err := h.rooms.GetRoom(ctx, client.RoomID)
	if err != nil {
		log.Printf("Failed to load room %s: %v", client.RoomID, err)
		client.SendError("Failed to load room")
		return
	}

	members, err := h.rooms.RefreshMembers(ctx, client.RoomID)
	if err != nil {
		log.Printf("Failed to load members for room %s: %v", client.RoomID, err)
		client.SendError("Failed to load room members")
		return
	}

	session, err := h.quiz.GetActiveSession(ctx, client.RoomID)
	if err != nil {
		log.Printf("Failed to load session for room %s: %v", client.RoomID, err)
		session = nil
	}
	if session != nil {
		client.AttachDetector(session.ID, h.focusThreshold, session.Status == constants.SessionStatusActive)
		h.ensureSessionSubscription(client.RoomID, session.ID)

		// A reconnecting or late-joining player is admitted into the
		// running session's progress at question zero.
		h.aggMu.Lock()
		if agg := h.aggregators[session.ID]; agg != nil {
			agg.Seed([]*models.Member{{RoomID: client.RoomID, UserID: client.UserID, DisplayName: client.DisplayName}})
			agg.SetActive(client.UserID, true)
		}
		h.aggMu.Unlock()
	}

	study, err := h.study.GetStudySession(ctx, client.RoomID)
	if err != nil {
		study = nil
	}

	client.SendMessage(MessageTypeConnected, ConnectedPayload{
		Room:    room,
		Members: members,
		Session: session,
		Study:   study,
		Alerts:  client.Feed.Alerts(),
		IsHost:  client.IsHost,
	})

	h.broadcastToRoom(client.RoomID, MessageTypeMembersUpdate, MembersUpdatePayload{
		Members: members,
		Count:   len(members),
	})
}

func (h *Hub) handleFocusChange(client *Client, payload any) {
	var focus FocusChangePayload
	if err := decodePayload(payload, &focus); err != nil {
		client.SendError("Invalid focus format")
		return
	}
	now := time.Now()
	if !focus.Focused {
		client.FocusLost(now)
		return
	}
	if ev := client.FocusRegained(now); ev != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.reporter.Report(ctx, ev, client.DisplayName)
	}
}

func (h *Hub) handleProgressUpdate(client *Client, payload any) {
	var update ProgressUpdatePayload
	if err := decodePayload(payload, &update); err != nil {
		client.SendError("Invalid progress format")
		return
	}

	h.aggMu.Lock()
	sessionID, ok := h.roomSession[client.RoomID]
	agg := h.aggregators[sessionID]
	h.aggMu.Unlock()
	if !ok || agg == nil {
		client.SendError("No active quiz session")
		return
	}

	if agg.Apply(client.UserID, update.QuestionIndex, update.Score, update.Streak) {
		h.broadcastLeaderboard(client.RoomID, agg)
	}
}

func (h *Hub) handleAdvance(client *Client, payload any) {
	var adv AdvancePayload
	if err := decodePayload(payload, &adv); err != nil {
		client.SendError("Invalid advance format")
		return
	}

	h.aggMu.Lock()
	sessionID, ok := h.roomSession[client.RoomID]
	h.aggMu.Unlock()
	if !ok || h.quiz == nil {
		client.SendError("No active quiz session")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.quiz.AdvanceQuestion(ctx, sessionID, adv.QuestionIndex); err != nil {
		log.Printf("Failed to advance session %s: %v", sessionID, err)
		client.SendError("Failed to advance question")
	}
}

func (h *Hub) handleReady(client *Client, payload any) {
	var ready ReadyPayload
	if err := decodePayload(payload, &ready); err != nil {
		client.SendError("Invalid ready format")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.rooms.SetReady(ctx, client.RoomID, client.UserID, ready.Ready); err != nil {
		log.Printf("Failed to set ready for user %s: %v", client.UserID, err)
		client.SendError("Failed to update ready state")
	}
}

// handleRoomEvent fans one change notification out to the room's clients.
// Runs on the subscription's goroutine.
func (h *Hub) handleRoomEvent(roomID string, ev transport.Event) {
	switch ev.Table {
	case transport.TableRooms:
		h.broadcastToRoom(roomID, MessageTypeRoomUpdate, json.RawMessage(ev.New))

	case transport.TableRoomMembers:
		// Membership notifications trigger a full authoritative re-read
		// rather than incremental patching of the local list.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		members, err := h.rooms.RefreshMembers(ctx, roomID)
		cancel()
		if err != nil {
			log.Printf("Failed to refresh members for room %s: %v", roomID, err)
			return
		}
		h.broadcastToRoom(roomID, MessageTypeMembersUpdate, MembersUpdatePayload{
			Members: members,
			Count:   len(members),
		})

	case transport.TableQuizSessions:
		h.handleSessionChange(roomID, ev)

	case transport.TableStudySessions:
		h.broadcastToRoom(roomID, MessageTypeStudyUpdate, json.RawMessage(ev.New))
	}
}

func (h *Hub) handleSessionChange(roomID string, ev transport.Event) {
	var session models.QuizSession
	if err := json.Unmarshal(ev.New, &session); err != nil {
		log.Printf("Failed to decode session event for room %s: %v", roomID, err)
		return
	}

	switch {
	case ev.Type == transport.EventDelete || session.Status == constants.SessionStatusComplete:
		h.setRoomGameActive(roomID, false, &session)
		h.aggMu.Lock()
		delete(h.roomSession, roomID)
		delete(h.aggregators, session.ID)
		h.aggMu.Unlock()

	case session.Status == constants.SessionStatusActive:
		h.setRoomGameActive(roomID, true, &session)
		h.ensureSessionSubscription(roomID, session.ID)
	}

	h.broadcastToRoom(roomID, MessageTypeSessionUpdate, json.RawMessage(ev.New))
}

// handleSessionEvent routes session-scoped broadcast rows, currently only
// cheat alerts, through each client's own feed so self-suppression,
// de-duplication, and dismissals stay local.
func (h *Hub) handleSessionEvent(roomID string, ev transport.Event) {
	if ev.Table != transport.TableSessionEvents {
		return
	}
	var row models.SessionEvent
	if err := json.Unmarshal(ev.New, &row); err != nil {
		log.Printf("Failed to decode session event row: %v", err)
		return
	}
	if row.EventType != anticheat.SessionEventCheatAlert {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[roomID] {
		if client.Feed.Offer([]byte(row.Payload)) {
			client.SendMessage(MessageTypeCheatAlert, json.RawMessage(row.Payload))
		}
	}
}

func (h *Hub) setRoomGameActive(roomID string, active bool, session *models.QuizSession) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[roomID] {
		if !client.SetGameActive(active) && active {
			client.AttachDetector(session.ID, h.focusThreshold, true)
		}
	}
}

func (h *Hub) broadcastLeaderboard(roomID string, agg *progress.Aggregator) {
	h.broadcastToRoom(roomID, MessageTypeLeaderboard, LeaderboardPayload{
		SessionID: agg.SessionID(),
		Entries:   agg.Leaderboard(),
	})
}

func (h *Hub) broadcastToRoom(roomID string, msgType MessageType, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[roomID] {
		client.SendMessage(msgType, payload)
	}
}

func (h *Hub) ensureRoomSubscription(roomID string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	channel := transport.RoomChannel(roomID)
	if _, ok := h.subs[channel]; ok {
		return
	}
	h.subs[channel] = h.bus.Subscribe(context.Background(), channel, nil, func(ev transport.Event) {
		h.handleRoomEvent(roomID, ev)
	})
	log.Printf("Subscribed to %s", channel)
}

func (h *Hub) ensureSessionSubscription(roomID, sessionID string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	channel := transport.SessionChannel(sessionID)
	if _, ok := h.subs[channel]; ok {
		return
	}

	// A room follows at most one session channel at a time.
	if old, ok := h.sessionSubs[roomID]; ok && old != channel {
		if sub, ok := h.subs[old]; ok {
			sub.Close()
			delete(h.subs, old)
		}
	}

	h.subs[channel] = h.bus.Subscribe(context.Background(), channel, nil, func(ev transport.Event) {
		h.handleSessionEvent(roomID, ev)
	})
	h.sessionSubs[roomID] = channel
	log.Printf("Subscribed to %s", channel)
}

// dropRoomSubscriptions releases the room's channels once nobody is
// connected. Close is idempotent, so racing a late resubscribe is safe.
func (h *Hub) dropRoomSubscriptions(roomID string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	channel := transport.RoomChannel(roomID)
	if sub, ok := h.subs[channel]; ok {
		sub.Close()
		delete(h.subs, channel)
		log.Printf("Unsubscribed from %s", channel)
	}
	if sessionChannel, ok := h.sessionSubs[roomID]; ok {
		if sub, ok := h.subs[sessionChannel]; ok {
			sub.Close()
			delete(h.subs, sessionChannel)
			log.Printf("Unsubscribed from %s", sessionChannel)
		}
		delete(h.sessionSubs, roomID)
	}
}

func decodePayload(payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
