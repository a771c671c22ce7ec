package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"quizroom/internal/anticheat"
	"quizroom/internal/constants"
	"quizroom/internal/models"
	"quizroom/internal/transport"
)

type fakeBus struct {
	mu       sync.Mutex
	channels []string
	closed   map[string]int
	handlers map[string]transport.Handler
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		closed:   make(map[string]int),
		handlers: make(map[string]transport.Handler),
	}
}

func (b *fakeBus) Subscribe(_ context.Context, channelKey string, _ []transport.Filter, handler transport.Handler) *transport.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channelKey)
	b.handlers[channelKey] = handler
	return transport.NewSubscription(channelKey, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed[channelKey]++
		return nil
	})
}

func (b *fakeBus) closedCount(channelKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed[channelKey]
}

type fakeDirectory struct{}

func (fakeDirectory) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	return &models.Room{ID: roomID, Status: constants.RoomStatusWaiting}, nil
}

func (fakeDirectory) RefreshMembers(_ context.Context, _ string) ([]*models.Member, error) {
	return nil, nil
}

func (fakeDirectory) SetReady(_ context.Context, _, _ string, _ bool) error {
	return nil
}

type fakeQuiz struct{}

func (fakeQuiz) GetActiveSession(_ context.Context, _ string) (*models.QuizSession, error) {
	return nil, nil
}

func (fakeQuiz) AdvanceQuestion(_ context.Context, _ string, _ int) error {
	return nil
}

type fakeStudy struct{}

func (fakeStudy) GetStudySession(_ context.Context, _ string) (*models.StudySession, error) {
	return nil, nil
}

func newTestHub(bus *fakeBus) *Hub {
	hub := NewHub(fakeDirectory{}, fakeStudy{}, bus, anticheat.NewReporter(nopPublisher{}, "q"), anticheat.DefaultFocusLossThreshold)
	hub.BindQuiz(fakeQuiz{})
	return hub
}

type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ string, _ []byte) error { return nil }

func newTestClient(hub *Hub, userID, roomID string) *Client {
	return &Client{
		Hub:         hub,
		Send:        make(chan []byte, 16),
		UserID:      userID,
		DisplayName: userID,
		RoomID:      roomID,
		Feed:        anticheat.NewFeed(userID),
	}
}

func TestRoomSubscriptionLifecycle(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	first := newTestClient(hub, "user-1", "room-1")
	second := newTestClient(hub, "user-2", "room-1")
	hub.mu.Lock()
	hub.clients["room-1"] = map[*Client]bool{first: true, second: true}
	hub.mu.Unlock()
	hub.ensureRoomSubscription("room-1")

	channel := transport.RoomChannel("room-1")
	if len(bus.channels) != 1 || bus.channels[0] != channel {
		t.Fatalf("subscribed channels = %v, want just %s", bus.channels, channel)
	}

	hub.unregisterClient(first)
	if got := bus.closedCount(channel); got != 0 {
		t.Fatalf("subscription closed with a client still connected (count=%d)", got)
	}

	hub.unregisterClient(second)
	if got := bus.closedCount(channel); got != 1 {
		t.Fatalf("subscription close count = %d after last client left, want 1", got)
	}
}

func TestSeedInstallsAggregatorAndSessionChannel(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	session := &models.QuizSession{ID: "s-1", RoomID: "room-1", TotalQuestions: 10, Status: constants.SessionStatusActive}
	hub.Seed(session, []*models.Member{
		{RoomID: "room-1", UserID: "user-1"},
		{RoomID: "room-1", UserID: "user-2"},
	})

	hub.aggMu.Lock()
	agg := hub.aggregators["s-1"]
	mapped := hub.roomSession["room-1"]
	hub.aggMu.Unlock()
	if agg == nil || mapped != "s-1" {
		t.Fatalf("seed did not install aggregator (agg=%v mapped=%q)", agg, mapped)
	}

	wantChannel := transport.SessionChannel("s-1")
	found := false
	for _, ch := range bus.channels {
		if ch == wantChannel {
			found = true
		}
	}
	if !found {
		t.Fatalf("no subscription on %s after seed", wantChannel)
	}
}

func TestCheatAlertRoutedThroughFeeds(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	violator := newTestClient(hub, "user-1", "room-1")
	witness := newTestClient(hub, "user-2", "room-1")
	hub.mu.Lock()
	hub.clients["room-1"] = map[*Client]bool{violator: true, witness: true}
	hub.mu.Unlock()

	alert := anticheat.Alert{
		EventID:    "ev-1",
		SessionID:  "s-1",
		UserID:     "user-1",
		Violation:  constants.ViolationFocusLoss,
		DurationMs: 3000,
	}
	payload, _ := json.Marshal(alert)
	row, _ := json.Marshal(models.SessionEvent{
		ID:        "row-1",
		SessionID: "s-1",
		EventType: anticheat.SessionEventCheatAlert,
		Payload:   string(payload),
	})

	hub.handleSessionEvent("room-1", transport.Event{
		Table: transport.TableSessionEvents,
		Type:  transport.EventInsert,
		Key:   "s-1",
		New:   row,
	})

	if len(violator.Send) != 0 {
		t.Fatal("violator received an alert about their own violation")
	}
	if len(witness.Send) != 1 {
		t.Fatalf("witness received %d messages, want 1", len(witness.Send))
	}
	if got := witness.Feed.Alerts(); len(got) != 1 || got[0].EventID != "ev-1" {
		t.Fatalf("witness feed = %+v", got)
	}

	// Redelivery of the same row is absorbed by the feed's dedup.
	hub.handleSessionEvent("room-1", transport.Event{
		Table: transport.TableSessionEvents,
		Type:  transport.EventInsert,
		Key:   "s-1",
		New:   row,
	})
	if len(witness.Send) != 1 {
		t.Fatal("duplicate alert was re-delivered to the witness")
	}
}

func TestSessionCompleteDeactivatesDetectors(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	client := newTestClient(hub, "user-1", "room-1")
	hub.mu.Lock()
	hub.clients["room-1"] = map[*Client]bool{client: true}
	hub.mu.Unlock()

	active, _ := json.Marshal(models.QuizSession{ID: "s-1", RoomID: "room-1", Status: constants.SessionStatusActive})
	hub.handleSessionChange("room-1", transport.Event{
		Table: transport.TableQuizSessions,
		Type:  transport.EventInsert,
		Key:   "room-1",
		New:   active,
	})
	if !client.HasDetector() {
		t.Fatal("no detector attached when the session went active")
	}

	// Focus lost during an active game, session completes, then focus
	// returns: the closing episode must not be reported as a violation.
	client.FocusLost(time.Now())

	complete, _ := json.Marshal(models.QuizSession{ID: "s-1", RoomID: "room-1", Status: constants.SessionStatusComplete})
	hub.handleSessionChange("room-1", transport.Event{
		Table: transport.TableQuizSessions,
		Type:  transport.EventUpdate,
		Key:   "room-1",
		New:   complete,
	})

	if ev := client.FocusRegained(time.Now().Add(5 * time.Second)); ev != nil {
		t.Fatalf("violation emitted after session completed: %+v", ev)
	}
}

// Session transitions arrive on subscription goroutines while focus traffic
// runs on the hub loop; both touch the same client's detector and must not
// trip the race detector.
func TestDetectorSafeUnderConcurrentSessionAndFocusTraffic(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	client := newTestClient(hub, "user-1", "room-1")
	hub.mu.Lock()
	hub.clients["room-1"] = map[*Client]bool{client: true}
	hub.mu.Unlock()

	active, _ := json.Marshal(models.QuizSession{ID: "s-1", RoomID: "room-1", Status: constants.SessionStatusActive})
	complete, _ := json.Marshal(models.QuizSession{ID: "s-1", RoomID: "room-1", Status: constants.SessionStatusComplete})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			payload := active
			if i%2 == 1 {
				payload = complete
			}
			hub.handleSessionChange("room-1", transport.Event{
				Table: transport.TableQuizSessions,
				Type:  transport.EventUpdate,
				Key:   "room-1",
				New:   payload,
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hub.handleFocusChange(client, map[string]any{"focused": i%2 == 0})
		}
	}()
	wg.Wait()
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	client := newTestClient(hub, "user-1", "room-1")
	hub.mu.Lock()
	hub.clients["room-1"] = map[*Client]bool{client: true}
	hub.mu.Unlock()

	hub.unregisterClient(client)

	// A join goroutine finishing late must fall through silently instead
	// of panicking on the closed channel.
	client.SendMessage(MessageTypeConnected, ConnectedPayload{IsHost: false})
	client.CloseSend()
}

func TestUnseedDropsAggregatorAndSessionChannel(t *testing.T) {
	bus := newFakeBus()
	hub := newTestHub(bus)

	session := &models.QuizSession{ID: "s-1", RoomID: "room-1", TotalQuestions: 10, Status: constants.SessionStatusGenerating}
	hub.Seed(session, []*models.Member{{RoomID: "room-1", UserID: "user-1"}})

	hub.Unseed(session)

	hub.aggMu.Lock()
	agg := hub.aggregators["s-1"]
	_, mapped := hub.roomSession["room-1"]
	hub.aggMu.Unlock()
	if agg != nil || mapped {
		t.Fatalf("progress still installed after unseed (agg=%v mapped=%v)", agg, mapped)
	}

	channel := transport.SessionChannel("s-1")
	if got := bus.closedCount(channel); got != 1 {
		t.Fatalf("session subscription close count = %d after unseed, want 1", got)
	}
	hub.subMu.Lock()
	_, subKept := hub.subs[channel]
	_, followKept := hub.sessionSubs["room-1"]
	hub.subMu.Unlock()
	if subKept || followKept {
		t.Fatal("subscription bookkeeping still holds the rolled-back session")
	}
}
