package anticheat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"quizroom/internal/models"
	"quizroom/internal/transport"
)

const SessionEventCheatAlert = "cheat_alert"

// Alert is the broadcast record other participants render.
type Alert struct {
	EventID     string `json:"event_id"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Violation   string `json:"violation"`
	DurationMs  int64  `json:"duration_ms"`
}

type EventStore interface {
	InsertCheatEvent(ctx context.Context, event *models.CheatEvent) error
	InsertSessionEvent(ctx context.Context, event *models.SessionEvent) error
}

type Broadcaster interface {
	Publish(ctx context.Context, channelKey string, ev transport.Event) error
}

// Consumer drains the report queue: each report is persisted as an
// append-only CheatEvent row, recorded as a generic session event, and
// fanned out on the session's channel.
type Consumer struct {
	store       EventStore
	broadcaster Broadcaster
}

func NewConsumer(store EventStore, broadcaster Broadcaster) *Consumer {
	return &Consumer{store: store, broadcaster: broadcaster}
}

// Process handles one queue delivery. A store failure returns an error so
// the delivery is redelivered; a malformed body is dropped for good.
func (c *Consumer) Process(ctx context.Context, body []byte) error {
	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		log.Printf("Dropping malformed cheat report: %v", err)
		return nil
	}
	if report.SessionID == "" || report.UserID == "" {
		log.Printf("Dropping cheat report missing session or user")
		return nil
	}

	event := &models.CheatEvent{
		SessionID:  report.SessionID,
		UserID:     report.UserID,
		Violation:  report.Violation,
		DurationMs: report.DurationMs,
	}
	if err := c.store.InsertCheatEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to persist cheat event: %w", err)
	}

	alert := Alert{
		EventID:     event.ID,
		SessionID:   report.SessionID,
		UserID:      report.UserID,
		DisplayName: report.DisplayName,
		Violation:   report.Violation,
		DurationMs:  report.DurationMs,
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	sessionEvent := &models.SessionEvent{
		SessionID: report.SessionID,
		EventType: SessionEventCheatAlert,
		Payload:   string(payload),
	}
	if err := c.store.InsertSessionEvent(ctx, sessionEvent); err != nil {
		return fmt.Errorf("failed to persist session event: %w", err)
	}

	rowImage, err := json.Marshal(sessionEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	ev := transport.Event{
		Table: transport.TableSessionEvents,
		Type:  transport.EventInsert,
		Key:   report.SessionID,
		New:   rowImage,
	}
	if err := c.broadcaster.Publish(ctx, transport.SessionChannel(report.SessionID), ev); err != nil {
		// Fan-out is best-effort; the row is already persisted and clients
		// resync session events on reconnect.
		log.Printf("Failed to broadcast cheat alert for session %s: %v", report.SessionID, err)
	}

	return nil
}
