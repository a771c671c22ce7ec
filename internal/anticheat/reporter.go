package anticheat

import (
	"context"
	"encoding/json"
	"log"

	"quizroom/internal/models"
)

// MessagePublisher is the durable queue the reporter hands violations to.
type MessagePublisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// Report is the queue payload for one violation.
type Report struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Violation   string `json:"violation"`
	DurationMs  int64  `json:"duration_ms"`
}

// Reporter forwards locally detected violations to the report queue.
// Reporting is best-effort: a failed publish is logged and dropped, never
// retried indefinitely and never surfaced to the player.
type Reporter struct {
	publisher MessagePublisher
	queue     string
}

func NewReporter(publisher MessagePublisher, queue string) *Reporter {
	return &Reporter{publisher: publisher, queue: queue}
}

func (r *Reporter) Report(ctx context.Context, event *models.CheatEvent, displayName string) {
	report := Report{
		SessionID:   event.SessionID,
		UserID:      event.UserID,
		DisplayName: displayName,
		Violation:   event.Violation,
		DurationMs:  event.DurationMs,
	}

	body, err := json.Marshal(report)
	if err != nil {
		log.Printf("Failed to marshal cheat report for user %s: %v", event.UserID, err)
		return
	}

	if err := r.publisher.Publish(ctx, r.queue, body); err != nil {
		log.Printf("Failed to report cheat event for user %s: %v", event.UserID, err)
	}
}
