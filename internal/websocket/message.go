package websocket

import (
	"quizroom/internal/anticheat"
	"quizroom/internal/models"
)

type MessageType string

const (
	// Client -> Server
	MessageTypeFocusChange    MessageType = "focus_change"
	MessageTypeProgressUpdate MessageType = "progress_update"
	MessageTypeAdvance        MessageType = "advance_question"
	MessageTypeReady          MessageType = "ready"
	MessageTypeDismissAlert   MessageType = "dismiss_alert"
	MessageTypePing           MessageType = "ping"

	// Server -> Client
	MessageTypeConnected     MessageType = "connected"
	MessageTypeMembersUpdate MessageType = "members_update"
	MessageTypeRoomUpdate    MessageType = "room_update"
	MessageTypeSessionUpdate MessageType = "session_update"
	MessageTypeStudyUpdate   MessageType = "study_update"
	MessageTypeLeaderboard   MessageType = "leaderboard"
	MessageTypeCheatAlert    MessageType = "cheat_alert"
	MessageTypeError         MessageType = "error"
	MessageTypePong          MessageType = "pong"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type FocusChangePayload struct {
	Focused   bool  `json:"focused"`
	Timestamp int64 `json:"timestamp,omitempty"` // ms since epoch, informational
}

type ProgressUpdatePayload struct {
	QuestionIndex int `json:"question_index"`
	Score         int `json:"score"`
	Streak        int `json:"streak"`
}

type AdvancePayload struct {
	QuestionIndex int `json:"question_index"`
}

type ReadyPayload struct {
	Ready bool `json:"ready"`
}

type DismissAlertPayload struct {
	EventID string `json:"event_id"`
}

type ConnectedPayload struct {
	Room    *models.Room         `json:"room"`
	Members []*models.Member     `json:"members"`
	Session *models.QuizSession  `json:"session,omitempty"`
	Study   *models.StudySession `json:"study,omitempty"`
	Alerts  []anticheat.Alert    `json:"alerts,omitempty"`
	IsHost  bool                 `json:"is_host"`
}

type MembersUpdatePayload struct {
	Members []*models.Member `json:"members"`
	Count   int              `json:"count"`
}

type LeaderboardPayload struct {
	SessionID string                  `json:"session_id"`
	Entries   []models.PlayerProgress `json:"entries"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
