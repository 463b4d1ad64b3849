package chat

import (
	"github.com/ashureev/mock-interview/internal/domain"
)

// EventType names an orchestrator state change.
type EventType string

const (
	EventSessionCreated  EventType = "session_created"
	EventSessionDeleted  EventType = "session_deleted"
	EventSessionSelected EventType = "session_selected"
	EventSessionsCleared EventType = "sessions_cleared"
	EventSceneChanged    EventType = "scene_changed"
	EventMessageAppended EventType = "message_appended"
	EventLoadingChanged  EventType = "loading_changed"
	EventReplyFailed     EventType = "reply_failed"
	EventReplyDiscarded  EventType = "reply_discarded"
)

// Event describes one state change for UI synchronization.
type Event struct {
	Type            EventType       `json:"type"`
	SessionID       string          `json:"session_id,omitempty"`
	ActiveSessionID string          `json:"active_session_id,omitempty"`
	SceneID         string          `json:"scene_id,omitempty"`
	Message         *domain.Message `json:"message,omitempty"`
	Loading         bool            `json:"loading"`
	Error           string          `json:"error,omitempty"`
}

// Notifier receives orchestrator events. It is called without orchestrator
// locks held and must not block.
type Notifier func(Event)
