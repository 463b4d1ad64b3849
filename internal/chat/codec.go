package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/mock-interview/internal/domain"
)

func encodeSessions(sessions []*domain.ChatSession) ([]byte, error) {
	out := make([]*domain.ChatSession, 0, len(sessions))
	out = append(out, sessions...)
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}
	return data, nil
}

// decodeSessions parses a persisted session list. A document that is not a
// JSON array is reported as ErrCorruptState; individual entries that fail to
// decode or carry no id are skipped, as are messages with an unknown role.
func decodeSessions(data []byte, logger *slog.Logger) ([]*domain.ChatSession, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	sessions := make([]*domain.ChatSession, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, entry := range raw {
		var s domain.ChatSession
		if err := json.Unmarshal(entry, &s); err != nil {
			logger.Warn("Skipping undecodable persisted session", "index", i, "error", err)
			continue
		}
		if s.ID == "" {
			logger.Warn("Skipping persisted session without id", "index", i)
			continue
		}
		if _, dup := seen[s.ID]; dup {
			logger.Warn("Skipping duplicate persisted session", "index", i, "session_id", s.ID)
			continue
		}
		seen[s.ID] = struct{}{}
		s.Messages = validMessages(s.ID, s.Messages, logger)
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

func validMessages(sessionID string, msgs []domain.Message, logger *slog.Logger) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Role.Valid() {
			logger.Warn("Dropping persisted message with unknown role",
				"session_id", sessionID,
				"message_id", m.ID,
				"role", m.Role)
			continue
		}
		out = append(out, m)
	}
	return out
}
