package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is a single chat message. Timestamps are epoch milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// ChatSession is one simulated interview conversation.
// Messages are kept in conversation order; CreatedAt and UpdatedAt are epoch milliseconds.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	SceneID   string    `json:"sceneId"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Clone returns a deep copy of the session.
func (s *ChatSession) Clone() ChatSession {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return c
}

// UserTurns returns the number of user messages in the session.
func (s *ChatSession) UserTurns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastTimestamp returns the timestamp of the newest message, or 0 if there are none.
func (s *ChatSession) LastTimestamp() int64 {
	if len(s.Messages) == 0 {
		return 0
	}
	return s.Messages[len(s.Messages)-1].Timestamp
}
