// Package agent implements the simulated AI interviewer that answers user
// messages, and the seam a real inference backend would plug into.
package agent

import (
	"time"
)

// ReplyRequest carries everything a replier may use to answer a user message.
type ReplyRequest struct {
	SessionID string
	SceneID   string
	Content   string
	// TurnIndex is the number of user messages in the session before this one.
	TurnIndex int
}

// Reply is the assistant response to a ReplyRequest. Timestamp is epoch milliseconds.
type Reply struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// DelayConfig bounds the simulated latency of a reply.
type DelayConfig struct {
	Min time.Duration
	Max time.Duration
}

// DefaultDelayConfig returns the default latency window of 0.8s to 2.0s.
func DefaultDelayConfig() DelayConfig {
	return DelayConfig{
		Min: 800 * time.Millisecond,
		Max: 2000 * time.Millisecond,
	}
}

// ReplyPool supplies the ordered canned replies for a scene.
// Unknown scenes must yield a non-empty generic pool.
type ReplyPool interface {
	Replies(sceneID string) []string
}
