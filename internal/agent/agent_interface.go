package agent

import (
	"context"
)

// Replier produces the assistant reply for a user message.
// Implementations either resolve with content or return an error; they must
// never resolve with a partial reply.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) (Reply, error)
}

// Ensure the built-in repliers implement Replier.
var (
	_ Replier = (*CannedReplier)(nil)
	_ Replier = (*Service)(nil)
)
