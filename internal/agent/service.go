package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	errEmptyReply = errors.New("replier returned empty content")
	errReplyPanic = errors.New("replier panicked")
	errNilReplier = errors.New("no replier configured")
)

// Service guards a Replier so callers always get either a complete reply or an error.
// It bounds each call with a timeout and turns panics and empty replies into errors.
type Service struct {
	replier Replier
	timeout time.Duration
	logger  *slog.Logger
}

// NewService wraps replier. A non-positive timeout disables the deadline.
func NewService(replier Replier, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		replier: replier,
		timeout: timeout,
		logger:  logger,
	}
}

// Reply forwards req to the wrapped replier.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (reply Reply, err error) {
	if s.replier == nil {
		return Reply{}, errNilReplier
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Replier panic recovered",
				"session_id", req.SessionID,
				"scene_id", req.SceneID,
				"panic", rec,
			)
			reply, err = Reply{}, fmt.Errorf("%w: %v", errReplyPanic, rec)
		}
	}()

	start := time.Now()
	reply, err = s.replier.Reply(ctx, req)
	if err != nil {
		s.logger.Warn("Reply failed",
			"session_id", req.SessionID,
			"scene_id", req.SceneID,
			"turn_index", req.TurnIndex,
			"error", err,
		)
		return Reply{}, fmt.Errorf("resolve reply: %w", err)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return Reply{}, errEmptyReply
	}
	if reply.Timestamp == 0 {
		reply.Timestamp = time.Now().UnixMilli()
	}

	s.logger.Debug("Reply resolved",
		"session_id", req.SessionID,
		"scene_id", req.SceneID,
		"turn_index", req.TurnIndex,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}
