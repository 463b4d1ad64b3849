// Package chat implements the mock-interview session store and the
// orchestrator that sequences user messages and assistant replies.
package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSession is returned for operations on a session id that is not in the store.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownScene is returned when selecting a scene that is not in the catalog.
	ErrUnknownScene = errors.New("unknown scene")
	// ErrEmptyMessage is returned when a send carries no content.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrSendInFlight is returned when a send starts while another is awaiting its reply.
	ErrSendInFlight = errors.New("a reply is already in flight")
	// ErrCorruptState marks persisted session data that could not be decoded.
	ErrCorruptState = errors.New("corrupt persisted sessions")
)

// ReplyError reports that the assistant reply for a session could not be produced.
// The user's message stays in the session.
type ReplyError struct {
	SessionID string
	Err       error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply for session %s: %v", e.SessionID, e.Err)
}

func (e *ReplyError) Unwrap() error {
	return e.Err
}
