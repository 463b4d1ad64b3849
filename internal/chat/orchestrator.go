package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mock-interview/internal/agent"
	"github.com/ashureev/mock-interview/internal/domain"
)

// State is a snapshot of everything the UI renders.
type State struct {
	Sessions        []domain.ChatSession `json:"sessions"`
	ActiveSessionID string               `json:"active_session_id,omitempty"`
	SceneID         string               `json:"scene_id"`
	Loading         bool                 `json:"loading"`
}

// SendResult describes the outcome of SendMessage.
type SendResult struct {
	SessionID   string          `json:"session_id"`
	UserMessage domain.Message  `json:"user_message"`
	Reply       *domain.Message `json:"reply,omitempty"`
	// Discarded is set when the session was deleted before its reply arrived.
	Discarded bool `json:"discarded"`
}

// Orchestrator is the single mutation entry point for a user's chats.
// It owns the selected scene and the loading flag, and sequences
// user message -> reply -> assistant message for one send at a time.
type Orchestrator struct {
	store   *Store
	replier agent.Replier
	scenes  SceneCatalog
	notify  Notifier
	convLog agent.ConversationLogger
	owner   string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	sceneID string
	loading bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notify = n }
}

// WithConversationLog records user and assistant messages for owner.
func WithConversationLog(owner string, l agent.ConversationLogger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.owner = owner
		o.convLog = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithInitialScene overrides the catalog's default scene.
func WithInitialScene(sceneID string) OrchestratorOption {
	return func(o *Orchestrator) { o.sceneID = sceneID }
}

// NewOrchestrator creates an orchestrator over store.
func NewOrchestrator(store *Store, replier agent.Replier, scenes SceneCatalog, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		replier: replier,
		scenes:  scenes,
		notify:  func(Event) {},
		convLog: agent.NopConversationLogger(),
		logger:  slog.Default(),
		now:     time.Now,
		sceneID: scenes.DefaultSceneID(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Restore loads persisted sessions. The first session becomes active and its
// scene becomes the selected scene.
func (o *Orchestrator) Restore(ctx context.Context) State {
	o.mu.Lock()
	sessions := o.store.Restore(ctx)
	if len(sessions) > 0 {
		o.sceneID = sessions[0].SceneID
	}
	o.mu.Unlock()
	return o.State()
}

// State returns a snapshot of sessions, selection and loading flag.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Sessions:        o.store.Sessions(),
		ActiveSessionID: o.store.ActiveID(),
		SceneID:         o.sceneID,
		Loading:         o.loading,
	}
}

// Sessions returns copies of all sessions, most recently created first.
func (o *Orchestrator) Sessions() []domain.ChatSession {
	return o.store.Sessions()
}

// Session returns a copy of session id.
func (o *Orchestrator) Session(id string) (domain.ChatSession, bool) {
	return o.store.Session(id)
}

// SceneID returns the selected scene.
func (o *Orchestrator) SceneID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sceneID
}

// Loading reports whether a reply is in flight.
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// NewChat creates a session for the selected scene and makes it active.
func (o *Orchestrator) NewChat() domain.ChatSession {
	o.mu.Lock()
	sess := o.store.Create(o.sceneID)
	o.mu.Unlock()

	o.emit(Event{Type: EventSessionCreated, SessionID: sess.ID, ActiveSessionID: sess.ID, SceneID: sess.SceneID})
	return sess
}

// SelectSession activates session id and adopts its scene.
func (o *Orchestrator) SelectSession(id string) error {
	o.mu.Lock()
	if err := o.store.Select(id); err != nil {
		o.mu.Unlock()
		return err
	}
	if sess, ok := o.store.Session(id); ok {
		o.sceneID = sess.SceneID
	}
	sceneID := o.sceneID
	o.mu.Unlock()

	o.emit(Event{Type: EventSessionSelected, SessionID: id, ActiveSessionID: id, SceneID: sceneID})
	return nil
}

// DeleteSession removes session id. When the active session is deleted the
// promoted session's scene becomes the selected scene.
func (o *Orchestrator) DeleteSession(id string) error {
	o.mu.Lock()
	wasActive := o.store.ActiveID() == id
	active, err := o.store.Delete(id)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if wasActive && active != "" {
		if sess, ok := o.store.Session(active); ok {
			o.sceneID = sess.SceneID
		}
	}
	sceneID := o.sceneID
	o.mu.Unlock()

	o.logger.Info("Chat session deleted", "owner", o.owner, "session_id", id, "active_session_id", active)
	o.emit(Event{Type: EventSessionDeleted, SessionID: id, ActiveSessionID: active, SceneID: sceneID})
	return nil
}

// ClearAll deletes every session.
func (o *Orchestrator) ClearAll() {
	o.mu.Lock()
	o.store.Clear()
	o.mu.Unlock()

	o.logger.Info("Chat sessions cleared", "owner", o.owner)
	o.emit(Event{Type: EventSessionsCleared})
}

// SelectScene changes the selected scene. The active session, if any, is
// reassigned to it; its messages are left untouched.
func (o *Orchestrator) SelectScene(sceneID string) error {
	if !o.scenes.Has(sceneID) {
		return fmt.Errorf("select scene %q: %w", sceneID, ErrUnknownScene)
	}

	o.mu.Lock()
	o.sceneID = sceneID
	active := o.store.ActiveID()
	if active != "" {
		if err := o.store.ReassignScene(active, sceneID); err != nil {
			o.logger.Warn("Failed to reassign active session scene", "session_id", active, "error", err)
		}
	}
	o.mu.Unlock()

	o.emit(Event{Type: EventSceneChanged, SessionID: active, ActiveSessionID: active, SceneID: sceneID})
	return nil
}

// SendMessage appends content as a user message to the active session
// (creating one if none is active), waits for the reply and appends it.
//
// The user message is never rolled back. A failed reply is returned as a
// *ReplyError. If the session is deleted while the reply is pending, the
// reply is dropped and the result is marked Discarded.
func (o *Orchestrator) SendMessage(ctx context.Context, content string) (SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return SendResult{}, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return SendResult{}, ErrSendInFlight
	}

	var pending []Event
	sessionID := o.store.ActiveID()
	if sessionID == "" {
		sess := o.store.Create(o.sceneID)
		sessionID = sess.ID
		pending = append(pending, Event{Type: EventSessionCreated, SessionID: sess.ID, ActiveSessionID: sess.ID, SceneID: sess.SceneID})
	}
	sess, ok := o.store.Session(sessionID)
	if !ok {
		o.mu.Unlock()
		return SendResult{}, fmt.Errorf("send to %s: %w", sessionID, ErrUnknownSession)
	}
	req := agent.ReplyRequest{
		SessionID: sessionID,
		SceneID:   sess.SceneID,
		Content:   content,
		TurnIndex: sess.UserTurns(),
	}
	userMsg, err := o.store.AppendMessage(sessionID, domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: o.now().UnixMilli(),
	})
	if err != nil {
		o.mu.Unlock()
		return SendResult{}, err
	}
	o.loading = true
	o.mu.Unlock()

	result := SendResult{SessionID: sessionID, UserMessage: userMsg}
	for _, ev := range pending {
		o.emit(ev)
	}
	o.emit(Event{Type: EventMessageAppended, SessionID: sessionID, Message: &userMsg, Loading: true})
	o.emit(Event{Type: EventLoadingChanged, SessionID: sessionID, Loading: true})
	o.logMessage(userMsg, sessionID, req.SceneID, "outbound", req.TurnIndex)

	reply, replyErr := o.resolve(ctx, req)

	o.mu.Lock()
	o.loading = false
	if replyErr != nil {
		o.mu.Unlock()
		o.logger.Warn("Assistant reply failed", "owner", o.owner, "session_id", sessionID, "error", replyErr)
		o.emit(Event{Type: EventLoadingChanged, SessionID: sessionID})
		o.emit(Event{Type: EventReplyFailed, SessionID: sessionID, Error: replyErr.Error()})
		return result, &ReplyError{SessionID: sessionID, Err: replyErr}
	}

	// The session may have been deleted while the reply was pending;
	// AppendMessage re-validates it under the store lock.
	assistantMsg, err := o.store.AppendMessage(sessionID, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		Timestamp: reply.Timestamp,
	})
	o.mu.Unlock()

	o.emit(Event{Type: EventLoadingChanged, SessionID: sessionID})
	if errors.Is(err, ErrUnknownSession) {
		o.logger.Info("Discarding reply for deleted session", "owner", o.owner, "session_id", sessionID)
		o.emit(Event{Type: EventReplyDiscarded, SessionID: sessionID})
		result.Discarded = true
		return result, nil
	}
	if err != nil {
		return result, err
	}

	result.Reply = &assistantMsg
	o.emit(Event{Type: EventMessageAppended, SessionID: sessionID, Message: &assistantMsg})
	o.logMessage(assistantMsg, sessionID, req.SceneID, "inbound", req.TurnIndex)
	return result, nil
}

// Flush writes pending session changes to storage.
func (o *Orchestrator) Flush(ctx context.Context) error {
	return o.store.Flush(ctx)
}

// Close flushes and stops background persistence.
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

func (o *Orchestrator) resolve(ctx context.Context, req agent.ReplyRequest) (reply agent.Reply, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("replier panic: %v", rec)
		}
	}()
	return o.replier.Reply(ctx, req)
}

func (o *Orchestrator) emit(ev Event) {
	if o.notify != nil {
		o.notify(ev)
	}
}

func (o *Orchestrator) logMessage(msg domain.Message, sessionID, sceneID, direction string, turn int) {
	o.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339Nano),
		UserID:     o.owner,
		SessionID:  sessionID,
		Channel:    "chat",
		Direction:  direction,
		EventType:  "chat_" + string(msg.Role) + "_message",
		ContentRaw: msg.Content,
		Meta: map[string]any{
			"message_id": msg.ID,
			"scene_id":   sceneID,
			"turn_index": turn,
		},
	})
}
