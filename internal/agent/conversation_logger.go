package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ConversationLogger records chat traffic for later review.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogEvent is one NDJSON line.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	pathUnsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// NopConversationLogger returns a logger that discards everything.
func NopConversationLogger() ConversationLogger {
	return noopConversationLogger{}
}

type fileConversationLogger struct {
	dir    string
	global io.WriteCloser
	queue  chan ConversationLogEvent
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewConversationLogger starts a background writer that appends events to
// <Dir>/<user>/<session>.ndjson and, when enabled, to a rotating global file.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("conversation log dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	l := &fileConversationLogger{
		dir:    cfg.Dir,
		queue:  make(chan ConversationLogEvent, queueSize),
		logger: logger,
	}
	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		l.global = &lumberjack.Logger{
			Filename:   cfg.GlobalPath,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log queues event without blocking. Events are dropped when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

// Close drains the queue and closes the global file.
func (l *fileConversationLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()

		l.wg.Wait()
		if l.global != nil {
			err = l.global.Close()
		}
	})
	return err
}

func (l *fileConversationLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.appendSession(event, line); err != nil {
			l.logger.Warn("failed to write conversation log",
				"user_id", event.UserID,
				"session_id", event.SessionID,
				"error", err,
			)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) appendSession(event ConversationLogEvent, line []byte) error {
	userDir := filepath.Join(l.dir, safePathSegment(event.UserID, "anonymous"))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return fmt.Errorf("create user log dir: %w", err)
	}
	path := filepath.Join(userDir, safePathSegment(event.SessionID, "default")+".ndjson")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append session log: %w", err)
	}
	return f.Close()
}

func safePathSegment(s, fallback string) string {
	s = pathUnsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

// cleanForReadability strips terminal escape sequences and normalizes line endings.
func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	return strings.TrimSpace(clean)
}
