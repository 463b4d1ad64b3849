package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/ashureev/mock-interview/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	maxRetries     = 3
	retryBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	blobMu sync.Mutex // Serializes blob writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

	CREATE TABLE IF NOT EXISTS blobs (
		owner_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetInactiveUsers retrieves users whose last activity is older than ttl.
func (s *SQLiteStore) GetInactiveUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE last_seen_at < ?
		ORDER BY last_seen_at`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query inactive users: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close inactive users rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inactive user row: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inactive users: %w", err)
	}

	return users, nil
}

// DeleteUser removes a user and their blobs in one transaction.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	return s.withRetry(ctx, "delete user", userID, func() error {
		s.blobMu.Lock()
		defer s.blobMu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE owner_id = ?`, userID); err != nil {
			return fmt.Errorf("delete user blobs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return tx.Commit()
	})
}

// GetBlob returns the value stored under key for ownerID.
func (s *SQLiteStore) GetBlob(ctx context.Context, ownerID, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM blobs WHERE owner_id = ? AND key = ?`, ownerID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// PutBlob replaces the value stored under key for ownerID.
func (s *SQLiteStore) PutBlob(ctx context.Context, ownerID, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	query := `
		INSERT INTO blobs (owner_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`

	return s.withRetry(ctx, "put blob", ownerID, func() error {
		s.blobMu.Lock()
		defer s.blobMu.Unlock()

		if _, err := s.db.ExecContext(ctx, query, ownerID, key, data, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("put blob %s: %w", key, err)
		}
		return nil
	})
}

// DeleteBlob removes key for ownerID.
func (s *SQLiteStore) DeleteBlob(ctx context.Context, ownerID, key string) error {
	return s.withRetry(ctx, "delete blob", ownerID, func() error {
		s.blobMu.Lock()
		defer s.blobMu.Unlock()

		if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE owner_id = ? AND key = ?`, ownerID, key); err != nil {
			return fmt.Errorf("delete blob %s: %w", key, err)
		}
		return nil
	})
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withRetry runs fn, retrying with exponential backoff while SQLite reports
// a lock conflict.
func (s *SQLiteStore) withRetry(ctx context.Context, op, ownerID string, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := retryBaseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("SQLite write conflict, retrying",
			"op", op,
			"owner_id", ownerID,
			"attempt", i+1,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s for %s: %w", op, ownerID, ctx.Err())
		case <-timer.C:
		}
	}
	if shared.IsSQLiteConflictError(err) {
		return fmt.Errorf("%s for %s after %d attempts: %w", op, ownerID, maxRetries, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	if err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}
