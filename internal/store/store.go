// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/mock-interview/internal/domain"
)

// Repository defines the interface for persisting users and their opaque
// key/value blobs.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil and no error
	// if the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetInactiveUsers retrieves users not seen within ttl.
	GetInactiveUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)

	// DeleteUser removes a user and every blob they own.
	DeleteUser(ctx context.Context, userID string) error

	// GetBlob returns the value stored under key for ownerID, or nil and no
	// error if there is none.
	GetBlob(ctx context.Context, ownerID, key string) ([]byte, error)

	// PutBlob replaces the value stored under key for ownerID.
	PutBlob(ctx context.Context, ownerID, key string, data []byte) error

	// DeleteBlob removes key for ownerID. Deleting a missing key is not an error.
	DeleteBlob(ctx context.Context, ownerID, key string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
