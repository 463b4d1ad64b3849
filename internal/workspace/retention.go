package workspace

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/mock-interview/internal/domain"
)

const retentionWorkerInterval = 10 * time.Minute

// RetentionRepository is the storage the retention worker purges.
type RetentionRepository interface {
	GetInactiveUsers(ctx context.Context, ttl time.Duration) ([]*domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// PurgeCallback is invoked before a user's data is deleted.
type PurgeCallback func(userID string)

// StartRetentionWorker deletes users, and their persisted sessions, once they
// have been inactive for longer than ttl. It stops when ctx is cancelled.
func StartRetentionWorker(ctx context.Context, repo RetentionRepository, ttl time.Duration, onPurge PurgeCallback) {
	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				purgeInactiveUsers(ctx, repo, ttl, onPurge)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func purgeInactiveUsers(ctx context.Context, repo RetentionRepository, ttl time.Duration, onPurge PurgeCallback) int {
	users, err := repo.GetInactiveUsers(ctx, ttl)
	if err != nil {
		slog.Error("Retention worker failed to list inactive users", "error", err)
		return 0
	}
	if len(users) == 0 {
		return 0
	}

	slog.Info("Retention worker found inactive users", "count", len(users))

	purged := 0
	for _, user := range users {
		if onPurge != nil {
			onPurge(user.UserID)
		}
		if err := repo.DeleteUser(ctx, user.UserID); err != nil {
			slog.Warn("Retention worker failed to delete user",
				"error", err,
				"user_id", user.UserID)
			continue
		}
		purged++
	}
	return purged
}
