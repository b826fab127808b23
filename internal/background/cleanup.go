package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/openhearth/casekeeper/internal/repositories"
)

// CleanupManager periodically removes expired ceremony challenges and
// aged-out login attempt rows.
type CleanupManager struct {
	challengeRepo *repositories.ChallengeRepository
	attemptRepo   *repositories.LoginAttemptRepository
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	challengeRepo *repositories.ChallengeRepository,
	attemptRepo *repositories.LoginAttemptRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		challengeRepo: challengeRepo,
		attemptRepo:   attemptRepo,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	challenges, err := cm.challengeRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired challenges", slog.Any("error", err))
	} else if challenges > 0 {
		cm.logger.Info("expired challenge cleanup completed", slog.Int64("rows_deleted", challenges))
	}

	attempts, err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired login attempts", slog.Any("error", err))
	} else if attempts > 0 {
		cm.logger.Info("expired login attempt cleanup completed", slog.Int64("rows_deleted", attempts))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
