package scheduler

import (
	"context"
	"time"

	"github.com/lojamoda/storefront-auth/internal/app/service"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/robfig/cron/v3"
)

const cleanupTimeout = 2 * time.Minute

// CleanupScheduler purges old two-factor codes and rate limit rows on a cron
// schedule. Runs never overlap.
type CleanupScheduler struct {
	cron           *cron.Cron
	cleanupService service.CleanupService
	schedule       string
}

func NewCleanupScheduler(cleanupService service.CleanupService, schedule string) *CleanupScheduler {
	return &CleanupScheduler{
		cron:           cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cleanupService: cleanupService,
		schedule:       schedule,
	}
}

func (s *CleanupScheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.runOnce)
	if err != nil {
		logger.Error("Failed to add cron job for two-factor cleanup", err, map[string]interface{}{
			"schedule": s.schedule,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Two-factor cleanup scheduler started", map[string]interface{}{
		"schedule": s.schedule,
	})
	return nil
}

func (s *CleanupScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if _, err := s.cleanupService.Run(ctx); err != nil {
		logger.Error("Scheduled two-factor cleanup failed", err)
	}
}

// Stop waits for a running cleanup to finish.
func (s *CleanupScheduler) Stop() {
	logger.Info("Stopping two-factor cleanup scheduler")
	<-s.cron.Stop().Done()
	logger.Info("Two-factor cleanup scheduler stopped")
}
